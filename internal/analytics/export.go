package analytics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

var csvHeader = []string{"Date", "Attendance Count"}

// ToCSV рендерит daily_trend: заголовок и по строке на день, каждая строка
// заканчивается '\n', пустой строки в конце нет.
func ToCSV(r domain.AnalyticsResult) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Ошибки записи в bytes.Buffer невозможны
	_ = w.Write(csvHeader)
	for _, d := range r.DailyTrend {
		_ = w.Write([]string{d.Date, strconv.Itoa(d.Count)})
	}
	w.Flush()
	return buf.Bytes()
}

// ParseCSV читает вывод ToCSV обратно в daily_trend
func ParseCSV(rd io.Reader) ([]domain.DayCount, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = 2

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	if header[0] != csvHeader[0] || header[1] != csvHeader[1] {
		return nil, fmt.Errorf("csv header: unexpected %q", header)
	}

	out := make([]domain.DayCount, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("csv row %q: %w", rec, err)
		}
		out = append(out, domain.DayCount{Date: rec[0], Count: n})
	}
	return out, nil
}
