package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ledger"
)

// DefaultMaxDays — верхняя граница окна, около десяти лет
const DefaultMaxDays = 3660

// Aggregator считает статистику по snapshot ledger. Состояния нет:
// одинаковые входы всегда дают одинаковый результат, на этом держится кэш.
type Aggregator struct {
	loc     *time.Location
	maxDays int
}

type AggregatorOption func(*Aggregator)

// WithMaxDays меняет верхнюю границу окна; n <= 0 игнорируется
func WithMaxDays(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxDays = n
		}
	}
}

// NewAggregator фиксирует часовой пояс границ дня и ISO-недели
func NewAggregator(loc *time.Location, opts ...AggregatorOption) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	a := &Aggregator{loc: loc, maxDays: DefaultMaxDays}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MaxDays — наибольшее допустимое окно
func (a *Aggregator) MaxDays() int { return a.maxDays }

// Validate отклоняет окно вне [1, MaxDays] до любых аллокаций
func (a *Aggregator) Validate(w domain.AnalyticsWindow) error {
	if w.Days <= 0 {
		return fmt.Errorf("%w: got %d", domain.ErrInvalidWindow, w.Days)
	}
	if w.Days > a.maxDays {
		return fmt.Errorf("%w: %d days exceeds the limit of %d", domain.ErrInvalidWindow, w.Days, a.maxDays)
	}
	return nil
}

// Compute строит AnalyticsResult за окно. Недопустимый Days отклоняется до любых вычислений.
func (a *Aggregator) Compute(view ledger.View, totalRegistered int, w domain.AnalyticsWindow) (domain.AnalyticsResult, error) {
	if err := a.Validate(w); err != nil {
		return domain.AnalyticsResult{}, err
	}

	days := a.WindowDays(w)
	pos := make(map[string]int, len(days))
	daily := make([]domain.DayCount, len(days))
	for i, d := range days {
		label := d.Format(domain.DateLayout)
		pos[label] = i
		daily[i] = domain.DayCount{Date: label}
	}

	// Один проход по записям окна: день, человек, имя, час
	var (
		filtered int
		hours    [24]int
		persons  = make(map[string]struct{})
		byName   = make(map[string]int)
	)
	for e := range view.All() {
		i, ok := pos[e.Date]
		if !ok {
			continue
		}
		filtered++
		daily[i].Count++
		persons[e.PersonID] = struct{}{}
		byName[displayName(e)]++
		if t, err := time.Parse(domain.TimeLayout, e.Time); err == nil {
			hours[t.Hour()]++
		}
	}

	res := domain.AnalyticsResult{
		AttendanceRate:     attendanceRate(len(persons), totalRegistered),
		AvgDailyAttendance: round1(float64(filtered) / float64(w.Days)),
		TotalRegistered:    totalRegistered,
		DailyTrend:         daily,
		WeeklySummary:      weekly(days, daily),
		AttendanceByPerson: rankPersons(byName),
		PeakTimes:          peakHours(hours),
	}
	return res, nil
}

// WindowDays возвращает календарные дни окна в хронологическом порядке.
// Окно заканчивается днем, в который попадает последний момент перед AsOf:
// если AsOf ровно полночь, это предыдущий день, иначе день самого AsOf.
// Для недопустимого окна возвращает nil.
func (a *Aggregator) WindowDays(w domain.AnalyticsWindow) []time.Time {
	if a.Validate(w) != nil {
		return nil
	}
	asOf := w.AsOf.In(a.loc)
	end := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, a.loc)
	if asOf.After(end) {
		end = end.AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -w.Days)

	out := make([]time.Time, 0, w.Days)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func attendanceRate(distinct, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := round1(100 * float64(distinct) / float64(total))
	// Неизвестные лица с разрешенным именем могут дать distinct > total
	return math.Min(rate, 100)
}

// weekly сворачивает дневные бакеты в ISO-недели. Дни уже идут по порядку,
// поэтому недели появляются хронологически. Пустые недели пропускаются.
func weekly(days []time.Time, daily []domain.DayCount) []domain.WeekCount {
	out := make([]domain.WeekCount, 0)
	for i, d := range days {
		if daily[i].Count == 0 {
			continue
		}
		year, week := d.ISOWeek()
		label := fmt.Sprintf("%d-W%02d", year, week)
		if n := len(out); n > 0 && out[n-1].Week == label {
			out[n-1].Count += daily[i].Count
			continue
		}
		out = append(out, domain.WeekCount{Week: label, Count: daily[i].Count})
	}
	return out
}

// rankPersons: по убыванию count, при равенстве по имени
func rankPersons(byName map[string]int) []domain.PersonCount {
	out := make([]domain.PersonCount, 0, len(byName))
	for name, n := range byName {
		out = append(out, domain.PersonCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func peakHours(hours [24]int) []domain.HourCount {
	out := make([]domain.HourCount, 0)
	for h, n := range hours {
		if n > 0 {
			out = append(out, domain.HourCount{Hour: h, Count: n})
		}
	}
	return out
}

func displayName(e domain.AttendanceEntry) string {
	if e.PersonName != "" {
		return e.PersonName
	}
	return e.PersonID
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
