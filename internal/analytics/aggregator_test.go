package analytics

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ledger"
)

func entry(id int64, pid, name, date, clock string) domain.AttendanceEntry {
	return domain.AttendanceEntry{ID: id, PersonID: pid, PersonName: name, Date: date, Time: clock, Confidence: 0.9}
}

func midnightUTC(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeEmptyLedger(t *testing.T) {
	agg := NewAggregator(time.UTC)
	res, err := agg.Compute(ledger.NewView(nil), 10, domain.AnalyticsWindow{Days: 7, AsOf: midnightUTC(2024, 3, 10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AttendanceRate != 0 || res.AvgDailyAttendance != 0 {
		t.Fatalf("unexpected rates: %+v", res)
	}
	if len(res.DailyTrend) != 7 {
		t.Fatalf("expected 7 days, got %d", len(res.DailyTrend))
	}
	for _, d := range res.DailyTrend {
		if d.Count != 0 {
			t.Fatalf("unexpected count on %s: %d", d.Date, d.Count)
		}
	}
	if res.DailyTrend[0].Date != "2024-03-03" || res.DailyTrend[6].Date != "2024-03-09" {
		t.Fatalf("unexpected window bounds: %s..%s", res.DailyTrend[0].Date, res.DailyTrend[6].Date)
	}
	if res.AttendanceByPerson == nil || len(res.AttendanceByPerson) != 0 {
		t.Fatalf("expected empty non-nil by_person, got %#v", res.AttendanceByPerson)
	}
	if res.PeakTimes == nil || len(res.PeakTimes) != 0 {
		t.Fatalf("expected empty non-nil peak_times, got %#v", res.PeakTimes)
	}
	if res.TotalRegistered != 10 {
		t.Fatalf("unexpected total_registered: %d", res.TotalRegistered)
	}
}

func TestComputeTwoDayScenario(t *testing.T) {
	view := ledger.NewView([]domain.AttendanceEntry{
		entry(1, "p-alice", "Alice", "2024-01-01", "09:00:00"),
		entry(2, "p-alice", "Alice", "2024-01-02", "09:15:00"),
	})
	agg := NewAggregator(time.UTC)
	res, err := agg.Compute(view, 2, domain.AnalyticsWindow{Days: 2, AsOf: midnightUTC(2024, 1, 3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AttendanceRate != 50.0 {
		t.Fatalf("expected rate 50.0, got %v", res.AttendanceRate)
	}
	if res.AvgDailyAttendance != 1.0 {
		t.Fatalf("expected avg 1.0, got %v", res.AvgDailyAttendance)
	}
	if want := []domain.PersonCount{{Name: "Alice", Count: 2}}; !reflect.DeepEqual(res.AttendanceByPerson, want) {
		t.Fatalf("unexpected by_person: %+v", res.AttendanceByPerson)
	}
	if want := []domain.HourCount{{Hour: 9, Count: 2}}; !reflect.DeepEqual(res.PeakTimes, want) {
		t.Fatalf("unexpected peak_times: %+v", res.PeakTimes)
	}
	// 2024-01-01 — понедельник первой ISO-недели 2024
	if want := []domain.WeekCount{{Week: "2024-W01", Count: 2}}; !reflect.DeepEqual(res.WeeklySummary, want) {
		t.Fatalf("unexpected weekly: %+v", res.WeeklySummary)
	}
}

func TestComputeRejectsBadWindow(t *testing.T) {
	agg := NewAggregator(time.UTC)
	for _, days := range []int{0, -3} {
		_, err := agg.Compute(ledger.NewView(nil), 1, domain.AnalyticsWindow{Days: days, AsOf: time.Now()})
		if !errors.Is(err, domain.ErrInvalidWindow) {
			t.Fatalf("days=%d: expected ErrInvalidWindow, got %v", days, err)
		}
	}
}

func TestWindowEndsOnDayOfAsOf(t *testing.T) {
	agg := NewAggregator(time.UTC)
	asOf := time.Date(2024, 5, 20, 14, 30, 0, 0, time.UTC)
	days := agg.WindowDays(domain.AnalyticsWindow{Days: 3, AsOf: asOf})
	var got []string
	for _, d := range days {
		got = append(got, d.Format(domain.DateLayout))
	}
	want := []string{"2024-05-18", "2024-05-19", "2024-05-20"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected days: %v", got)
	}
}

func TestWindowRespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	agg := NewAggregator(loc)
	// 22:00 UTC — это уже следующий день в UTC+3
	asOf := time.Date(2024, 5, 20, 22, 0, 0, 0, time.UTC)
	days := agg.WindowDays(domain.AnalyticsWindow{Days: 1, AsOf: asOf})
	if len(days) != 1 || days[0].Format(domain.DateLayout) != "2024-05-21" {
		t.Fatalf("unexpected days: %v", days)
	}
}

func TestComputeFiltersAndSorts(t *testing.T) {
	view := ledger.NewView([]domain.AttendanceEntry{
		entry(1, "p1", "Carol", "2023-12-31", "08:00:00"), // вне окна
		entry(2, "p2", "Bob", "2024-01-01", "10:05:00"),
		entry(3, "p3", "Alice", "2024-01-01", "10:40:00"),
		entry(4, "p2", "Bob", "2024-01-02", "08:10:00"),
		entry(5, "p3", "Alice", "2024-01-03", "17:00:00"),
		entry(6, "p4", "Dave", "2024-01-03", "10:00:00"),
	})
	agg := NewAggregator(time.UTC)
	res, err := agg.Compute(view, 4, domain.AnalyticsWindow{Days: 3, AsOf: midnightUTC(2024, 1, 4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.PersonCount{{Name: "Alice", Count: 2}, {Name: "Bob", Count: 2}, {Name: "Dave", Count: 1}}
	if !reflect.DeepEqual(res.AttendanceByPerson, want) {
		t.Fatalf("unexpected by_person: %+v", res.AttendanceByPerson)
	}
	sum := 0
	for _, p := range res.AttendanceByPerson {
		sum += p.Count
	}
	if sum != 5 {
		t.Fatalf("by_person must sum to filtered count, got %d", sum)
	}

	wantPeaks := []domain.HourCount{{Hour: 8, Count: 1}, {Hour: 10, Count: 3}, {Hour: 17, Count: 1}}
	if !reflect.DeepEqual(res.PeakTimes, wantPeaks) {
		t.Fatalf("unexpected peaks: %+v", res.PeakTimes)
	}
	// 3 из 4 зарегистрированных
	if res.AttendanceRate != 75.0 {
		t.Fatalf("unexpected rate: %v", res.AttendanceRate)
	}
	if res.AvgDailyAttendance != 1.7 {
		t.Fatalf("unexpected avg: %v", res.AvgDailyAttendance)
	}
}

func TestComputeRateClamped(t *testing.T) {
	view := ledger.NewView([]domain.AttendanceEntry{
		entry(1, "p1", "A", "2024-01-01", "09:00:00"),
		entry(2, "p2", "B", "2024-01-01", "09:00:00"),
		entry(3, "p3", "C", "2024-01-01", "09:00:00"),
	})
	res, err := NewAggregator(time.UTC).Compute(view, 2, domain.AnalyticsWindow{Days: 1, AsOf: midnightUTC(2024, 1, 2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AttendanceRate != 100 {
		t.Fatalf("expected clamp to 100, got %v", res.AttendanceRate)
	}
}

func TestWeeklySummarySpansWeeks(t *testing.T) {
	view := ledger.NewView([]domain.AttendanceEntry{
		entry(1, "p1", "A", "2024-01-05", "09:00:00"), // W01
		entry(2, "p1", "A", "2024-01-07", "09:00:00"), // W01 (воскресенье)
		entry(3, "p1", "A", "2024-01-08", "09:00:00"), // W02
	})
	res, err := NewAggregator(time.UTC).Compute(view, 1, domain.AnalyticsWindow{Days: 7, AsOf: midnightUTC(2024, 1, 9)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.WeekCount{{Week: "2024-W01", Count: 2}, {Week: "2024-W02", Count: 1}}
	if !reflect.DeepEqual(res.WeeklySummary, want) {
		t.Fatalf("unexpected weekly: %+v", res.WeeklySummary)
	}
}

func TestComputeIsPure(t *testing.T) {
	view := ledger.NewView([]domain.AttendanceEntry{
		entry(1, "p1", "A", "2024-01-01", "09:00:00"),
		entry(2, "p2", "B", "2024-01-02", "11:00:00"),
	})
	agg := NewAggregator(time.UTC)
	w := domain.AnalyticsWindow{Days: 30, AsOf: midnightUTC(2024, 1, 10)}

	first, err := agg.Compute(view, 5, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := agg.Compute(view, 5, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ:\n%+v\n%+v", first, second)
	}
	if len(first.DailyTrend) != 30 {
		t.Fatalf("expected 30 days, got %d", len(first.DailyTrend))
	}
}

func TestComputeRejectsOversizedWindow(t *testing.T) {
	asOf := midnightUTC(2024, 1, 3)

	agg := NewAggregator(time.UTC, WithMaxDays(30))
	if _, err := agg.Compute(ledger.NewView(nil), 1, domain.AnalyticsWindow{Days: 30, AsOf: asOf}); err != nil {
		t.Fatalf("window at the limit must pass: %v", err)
	}
	_, err := agg.Compute(ledger.NewView(nil), 1, domain.AnalyticsWindow{Days: 31, AsOf: asOf})
	if !errors.Is(err, domain.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}

	huge := domain.AnalyticsWindow{Days: 1 << 40, AsOf: asOf}
	if _, err := NewAggregator(time.UTC).Compute(ledger.NewView(nil), 1, huge); !errors.Is(err, domain.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for 2^40 days, got %v", err)
	}
	if days := NewAggregator(time.UTC).WindowDays(huge); days != nil {
		t.Fatalf("oversized window must yield no days, got %d", len(days))
	}
}
