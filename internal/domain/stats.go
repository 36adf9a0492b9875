package domain

import "time"

// AnalyticsWindow задает полуинтервал [AsOf - Days, AsOf).
// AsOf фиксируется явно, чтобы результат был воспроизводим.
type AnalyticsWindow struct {
	Days int       `json:"days"`
	AsOf time.Time `json:"as_of"`
}

// AnalyticsResult — производная статистика за окно. Никогда не сохраняется.
type AnalyticsResult struct {
	AttendanceRate     float64       `json:"attendance_rate"`
	AvgDailyAttendance float64       `json:"avg_daily_attendance"`
	TotalRegistered    int           `json:"total_registered"`
	DailyTrend         []DayCount    `json:"daily_trend"`
	WeeklySummary      []WeekCount   `json:"weekly_summary"`
	AttendanceByPerson []PersonCount `json:"attendance_by_person"`
	PeakTimes          []HourCount   `json:"peak_times"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type WeekCount struct {
	Week  string `json:"week"` // ISO-неделя: "2024-W01"
	Count int    `json:"count"`
}

type PersonCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}
