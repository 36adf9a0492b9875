package domain

// Summary — счетчики для карточек дашборда
type Summary struct {
	TotalRecords    int    `json:"total_records"`
	TodayAttendance int    `json:"today_attendance"`
	TodayDate       string `json:"today_date"`
	UniquePeople    int    `json:"unique_people"`
	KnownFaces      int    `json:"total_faces_in_dataset"`
}

// IngestStats — сводка журнала распознаваний за последний час
type IngestStats struct {
	TotalEvents   int     `json:"total_events"`
	Recorded      int     `json:"recorded"`
	Deduplicated  int     `json:"deduplicated"`
	LowConfidence int     `json:"low_confidence"`
	Errors        int     `json:"errors"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	EventsPerSec  float64 `json:"events_per_sec"`
}
