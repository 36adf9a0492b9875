package audit

import "time"

// Event — запись журнала распознаваний: что пришло, откуда и чем закончилось
type Event struct {
	ID         string    `json:"id"`        // UUID записи журнала
	TraceID    string    `json:"trace_id"`  // Сквозной ID запроса
	Transport  string    `json:"transport"` // http, grpc, kafka
	PersonID   string    `json:"person_id"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`

	// Результат
	Status     string    `json:"status"`             // recorded, deduplicated, already_recorded, low_confidence, error
	EntryID    int64     `json:"entry_id,omitempty"` // ID записи ledger, если создана
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время обработки
}
