package domain

import "time"

// Форматы календарного дня и времени внутри дня (совместимы с CSV и дашбордом)
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// RecognitionEvent — одно "сырое" срабатывание распознавания лица.
// Камера шлет их десятками в секунду, пока лицо в кадре. В ledger напрямую не пишется.
type RecognitionEvent struct {
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name,omitempty"` // Опционально: имя из датасета распознавателя
	DetectedAt time.Time `json:"detected_at"`
	Confidence float64   `json:"confidence"`
}

// CommitAttendance — инструкция дедупликатора для ledger: "зафиксировать приход".
type CommitAttendance struct {
	PersonID string
	Date     string
	Time     string
}

// AttendanceEntry — каноническая запись о посещении. Не более одной на (PersonID, Date).
// После создания не меняется.
type AttendanceEntry struct {
	ID         int64     `json:"id"`
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"name"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key возвращает ключ уникальности записи
func (e AttendanceEntry) Key() EntryKey {
	return EntryKey{PersonID: e.PersonID, Date: e.Date}
}

// EntryKey — ключ индекса ledger: один человек, один день.
type EntryKey struct {
	PersonID string
	Date     string
}

// SubmitStatus — итог обработки одного события распознавания
type SubmitStatus string

const (
	StatusRecorded        SubmitStatus = "recorded"         // Создана новая запись
	StatusDeduplicated    SubmitStatus = "deduplicated"     // Поглощено дедупликатором
	StatusAlreadyRecorded SubmitStatus = "already_recorded" // Ledger уже содержит запись за день
	StatusLowConfidence   SubmitStatus = "low_confidence"   // Ниже порога уверенности
)

// SubmitOutcome — ответ на Submit. Entry заполнен только для StatusRecorded.
type SubmitOutcome struct {
	Status SubmitStatus     `json:"status"`
	Entry  *AttendanceEntry `json:"entry,omitempty"`
}
