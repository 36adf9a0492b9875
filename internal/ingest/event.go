package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// Submitter — вход ядра, общий для всех транспортов
type Submitter interface {
	Submit(ctx context.Context, ev domain.RecognitionEvent) (domain.SubmitOutcome, error)
}

// wireEvent — JSON события от процесса распознавания.
// detected_at: RFC3339 или unix-миллисекунды; confidence или distance (1 - confidence).
type wireEvent struct {
	PersonID   string          `json:"person_id"`
	PersonName string          `json:"person_name"`
	DetectedAt json.RawMessage `json:"detected_at"`
	Confidence *float64        `json:"confidence"`
	Distance   *float64        `json:"distance"`
}

// DecodeEvent разбирает payload. Отсутствующее время заменяется now,
// отсутствующая уверенность считается полной: камера уже отсекла по порогу.
func DecodeEvent(raw []byte, now time.Time) (domain.RecognitionEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return domain.RecognitionEvent{}, fmt.Errorf("decode recognition event: %w", err)
	}
	// После объекта допускаются только пробелы
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return domain.RecognitionEvent{}, errors.New("decode recognition event: trailing data after JSON object")
	}

	ev := domain.RecognitionEvent{
		PersonID:   strings.TrimSpace(w.PersonID),
		PersonName: strings.TrimSpace(w.PersonName),
		Confidence: 1,
	}
	if ev.PersonID == "" && ev.PersonName == "" {
		return domain.RecognitionEvent{}, errors.New("person_id missing or empty")
	}
	// Распознаватель, знающий только имя: имя и есть идентификатор
	if ev.PersonID == "" {
		ev.PersonID = ev.PersonName
	}

	switch {
	case w.Confidence != nil:
		ev.Confidence = *w.Confidence
	case w.Distance != nil:
		ev.Confidence = 1 - *w.Distance
	}
	if ev.Confidence < 0 || ev.Confidence > 1 {
		return domain.RecognitionEvent{}, fmt.Errorf("confidence %v out of range [0, 1]", ev.Confidence)
	}

	at, err := parseDetectedAt(w.DetectedAt, now)
	if err != nil {
		return domain.RecognitionEvent{}, err
	}
	ev.DetectedAt = at
	return ev, nil
}

func parseDetectedAt(raw json.RawMessage, now time.Time) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return now, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if trimmed == "" {
			return now, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return t, nil
		}
		if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		return time.Time{}, fmt.Errorf("detected_at %q: unsupported format", trimmed)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		ms, err := asNumber.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("detected_at %q: %w", asNumber, err)
		}
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("detected_at: unsupported value %s", raw)
}
