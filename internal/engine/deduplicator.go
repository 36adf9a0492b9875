package engine

import (
	"sync"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// Verdict — решение дедупликатора по одному событию
type Verdict int

const (
	VerdictCommit        Verdict = iota // Первое событие человека за день
	VerdictDuplicate                    // Повтор в тот же день
	VerdictLowConfidence                // Ниже порога, в ledger не идет
)

type observation struct {
	date string
	time string
}

// Decision возвращает Observe. Для VerdictCommit содержит инструкцию для ledger
// и предыдущее состояние человека, нужное для Rollback.
type Decision struct {
	Verdict Verdict
	Commit  domain.CommitAttendance

	prev    observation
	hadPrev bool
}

// Deduplicator поглощает повторные срабатывания камеры. Помнит последнее
// принятое наблюдение по каждому человеку. Состояние принадлежит экземпляру:
// два движка в одном процессе не делят его.
type Deduplicator struct {
	mu            sync.Mutex
	last          map[string]observation
	loc           *time.Location
	minConfidence float64
}

func NewDeduplicator(loc *time.Location, minConfidence float64) *Deduplicator {
	if loc == nil {
		loc = time.Local
	}
	return &Deduplicator{
		last:          make(map[string]observation),
		loc:           loc,
		minConfidence: minConfidence,
	}
}

// Observe решает, фиксировать ли событие. Повтор в тот же календарный день
// отклоняется независимо от прошедшего времени.
func (d *Deduplicator) Observe(ev domain.RecognitionEvent) Decision {
	if ev.Confidence < d.minConfidence {
		return Decision{Verdict: VerdictLowConfidence}
	}

	at := ev.DetectedAt.In(d.loc)
	cur := observation{date: at.Format(domain.DateLayout), time: at.Format(domain.TimeLayout)}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.last[ev.PersonID]
	if ok && prev.date == cur.date {
		return Decision{Verdict: VerdictDuplicate}
	}
	// Событие из прошлого дня не откатывает состояние назад
	if !ok || cur.date > prev.date {
		d.last[ev.PersonID] = cur
	}

	return Decision{
		Verdict: VerdictCommit,
		Commit:  domain.CommitAttendance{PersonID: ev.PersonID, Date: cur.date, Time: cur.time},
		prev:    prev,
		hadPrev: ok,
	}
}

// Rollback возвращает состояние человека до решения dec. Вызывается, когда
// ledger не смог сохранить запись, иначе сбой хранилища "съел" бы день.
// Если состояние уже сдвинуто другим событием, ничего не делает.
func (d *Deduplicator) Rollback(dec Decision) {
	if dec.Verdict != VerdictCommit {
		return
	}
	id := dec.Commit.PersonID

	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.last[id]
	if !ok || cur.date != dec.Commit.Date || cur.time != dec.Commit.Time {
		return
	}
	if dec.hadPrev {
		d.last[id] = dec.prev
	} else {
		delete(d.last, id)
	}
}

// Seed восстанавливает состояние после рестарта из последних записей ledger.
// Более свежие уже известные наблюдения не перетираются.
func (d *Deduplicator) Seed(latest map[string]domain.CommitAttendance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range latest {
		prev, ok := d.last[id]
		if ok && (prev.date > c.Date || (prev.date == c.Date && prev.time >= c.Time)) {
			continue
		}
		d.last[id] = observation{date: c.Date, time: c.Time}
	}
}

// Len — число людей, по которым есть состояние
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.last)
}
