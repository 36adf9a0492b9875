package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/attendance-engine/internal/analytics"
	"github.com/xela07ax/attendance-engine/internal/audit"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ledger"
	"go.uber.org/zap"
)

// PersonResolver отвечает на вопрос "кто это" в hot path
type PersonResolver interface {
	Resolve(id string) (domain.Person, bool)
	Count() int
}

// Notifier получает уведомление о каждой новой записи (межинстансовая синхронизация)
type Notifier interface {
	Appended(ctx context.Context, e domain.AttendanceEntry)
}

// Auditor принимает записи журнала распознаваний (асинхронно)
type Auditor interface {
	Log(event audit.Event)
}

// Settings — параметры ядра, не зависящие от транспорта
type Settings struct {
	Location      *time.Location
	MinConfidence float64
	CacheSize     int
	MaxDays       int      // 0 — analytics.DefaultMaxDays
	Notifier      Notifier // nil — без рассылки
	Auditor       Auditor  // nil — без журнала
}

// Engine связывает дедупликатор, ledger и аналитику в одну точку входа.
// Писатели (камеры) и читатели (дашборд) работают параллельно: чтения
// идут по snapshot ledger и не ждут записи.
type Engine struct {
	dedup   *Deduplicator
	ledger  *ledger.Ledger
	agg     *analytics.Aggregator
	cache   *analytics.Cache
	persons PersonResolver
	notify  Notifier
	auditor Auditor
	metrics *Metrics
	loc     *time.Location
	logger  *zap.Logger
}

func New(l *ledger.Ledger, persons PersonResolver, metrics *Metrics, s Settings, logger *zap.Logger) *Engine {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		dedup:   NewDeduplicator(loc, s.MinConfidence),
		ledger:  l,
		agg:     analytics.NewAggregator(loc, analytics.WithMaxDays(s.MaxDays)),
		cache:   analytics.NewCache(s.CacheSize, metrics),
		persons: persons,
		notify:  s.Notifier,
		auditor: s.Auditor,
		metrics: metrics,
		loc:     loc,
		logger:  logger.Named("engine"),
	}
}

// Restore загружает ledger из хранилища и восстанавливает дедупликатор.
// Используется при старте и как reload по сигналу другого инстанса.
func (e *Engine) Restore(ctx context.Context) error {
	if err := e.ledger.Load(ctx); err != nil {
		return err
	}
	e.dedup.Seed(e.ledger.Latest())
	view, _ := e.ledger.Snapshot()
	e.metrics.LedgerEntries.Set(float64(view.Len()))
	return nil
}

// Refresh дочитывает записи других инстансов и досеивает ими дедупликатор.
// Вызывается на сигнал о записи, поэтому не трогает всю таблицу.
func (e *Engine) Refresh(ctx context.Context) error {
	added, err := e.ledger.Refresh(ctx)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return nil
	}
	e.dedup.Seed(ledger.LatestOf(slices.Values(added)))
	view, _ := e.ledger.Snapshot()
	e.metrics.LedgerEntries.Set(float64(view.Len()))
	return nil
}

// Submit обрабатывает одно событие распознавания.
// Ошибки: ErrUnknownPerson (событие отброшено), ErrStorageUnavailable (можно повторить).
// Повторы за день ошибкой не считаются и возвращаются статусом.
func (e *Engine) Submit(ctx context.Context, ev domain.RecognitionEvent) (domain.SubmitOutcome, error) {
	start := time.Now()
	out, err := e.submit(ctx, ev)

	status := string(out.Status)
	if err != nil {
		status = "error"
	}
	elapsed := time.Since(start)
	e.metrics.SubmitDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	e.metrics.EventsTotal.WithLabelValues(status).Inc()

	if e.auditor != nil {
		rec := audit.Event{
			ID:         uuid.New().String(),
			TraceID:    TraceID(ctx),
			Transport:  Transport(ctx),
			PersonID:   ev.PersonID,
			Confidence: ev.Confidence,
			DetectedAt: ev.DetectedAt,
			Status:     status,
			DurationMs: elapsed.Milliseconds(),
		}
		if out.Entry != nil {
			rec.EntryID = out.Entry.ID
		}
		if err != nil {
			rec.Error = err.Error()
		}
		e.auditor.Log(rec)
	}
	return out, err
}

func (e *Engine) submit(ctx context.Context, ev domain.RecognitionEvent) (domain.SubmitOutcome, error) {
	// 1. Кто это (до дедупликации, чтобы неизвестные не засоряли состояние)
	name, err := e.resolve(ev)
	if err != nil {
		return domain.SubmitOutcome{}, err
	}

	// 2. Дедупликация (самый дешевый фильтр, in-memory)
	dec := e.dedup.Observe(ev)
	switch dec.Verdict {
	case VerdictLowConfidence:
		return domain.SubmitOutcome{Status: domain.StatusLowConfidence}, nil
	case VerdictDuplicate:
		return domain.SubmitOutcome{Status: domain.StatusDeduplicated}, nil
	}

	// 3. Запись в ledger (авторитетная проверка уникальности)
	entry, err := e.ledger.Append(ctx, dec.Commit, name, ev.Confidence)
	switch {
	case errors.Is(err, domain.ErrAlreadyRecorded):
		return domain.SubmitOutcome{Status: domain.StatusAlreadyRecorded}, nil
	case err != nil:
		// Без отката сбой хранилища подавил бы все события человека до конца дня
		e.dedup.Rollback(dec)
		e.metrics.ErrorTotal.WithLabelValues("storage").Inc()
		return domain.SubmitOutcome{}, err
	}

	view, _ := e.ledger.Snapshot()
	e.metrics.LedgerEntries.Set(float64(view.Len()))
	if e.notify != nil {
		e.notify.Appended(ctx, entry)
	}

	e.logger.Info("attendance recorded",
		zap.Int64("id", entry.ID),
		zap.String("person_id", entry.PersonID),
		zap.String("name", entry.PersonName),
		zap.String("date", entry.Date),
		zap.String("time", entry.Time))

	return domain.SubmitOutcome{Status: domain.StatusRecorded, Entry: &entry}, nil
}

// resolve: реестр, затем имя из события, иначе ErrUnknownPerson
func (e *Engine) resolve(ev domain.RecognitionEvent) (string, error) {
	if ev.PersonID != "" {
		if p, ok := e.persons.Resolve(ev.PersonID); ok {
			return p.Name, nil
		}
		if ev.PersonName != "" {
			e.logger.Warn("person not in registry, using name from event",
				zap.String("person_id", ev.PersonID), zap.String("name", ev.PersonName))
			return ev.PersonName, nil
		}
	}

	e.metrics.ErrorTotal.WithLabelValues("unknown_person").Inc()
	e.logger.Warn("recognition event dropped: unknown person",
		zap.String("person_id", ev.PersonID),
		zap.Time("detected_at", ev.DetectedAt))
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownPerson, ev.PersonID)
}

// Analytics считает статистику за days календарных дней, заканчивающихся на asOf
func (e *Engine) Analytics(ctx context.Context, days int, asOf time.Time) (domain.AnalyticsResult, error) {
	w := domain.AnalyticsWindow{Days: days, AsOf: asOf}
	// До кэша: вычисление идет в отдельной горутине, там уже поздно
	if err := e.agg.Validate(w); err != nil {
		e.metrics.ErrorTotal.WithLabelValues("invalid_window").Inc()
		return domain.AnalyticsResult{}, err
	}

	view, version := e.ledger.Snapshot()
	total := e.persons.Count()

	return e.cache.GetOrCompute(ctx, w, version, total,
		func(w domain.AnalyticsWindow) (domain.AnalyticsResult, error) {
			return e.agg.Compute(view, total, w)
		})
}

// ExportCSV — daily_trend окна в CSV
func (e *Engine) ExportCSV(ctx context.Context, days int, asOf time.Time) ([]byte, error) {
	res, err := e.Analytics(ctx, days, asOf)
	if err != nil {
		return nil, err
	}
	return analytics.ToCSV(res), nil
}

// Records — последние записи, самые свежие первыми. limit <= 0 — все.
func (e *Engine) Records(ctx context.Context, limit int) ([]domain.AttendanceEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	view, _ := e.ledger.Snapshot()
	return view.Recent(limit), nil
}

// Summary — счетчики дашборда на момент now
func (e *Engine) Summary(ctx context.Context, now time.Time) (domain.Summary, error) {
	if err := ctx.Err(); err != nil {
		return domain.Summary{}, err
	}
	view, _ := e.ledger.Snapshot()
	today := now.In(e.loc).Format(domain.DateLayout)

	people := make(map[string]struct{})
	todayCount := 0
	for entry := range view.All() {
		people[entry.PersonID] = struct{}{}
		if entry.Date == today {
			todayCount++
		}
	}

	return domain.Summary{
		TotalRecords:    view.Len(),
		TodayAttendance: todayCount,
		TodayDate:       today,
		UniquePeople:    len(people),
		KnownFaces:      e.persons.Count(),
	}, nil
}
