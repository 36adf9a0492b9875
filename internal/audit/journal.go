package audit

/*
Файл journal.go реализует журнал распознаваний: каждое событие камеры и итог
его обработки пишутся в PostgreSQL, не замедляя hot path.

- Non-blocking: Log только кладет событие в буферизованный канал. При переполнении
  событие сбрасывается с ошибкой в лог (Load Shedding), запись посещения не страдает.
- Batching: воркер копит пачку и пишет ее одним INSERT по таймеру или по размеру.
- Drain Pattern: Stop закрывает канал, воркер вычитывает остаток и делает
  финальный flush. Завершение воркера только через закрытие канала.
- Log и close сериализованы RWMutex: отправка идет под RLock, закрытие под Lock,
  поэтому запись в уже закрытый канал невозможна.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Storage определяет, куда физически пишется журнал
type Storage interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Options struct {
	BufferSize    int           // Емкость очереди
	BatchSize     int           // Размер пачки для записи
	FlushInterval time.Duration // Максимальная задержка записи
}

type Journal struct {
	ch     chan Event
	repo   Storage
	logger *zap.Logger
	opts   Options
	wg     sync.WaitGroup

	mu      sync.RWMutex // RLock — отправка в ch, Lock — close(ch)
	closed  bool
	dropped atomic.Int64
}

func NewJournal(repo Storage, opts Options, logger *zap.Logger) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Journal{
		ch:     make(chan Event, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "journal")),
		opts:   opts,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	// Текущие Log уже отпустили RLock: отправка неблокирующая
	close(j.ch)
	j.mu.Unlock()

	j.logger.Info("stopping journal: channel closed, flushing buffer...")
	j.wg.Wait()
	j.logger.Info("journal stopped gracefully", zap.Int64("dropped", j.dropped.Load()))
}

func (j *Journal) Log(event Event) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.dropped.Add(1)
		j.logger.Warn("journal event dropped: journal is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case j.ch <- event:
	default:
		// Backpressure: теряем запись журнала, но не блокируем камеру
		j.dropped.Add(1)
		j.logger.Error("journal_buffer_overflow",
			zap.String("person_id", event.PersonID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

// Backlog — текущая заполненность очереди
func (j *Journal) Backlog() int { return len(j.ch) }

// Dropped — сколько событий потеряно из-за переполнения или остановки
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]Event, 0, j.opts.BatchSize)
	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: основной контекст при остановке уже отменен
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.repo.WriteBatch(ctx, batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]Event, 0, j.opts.BatchSize)
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				// Канал закрыт в Stop: остаток уже вычитан, финальный сброс
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
