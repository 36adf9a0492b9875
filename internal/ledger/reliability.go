package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ReliabilitySettings настраивает защиту хранилища
type ReliabilitySettings struct {
	Attempts      uint
	WriteRPS      float64
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

// ReliableStore оборачивает Store: Rate Limiter -> Circuit Breaker -> Retries.
// Общий таймаут задает Ledger через контекст, здесь его не продлеваем.
type ReliableStore struct {
	next     Store
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
}

func NewReliableStore(next Store, s ReliabilitySettings, logger *zap.Logger) *ReliableStore {
	log := logger.With(zap.String("mod", "store-breaker"))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "attendance-store",
		MaxRequests: s.CBMaxRequests,
		Interval:    s.CBInterval,
		Timeout:     s.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Дубликат — это ответ хранилища, а не его отказ
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDuplicate)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	attempts := s.Attempts
	if attempts == 0 {
		attempts = 1
	}
	rps := s.WriteRPS
	if rps <= 0 {
		rps = 100
	}

	return &ReliableStore{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps/5)+1),
		attempts: attempts,
	}
}

func (s *ReliableStore) Insert(ctx context.Context, e domain.AttendanceEntry) (int64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit exceeded: %w", err)
	}
	var id int64
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.retry(ctx, func() error {
			var callErr error
			id, callErr = s.next.Insert(ctx, e)
			return callErr
		})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *ReliableStore) LoadAll(ctx context.Context) ([]domain.AttendanceEntry, error) {
	return s.load(ctx, s.next.LoadAll)
}

func (s *ReliableStore) LoadSince(ctx context.Context, afterID int64) ([]domain.AttendanceEntry, error) {
	return s.load(ctx, func(ctx context.Context) ([]domain.AttendanceEntry, error) {
		return s.next.LoadSince(ctx, afterID)
	})
}

func (s *ReliableStore) load(ctx context.Context, fn func(context.Context) ([]domain.AttendanceEntry, error)) ([]domain.AttendanceEntry, error) {
	var out []domain.AttendanceEntry
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.retry(ctx, func() error {
			var callErr error
			out, callErr = fn(ctx)
			return callErr
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ReliableStore) retry(ctx context.Context, fn func() error) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Дубликат и истекший контекст повторять бессмысленно
			return !errors.Is(err, ErrDuplicate) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	return r.Do(fn)
}
