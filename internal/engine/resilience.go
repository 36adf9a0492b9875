package engine

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var errSubscriptionClosed = errors.New("subscription channel closed")

// Пауза между попытками подписки растет до maxResubscribeDelay
const (
	minResubscribeDelay = time.Second
	maxResubscribeDelay = 30 * time.Second
)

// signalChannel — подписка на канал Redis, которая переживает обрывы связи.
// После каждой успешной (пере)подписки вызывается resync: сигналы,
// пришедшие пока подписки не было, потеряны.
type signalChannel struct {
	rdb     *redis.Client
	name    string
	resync  func() error
	handle  func(payload string)
	logger  *zap.Logger
	retries int
}

// listenSignals блокируется до отмены ctx
func listenSignals(ctx context.Context, rdb *redis.Client, logger *zap.Logger, channel string,
	resync func() error, handle func(payload string)) {
	sc := &signalChannel{
		rdb:    rdb,
		name:   channel,
		resync: resync,
		handle: handle,
		logger: logger.With(zap.String("chan", channel)),
	}
	sc.run(ctx)
}

func (sc *signalChannel) run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := sc.session(ctx); err != nil {
			sc.retries++
			delay := sc.backoff()
			sc.logger.Error("redis subscription lost",
				zap.Int("retries", sc.retries), zap.Duration("next_try", delay), zap.Error(err))
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}
}

// session держит одну подписку. nil — только при отмене ctx.
func (sc *signalChannel) session(ctx context.Context) error {
	pubsub := sc.rdb.Subscribe(ctx, sc.name)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if sc.retries > 0 {
		sc.logger.Info("redis subscription restored", zap.Int("after_retries", sc.retries))
	}
	sc.retries = 0

	if err := sc.resync(); err != nil {
		sc.logger.Error("resync after subscribe failed", zap.Error(err))
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			sc.handle(msg.Payload)
		}
	}
}

func (sc *signalChannel) backoff() time.Duration {
	d := minResubscribeDelay
	for i := 1; i < sc.retries && d < maxResubscribeDelay; i++ {
		d *= 2
	}
	return min(d, maxResubscribeDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
