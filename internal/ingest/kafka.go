package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/engine"
	"github.com/xela07ax/attendance-engine/internal/infra"
	"go.uber.org/zap"
)

// messageReader — то, что нужно консьюмеру от kafka.Reader
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer читает события распознавания из топика и отдает их ядру.
// Offset коммитится только после того, как событие обработано: сбой
// хранилища повторяется на месте, пока не пройдет или не отменят ctx.
type KafkaConsumer struct {
	reader  messageReader
	sub     Submitter
	metrics *engine.Metrics
	logger  *zap.Logger
	now     func() time.Time

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewKafkaConsumer(cfg infra.KafkaConfig, sub Submitter, metrics *engine.Metrics, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka: consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaConsumer(reader, sub, metrics, logger), nil
}

func newKafkaConsumer(r messageReader, sub Submitter, metrics *engine.Metrics, logger *zap.Logger) *KafkaConsumer {
	if metrics == nil {
		metrics = engine.NewMetrics(nil)
	}
	return &KafkaConsumer{
		reader:     r,
		sub:        sub,
		metrics:    metrics,
		logger:     logger.With(zap.String("mod", "kafka-ingest")),
		now:        time.Now,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

// Run блокируется до отмены ctx или закрытия reader
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	defer c.logger.Info("kafka consumer stopped")

	backoff := c.minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.logger.Error("kafka fetch failed", zap.Duration("backoff", backoff), zap.Error(err))
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		if !c.handle(ctx, msg) {
			return nil // ctx отменен посреди повторов, offset не коммитим
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle возвращает false, только если обработку прервала отмена ctx
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	ev, err := DecodeEvent(msg.Value, c.now())
	if err != nil {
		// Битое сообщение повторять бессмысленно: пропускаем, но оставляем след
		c.metrics.IngestMessages.WithLabelValues("kafka", "decode_error").Inc()
		c.logger.Warn("kafka message skipped: bad payload",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return true
	}

	mctx := engine.WithTransport(engine.WithTraceID(ctx, traceIDFromHeaders(msg.Headers)), "kafka")
	backoff := c.minBackoff
	for {
		_, err := c.sub.Submit(mctx, ev)
		switch {
		case err == nil:
			c.metrics.IngestMessages.WithLabelValues("kafka", "ok").Inc()
			return true
		case errors.Is(err, domain.ErrUnknownPerson):
			c.metrics.IngestMessages.WithLabelValues("kafka", "unknown_person").Inc()
			return true
		case errors.Is(err, domain.ErrStorageUnavailable):
			c.metrics.IngestMessages.WithLabelValues("kafka", "retry").Inc()
			c.logger.Warn("storage unavailable, retrying message",
				zap.Int64("offset", msg.Offset), zap.Duration("backoff", backoff))
			if !sleep(ctx, backoff) {
				return false
			}
			backoff = min(backoff*2, c.maxBackoff)
		default:
			c.metrics.IngestMessages.WithLabelValues("kafka", "error").Inc()
			c.logger.Error("kafka message failed", zap.Int64("offset", msg.Offset), zap.Error(err))
			return true
		}
	}
}

func traceIDFromHeaders(headers []kafka.Header) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, "X-Trace-ID") && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return uuid.New().String()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
