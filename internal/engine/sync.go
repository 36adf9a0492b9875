package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/infra"
	"go.uber.org/zap"
)

// LedgerSync рассылает сигнал о новой записи и перечитывает ledger, когда
// запись сделал другой инстанс. Формат: "instance_id:person_id:date".
type LedgerSync struct {
	rdb      *redis.Client
	instance string
	logger   *zap.Logger
}

func NewLedgerSync(rdb *redis.Client, logger *zap.Logger) *LedgerSync {
	return &LedgerSync{
		rdb:      rdb,
		instance: uuid.NewString(),
		logger:   logger.With(zap.String("mod", "ledger-sync")),
	}
}

// Appended публикует сигнал. Ошибка только логируется: запись уже в БД,
// остальные инстансы подхватят ее на ближайшем reconnect.
func (s *LedgerSync) Appended(ctx context.Context, e domain.AttendanceEntry) {
	payload := s.instance + ":" + e.PersonID + ":" + e.Date
	if err := s.rdb.Publish(ctx, infra.RedisChanAttendance, payload).Err(); err != nil {
		s.logger.Warn("failed to publish attendance signal",
			zap.String("person_id", e.PersonID), zap.Error(err))
	}
}

// Listen: на переподключение полный resync (сигналы могли потеряться),
// на каждый чужой сигнал только refresh новых записей
func (s *LedgerSync) Listen(ctx context.Context, resync, refresh func(ctx context.Context) error) {
	listenSignals(ctx, s.rdb, s.logger, infra.RedisChanAttendance,
		func() error { return resync(ctx) },
		func(payload string) {
			origin, rest, ok := parseAppendSignal(payload)
			if !ok {
				s.logger.Error("invalid signal format", zap.String("payload", payload))
				return
			}
			if origin == s.instance {
				return // Свой сигнал
			}
			if err := refresh(ctx); err != nil {
				s.logger.Warn("ledger refresh failed", zap.String("signal", rest), zap.Error(err))
			}
		},
	)
}

func parseAppendSignal(payload string) (origin, rest string, ok bool) {
	origin, rest, ok = strings.Cut(payload, ":")
	if !ok || origin == "" || !strings.Contains(rest, ":") {
		return "", "", false
	}
	return origin, rest, true
}
