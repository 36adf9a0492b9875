package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/attendance-engine/internal/infra"
	"go.uber.org/zap"
)

const warmupLockTTL = 30 * time.Second

// reconcileL2 приводит Redis hash реестра к состоянию БД.
// Сверяет только инстанс, взявший блокировку: остальные получат изменения через Pub/Sub.
func (r *Registry) reconcileL2(ctx context.Context, want map[string]string) error {
	if r.rdb == nil {
		return nil
	}

	lockKey := infra.ReconcileLockKey("persons")
	ok, err := r.rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже сверяет
	}
	defer r.rdb.Del(context.WithoutCancel(ctx), lockKey)

	cached, err := r.rdb.HGetAll(ctx, infra.RedisKeyPersons).Result()
	if err != nil {
		r.logger.Warn("could not read Redis registry, rewriting it from DB", zap.Error(err))
		cached = nil
	}

	set, del := diffHash(cached, want)
	fields := make([]interface{}, 0, len(set)*2)
	for id, name := range set {
		fields = append(fields, id, name)
	}
	if len(set) == 0 && len(del) == 0 {
		return nil
	}

	r.logger.Info("reconciling Redis registry with DB",
		zap.Int("set", len(set)), zap.Int("delete", len(del)))

	pipe := r.rdb.TxPipeline()
	if len(fields) > 0 {
		pipe.HSet(ctx, infra.RedisKeyPersons, fields...)
	}
	if len(del) > 0 {
		pipe.HDel(ctx, infra.RedisKeyPersons, del...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("registry: reconcile redis: %w", err)
	}
	return nil
}

// diffHash: что записать (новые и переименованные) и что удалить (нет в БД)
func diffHash(cached, want map[string]string) (map[string]string, []string) {
	set := make(map[string]string)
	for id, name := range want {
		if cached[id] != name {
			set[id] = name
		}
	}
	var del []string
	for id := range cached {
		if _, ok := want[id]; !ok {
			del = append(del, id)
		}
	}
	return set, del
}
