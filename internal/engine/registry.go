package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/infra"
	"go.uber.org/zap"
)

// PersonStore — постоянное хранилище зарегистрированных лиц
type PersonStore interface {
	ListPersons(ctx context.Context) ([]domain.Person, error)
	SavePerson(ctx context.Context, p domain.Person) (domain.Person, error)
	DeletePerson(ctx context.Context, id string) error
}

// Registry — реестр известных лиц. Hot path (Resolve, Count) читает только L1,
// L2 (Redis hash) и Pub/Sub держат инстансы в согласованном состоянии.
type Registry struct {
	repo   PersonStore
	rdb    *redis.Client // nil — один инстанс без Redis
	logger *zap.Logger

	mu      sync.RWMutex
	persons map[string]domain.Person
}

func NewRegistry(rdb *redis.Client, repo PersonStore, logger *zap.Logger) *Registry {
	return &Registry{
		persons: make(map[string]domain.Person),
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "registry")),
	}
}

// Init загружает реестр из БД при старте и при каждом переподключении к Redis
func (r *Registry) Init(ctx context.Context) error {
	list, err := r.repo.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch persons from DB: %w", err)
	}

	names := make(map[string]string, len(list))
	fresh := make(map[string]domain.Person, len(list))
	for _, p := range list {
		names[p.ID] = p.Name
		fresh[p.ID] = p
	}
	r.mu.Lock()
	r.persons = fresh
	r.mu.Unlock()
	r.logger.Info("registry loaded", zap.Int("persons", len(fresh)))

	// L1 уже актуален, сбой Redis не мешает старту
	if err := r.reconcileL2(ctx, names); err != nil {
		r.logger.Warn("redis registry left stale", zap.Error(err))
	}
	return nil
}

// StartListener подписывается на изменения реестра от других инстансов
func (r *Registry) StartListener(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	listenSignals(ctx, r.rdb, r.logger, infra.RedisChanPersons,
		func() error { return r.Init(ctx) }, // Переподключение
		r.applySignal,
	)
}

// applySignal разбирает "person_id:name" или "person_id:-" (удаление)
func (r *Registry) applySignal(payload string) {
	id, name, ok := strings.Cut(payload, ":")
	if !ok || id == "" || name == "" {
		r.logger.Error("invalid signal format", zap.String("payload", payload))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "-" {
		delete(r.persons, id)
		return
	}
	p := r.persons[id]
	p.ID, p.Name = id, name
	r.persons[id] = p
}

// Register сохраняет человека и рассылает изменение остальным инстансам
func (r *Registry) Register(ctx context.Context, p domain.Person) (domain.Person, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" {
		return domain.Person{}, fmt.Errorf("%w: id and name are required", domain.ErrInvalidPerson)
	}
	if strings.Contains(p.ID, ":") {
		return domain.Person{}, fmt.Errorf("%w: id must not contain ':'", domain.ErrInvalidPerson)
	}

	saved, err := r.repo.SavePerson(ctx, p)
	if err != nil {
		return domain.Person{}, fmt.Errorf("registry: save person: %w", err)
	}

	r.mu.Lock()
	r.persons[saved.ID] = saved
	r.mu.Unlock()

	r.broadcast(ctx, saved.ID, saved.Name, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, infra.RedisKeyPersons, saved.ID, saved.Name)
	})
	return saved, nil
}

// Remove удаляет человека. Его записи в ledger остаются: история неизменна.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.repo.DeletePerson(ctx, id); err != nil {
		return fmt.Errorf("registry: delete person: %w", err)
	}

	r.mu.Lock()
	delete(r.persons, id)
	r.mu.Unlock()

	r.broadcast(ctx, id, "-", func(pipe redis.Pipeliner) {
		pipe.HDel(ctx, infra.RedisKeyPersons, id)
	})
	return nil
}

// broadcast обновляет L2 и публикует сигнал одной транзакцией.
// Ошибка Redis не откатывает запись в БД: остальные догонят на reconnect.
func (r *Registry) broadcast(ctx context.Context, id, name string, mutate func(redis.Pipeliner)) {
	if r.rdb == nil {
		return
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		mutate(pipe)
		pipe.Publish(ctx, infra.RedisChanPersons, id+":"+name)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to broadcast registry change", zap.String("person_id", id), zap.Error(err))
	}
}

// Resolve — максимально быстрый метод для проверки в Hot Path
func (r *Registry) Resolve(id string) (domain.Person, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.persons[id]
	return p, ok
}

// Count — число известных лиц (total_registered)
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.persons)
}

// List возвращает реестр, отсортированный по имени
func (r *Registry) List() []domain.Person {
	r.mu.RLock()
	out := make([]domain.Person, 0, len(r.persons))
	for _, p := range r.persons {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
