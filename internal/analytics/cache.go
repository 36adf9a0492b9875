package analytics

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Observer получает события попаданий/промахов (метрики)
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Key — (days, as_of до минуты, версия ledger, размер реестра).
// Реестр лиц меняет total_registered без новой версии ledger, поэтому он тоже в ключе.
type Key struct {
	Days       int
	AsOf       int64
	Version    uint64
	Registered int
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%d|%d|%d", k.Days, k.AsOf, k.Version, k.Registered)
}

// KeyFor нормализует окно в ключ кэша
func KeyFor(w domain.AnalyticsWindow, version uint64, registered int) Key {
	return Key{Days: w.Days, AsOf: w.AsOf.Truncate(time.Minute).Unix(), Version: version, Registered: registered}
}

type cacheItem struct {
	key Key
	val domain.AnalyticsResult
}

// Cache — LRU для результатов агрегации. Это только оптимизация:
// промах всегда безопасно пересчитать, ошибки не кэшируются.
type Cache struct {
	mu    sync.Mutex // Защищает только учет LRU
	size  int
	ll    *list.List
	items map[Key]*list.Element

	group singleflight.Group // Склеивает одновременные промахи по одному ключу
	obs   Observer
}

func NewCache(size int, obs Observer) *Cache {
	if size <= 0 {
		size = 32
	}
	return &Cache{
		size:  size,
		ll:    list.New(),
		items: make(map[Key]*list.Element),
		obs:   obs,
	}
}

// GetOrCompute возвращает результат из кэша или считает его через compute.
// compute получает окно с AsOf, усеченным до минуты, поэтому ответ не зависит
// от того, был ли он в кэше. Отмена ctx возвращает ctx.Err() без частичного результата.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	w domain.AnalyticsWindow,
	version uint64,
	registered int,
	compute func(w domain.AnalyticsWindow) (domain.AnalyticsResult, error),
) (domain.AnalyticsResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalyticsResult{}, err
	}

	w.AsOf = w.AsOf.Truncate(time.Minute)
	key := KeyFor(w, version, registered)

	if v, ok := c.get(key); ok {
		c.hit()
		return Clone(v), nil
	}
	c.miss()

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		res, err := compute(w)
		if err != nil {
			return nil, err
		}
		c.put(key, res)
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return domain.AnalyticsResult{}, r.Err
		}
		return Clone(r.Val.(domain.AnalyticsResult)), nil
	case <-ctx.Done():
		// Вычисление доживет в фоне и попадет в кэш
		return domain.AnalyticsResult{}, ctx.Err()
	}
}

// Len — текущее число записей
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) get(key Key) (domain.AnalyticsResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return domain.AnalyticsResult{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheItem).val, true
}

func (c *Cache) put(key Key, val domain.AnalyticsResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheItem).val = val
		return
	}
	c.items[key] = c.ll.PushFront(&cacheItem{key: key, val: val})
	for c.ll.Len() > c.size {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

func (c *Cache) hit() {
	if c.obs != nil {
		c.obs.CacheHit()
	}
}

func (c *Cache) miss() {
	if c.obs != nil {
		c.obs.CacheMiss()
	}
}

// Clone делает глубокую копию, чтобы вызывающий владел результатом целиком
func Clone(r domain.AnalyticsResult) domain.AnalyticsResult {
	out := r
	out.DailyTrend = append(make([]domain.DayCount, 0, len(r.DailyTrend)), r.DailyTrend...)
	out.WeeklySummary = append(make([]domain.WeekCount, 0, len(r.WeeklySummary)), r.WeeklySummary...)
	out.AttendanceByPerson = append(make([]domain.PersonCount, 0, len(r.AttendanceByPerson)), r.AttendanceByPerson...)
	out.PeakTimes = append(make([]domain.HourCount, 0, len(r.PeakTimes)), r.PeakTimes...)
	return out
}
