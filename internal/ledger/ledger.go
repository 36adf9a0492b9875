package ledger

/*
Файл ledger.go реализует Attendance Ledger — единственный источник правды о посещаемости.

Устройство:
- Arena: append-only слайс записей, который принадлежит писателю. Читателям отдается
  срез arena[:n:n] с обрезанной емкостью, поэтому последующие append никогда не
  пишут в видимую читателю часть массива.
- Index: map[(person_id, date)] для O(1) проверки уникальности. Это авторитетная
  проверка инварианта "одна запись на человека в день", дедупликатор лишь ускоряет.
- Snapshot: атомарный указатель на неизменяемое состояние (записи + версия).
  Читатели не берут блокировок вообще, писатели сериализуются мьютексом.
- Persistence: Store вызывается под ограниченным таймаутом. Сбой хранилища
  поднимается наверх как ErrStorageUnavailable, запись в памяти не появляется.
  ID выдает хранилище: несколько инстансов пишут в одну таблицу без коллизий.
- Sync: Load перечитывает все (старт, переподключение), Refresh дочитывает
  только записи с ID больше watermark (сигнал о записи другим инстансом).
*/

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"go.uber.org/zap"
)

// ErrDuplicate возвращает Store, если ключ (person_id, date) уже занят в хранилище
var ErrDuplicate = errors.New("store: duplicate attendance key")

// Store определяет, куда физически сохраняются записи.
// Insert возвращает ID, присвоенный хранилищем (e.ID игнорируется).
type Store interface {
	Insert(ctx context.Context, e domain.AttendanceEntry) (int64, error)
	LoadAll(ctx context.Context) ([]domain.AttendanceEntry, error)
	LoadSince(ctx context.Context, afterID int64) ([]domain.AttendanceEntry, error)
}

type state struct {
	entries []domain.AttendanceEntry
	version uint64
}

type Ledger struct {
	mu     sync.Mutex // Сериализует Append/Load
	cur    atomic.Pointer[state]
	arena  []domain.AttendanceEntry
	index  map[domain.EntryKey]int
	lastID int64 // Наибольший ID в arena
	synced int64 // ID, до которого прочитано хранилище

	store       Store // nil — только память (тесты, dry-run)
	timeout     time.Duration
	loadTimeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Ledger)

// WithTimeout ограничивает каждое обращение к Store
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLoadTimeout ограничивает полную загрузку; она дольше одиночной записи
func WithLoadTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.loadTimeout = d
		}
	}
}

// WithClock подменяет источник времени для CreatedAt
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		index:   make(map[domain.EntryKey]int),
		store:   store,
		timeout:     2 * time.Second,
		loadTimeout: 30 * time.Second,
		now:         time.Now,
		logger:      logger.With(zap.String("mod", "ledger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cur.Store(&state{})
	return l
}

// Append — единственный путь записи. Идемпотентен: повтор по тому же ключу
// дает ErrAlreadyRecorded, а не вторую запись.
// Отмены нет: запись либо завершается, либо быстро падает по таймауту.
func (l *Ledger) Append(ctx context.Context, c domain.CommitAttendance, personName string, confidence float64) (domain.AttendanceEntry, error) {
	if err := validateCommit(c); err != nil {
		return domain.AttendanceEntry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.EntryKey{PersonID: c.PersonID, Date: c.Date}
	if _, ok := l.index[key]; ok {
		return domain.AttendanceEntry{}, domain.ErrAlreadyRecorded
	}

	entry := domain.AttendanceEntry{
		ID:         l.lastID + 1, // Без хранилища; иначе ID из Insert
		PersonID:   c.PersonID,
		PersonName: personName,
		Date:       c.Date,
		Time:       c.Time,
		Confidence: confidence,
		CreatedAt:  l.now(),
	}

	if l.store != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		id, err := l.store.Insert(sctx, entry)
		cancel()
		if errors.Is(err, ErrDuplicate) {
			// Запись сделал другой инстанс; появится у нас после Refresh
			return domain.AttendanceEntry{}, domain.ErrAlreadyRecorded
		}
		if err != nil {
			l.logger.Error("ledger persist failed",
				zap.String("person_id", c.PersonID),
				zap.String("date", c.Date),
				zap.Error(err))
			return domain.AttendanceEntry{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		entry.ID = id
	}

	l.put(entry)
	l.publish()

	return entry, nil
}

// put вызывается под l.mu
func (l *Ledger) put(e domain.AttendanceEntry) {
	l.arena = append(l.arena, e)
	l.index[e.Key()] = len(l.arena) - 1
	if e.ID > l.lastID {
		l.lastID = e.ID
	}
}

// Snapshot возвращает неизменяемое представление и версию на момент захвата
func (l *Ledger) Snapshot() (View, uint64) {
	s := l.cur.Load()
	return View{entries: s.entries}, s.version
}

// Version — текущая версия, токен инвалидации кэша
func (l *Ledger) Version() uint64 {
	return l.cur.Load().version
}

// Load перечитывает хранилище целиком. Используется при старте и по сигналу
// о записи другим инстансом. При ошибке остается последний удачный snapshot.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, l.loadTimeout)
	defer cancel()

	loaded, err := l.store.LoadAll(sctx)
	if err != nil {
		l.logger.Warn("ledger load failed, serving last snapshot", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })

	arena := make([]domain.AttendanceEntry, 0, len(loaded))
	index := make(map[domain.EntryKey]int, len(loaded))
	var lastID int64
	for _, e := range loaded {
		if _, dup := index[e.Key()]; dup {
			l.logger.Warn("duplicate entry in store skipped",
				zap.Int64("id", e.ID),
				zap.String("person_id", e.PersonID),
				zap.String("date", e.Date))
			continue
		}
		arena = append(arena, e)
		index[e.Key()] = len(arena) - 1
		if e.ID > lastID {
			lastID = e.ID
		}
	}

	l.arena = arena
	l.index = index
	l.lastID = lastID
	l.synced = lastID
	l.publish()

	l.logger.Info("ledger loaded", zap.Int("records", len(arena)), zap.Int64("last_id", lastID))
	return nil
}

// Refresh дочитывает записи, появившиеся в хранилище после последнего чтения,
// и возвращает добавленные. Запрос к хранилищу идет без writer-мьютекса:
// локальные Append не ждут сеть. Свои записи с ID выше watermark
// отсеиваются по индексу (person_id, date).
func (l *Ledger) Refresh(ctx context.Context) ([]domain.AttendanceEntry, error) {
	if l.store == nil {
		return nil, nil
	}

	l.mu.Lock()
	after := l.synced
	l.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	fresh, err := l.store.LoadSince(sctx, after)
	if err != nil {
		l.logger.Warn("ledger refresh failed, serving last snapshot", zap.Int64("after_id", after), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	l.mu.Lock()
	defer l.mu.Unlock()

	added := make([]domain.AttendanceEntry, 0, len(fresh))
	for _, e := range fresh {
		if e.ID > l.synced {
			l.synced = e.ID
		}
		if _, ok := l.index[e.Key()]; ok {
			continue
		}
		l.put(e)
		added = append(added, e)
	}
	if len(added) > 0 {
		l.publish()
	}
	return added, nil
}

// Latest возвращает последнюю (по дате и времени) запись каждого человека.
// Нужен для восстановления состояния дедупликатора после рестарта.
func (l *Ledger) Latest() map[string]domain.CommitAttendance {
	view, _ := l.Snapshot()
	return LatestOf(view.All())
}

// LatestOf — то же, что Latest, для произвольного набора записей
func LatestOf(entries iter.Seq[domain.AttendanceEntry]) map[string]domain.CommitAttendance {
	out := make(map[string]domain.CommitAttendance)
	for e := range entries {
		prev, ok := out[e.PersonID]
		if !ok || e.Date > prev.Date || (e.Date == prev.Date && e.Time > prev.Time) {
			out[e.PersonID] = domain.CommitAttendance{PersonID: e.PersonID, Date: e.Date, Time: e.Time}
		}
	}
	return out
}

// publish вызывается под l.mu
func (l *Ledger) publish() {
	n := len(l.arena)
	prev := l.cur.Load()
	l.cur.Store(&state{
		entries: l.arena[:n:n],
		version: prev.version + 1,
	})
}

func validateCommit(c domain.CommitAttendance) error {
	if c.PersonID == "" {
		return fmt.Errorf("ledger: person id is empty")
	}
	if _, err := time.Parse(domain.DateLayout, c.Date); err != nil {
		return fmt.Errorf("ledger: bad date %q: %w", c.Date, err)
	}
	if _, err := time.Parse(domain.TimeLayout, c.Time); err != nil {
		return fmt.Errorf("ledger: bad time %q: %w", c.Time, err)
	}
	return nil
}
