package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      []domain.AttendanceEntry
	insertFn  func(e domain.AttendanceEntry) error
	loadErr   error
	inserts   atomic.Int32
	fullLoads int
	sinceIDs  []int64
}

// Insert ведет себя как таблица: ID из последовательности, уникальность (person_id, date)
func (s *fakeStore) Insert(ctx context.Context, e domain.AttendanceEntry) (int64, error) {
	s.inserts.Add(1)
	if s.insertFn != nil {
		if err := s.insertFn(e); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxID int64
	for _, r := range s.rows {
		if r.Key() == e.Key() {
			return 0, ErrDuplicate
		}
		maxID = max(maxID, r.ID)
	}
	e.ID = maxID + 1
	s.rows = append(s.rows, e)
	return e.ID, nil
}

func (s *fakeStore) LoadAll(ctx context.Context) ([]domain.AttendanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.fullLoads++
	out := make([]domain.AttendanceEntry, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeStore) LoadSince(ctx context.Context, afterID int64) ([]domain.AttendanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.sinceIDs = append(s.sinceIDs, afterID)
	var out []domain.AttendanceEntry
	for _, r := range s.rows {
		if r.ID > afterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func commit(person, date, clock string) domain.CommitAttendance {
	return domain.CommitAttendance{PersonID: person, Date: date, Time: clock}
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	l := New(nil, zap.NewNop())

	a, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := l.Append(context.Background(), commit("bob", "2024-01-01", "09:05:00"), "Bob", 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("unexpected ids: %d, %d", a.ID, b.ID)
	}
	if l.Version() != 2 {
		t.Fatalf("unexpected version: %d", l.Version())
	}
}

func TestAppendRejectsSameDay(t *testing.T) {
	l := New(nil, zap.NewNop())
	ctx := context.Background()

	if _, err := l.Append(ctx, commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := l.Append(ctx, commit("alice", "2024-01-01", "17:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
	if _, err := l.Append(ctx, commit("alice", "2024-01-02", "09:00:00"), "Alice", 0.9); err != nil {
		t.Fatalf("next day must be accepted: %v", err)
	}
	if l.Version() != 2 {
		t.Fatalf("rejected append must not bump version, got %d", l.Version())
	}
}

func TestAppendValidatesCommit(t *testing.T) {
	l := New(nil, zap.NewNop())
	bad := []domain.CommitAttendance{
		commit("", "2024-01-01", "09:00:00"),
		commit("alice", "01/01/2024", "09:00:00"),
		commit("alice", "2024-01-01", "9am"),
	}
	for _, c := range bad {
		if _, err := l.Append(context.Background(), c, "Alice", 1); err == nil {
			t.Fatalf("expected validation error for %+v", c)
		}
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	l := New(nil, zap.NewNop())
	ctx := context.Background()
	l.Append(ctx, commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)

	view, version := l.Snapshot()
	again, againVersion := l.Snapshot()
	if version != againVersion || view.Len() != again.Len() || view.At(0) != again.At(0) {
		t.Fatalf("snapshots without append must be identical")
	}

	for i := 0; i < 100; i++ {
		l.Append(ctx, commit("bob", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format(domain.DateLayout), "08:00:00"), "Bob", 0.9)
	}
	if view.Len() != 1 || view.At(0).PersonID != "alice" {
		t.Fatalf("old view changed after appends: len=%d", view.Len())
	}
	latest, latestVersion := l.Snapshot()
	if latest.Len() != 101 || latestVersion != version+100 {
		t.Fatalf("unexpected latest snapshot: len=%d version=%d", latest.Len(), latestVersion)
	}
}

func TestConcurrentAppendSameKey(t *testing.T) {
	l := New(&fakeStore{}, zap.NewNop())
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		already   atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Append(context.Background(), commit("bob", "2024-01-01", "10:00:00"), "Bob", 0.9)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrAlreadyRecorded):
				already.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
		// Параллельные читатели не должны мешать писателям
		go func() {
			view, _ := l.Snapshot()
			for range view.All() {
			}
		}()
	}
	wg.Wait()
	if succeeded.Load() != 1 || already.Load() != 63 {
		t.Fatalf("expected 1 success and 63 duplicates, got %d/%d", succeeded.Load(), already.Load())
	}
}

func TestAppendStorageFailure(t *testing.T) {
	store := &fakeStore{insertFn: func(domain.AttendanceEntry) error { return errors.New("connection refused") }}
	l := New(store, zap.NewNop())

	_, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	view, version := l.Snapshot()
	if view.Len() != 0 || version != 0 {
		t.Fatalf("failed write must not be visible: len=%d version=%d", view.Len(), version)
	}

	store.insertFn = nil
	if _, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9); err != nil {
		t.Fatalf("retry after recovery must succeed: %v", err)
	}
}

type slowStore struct{ fakeStore }

func (s *slowStore) Insert(ctx context.Context, e domain.AttendanceEntry) (int64, error) {
	select {
	case <-time.After(5 * time.Second):
		return 1, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestAppendStorageTimeout(t *testing.T) {
	l := New(&slowStore{}, zap.NewNop(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("append must fail fast on a stalled store")
	}
}

func TestAppendStoreDuplicate(t *testing.T) {
	store := &fakeStore{insertFn: func(domain.AttendanceEntry) error { return ErrDuplicate }}
	l := New(store, zap.NewNop())

	_, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
}

func TestLoadRebuildsIndex(t *testing.T) {
	store := &fakeStore{rows: []domain.AttendanceEntry{
		{ID: 2, PersonID: "bob", PersonName: "Bob", Date: "2024-01-01", Time: "09:30:00"},
		{ID: 1, PersonID: "alice", PersonName: "Alice", Date: "2024-01-01", Time: "09:00:00"},
		{ID: 3, PersonID: "alice", PersonName: "Alice", Date: "2024-01-02", Time: "08:45:00"},
	}}
	l := New(store, zap.NewNop())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, version := l.Snapshot()
	if view.Len() != 3 || view.At(0).ID != 1 || version != 1 {
		t.Fatalf("unexpected view after load: len=%d first=%d version=%d", view.Len(), view.At(0).ID, version)
	}
	_, err := l.Append(context.Background(), commit("alice", "2024-01-02", "12:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrAlreadyRecorded) {
		t.Fatalf("loaded index must reject duplicates, got %v", err)
	}
	e, err := l.Append(context.Background(), commit("bob", "2024-01-02", "12:00:00"), "Bob", 0.9)
	if err != nil || e.ID != 4 {
		t.Fatalf("expected id 4 after load, got %d (%v)", e.ID, err)
	}

	latest := l.Latest()
	if latest["alice"].Date != "2024-01-02" || latest["bob"].Date != "2024-01-02" {
		t.Fatalf("unexpected latest: %+v", latest)
	}
}

func TestLoadFailureKeepsSnapshot(t *testing.T) {
	store := &fakeStore{rows: []domain.AttendanceEntry{
		{ID: 1, PersonID: "alice", PersonName: "Alice", Date: "2024-01-01", Time: "09:00:00"},
	}}
	l := New(store, zap.NewNop())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.loadErr = errors.New("db down")
	err := l.Load(context.Background())
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	view, _ := l.Snapshot()
	if view.Len() != 1 {
		t.Fatalf("last good snapshot must be served, got len=%d", view.Len())
	}
}

func TestViewRecent(t *testing.T) {
	v := NewView([]domain.AttendanceEntry{{ID: 1}, {ID: 2}, {ID: 3}})
	got := v.Recent(2)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Fatalf("unexpected recent: %+v", got)
	}
	if all := v.Recent(0); len(all) != 3 || all[2].ID != 1 {
		t.Fatalf("unexpected all: %+v", all)
	}
}

func TestTwoLedgersShareStore(t *testing.T) {
	store := &fakeStore{}
	a := New(store, zap.NewNop())
	b := New(store, zap.NewNop())
	ctx := context.Background()

	alice, err := a.Append(ctx, commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// b ничего не знает о записи a, но ID выдает хранилище
	bob, err := b.Append(ctx, commit("bob", "2024-01-01", "09:05:00"), "Bob", 0.9)
	if err != nil {
		t.Fatalf("second instance must not collide on id: %v", err)
	}
	if alice.ID != 1 || bob.ID != 2 {
		t.Fatalf("unexpected ids: %d, %d", alice.ID, bob.ID)
	}

	// Тот же человек и день через другой инстанс — уже записано, а не отказ хранилища
	_, err = b.Append(ctx, commit("alice", "2024-01-01", "10:00:00"), "Alice", 0.9)
	if !errors.Is(err, domain.ErrAlreadyRecorded) {
		t.Fatalf("expected ErrAlreadyRecorded, got %v", err)
	}
}

func TestRefreshReadsOnlyNewRows(t *testing.T) {
	store := &fakeStore{rows: []domain.AttendanceEntry{
		{ID: 1, PersonID: "alice", PersonName: "Alice", Date: "2024-01-01", Time: "09:00:00"},
	}}
	a := New(store, zap.NewNop())
	b := New(store, zap.NewNop())
	ctx := context.Background()
	if err := b.Load(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := a.Append(ctx, commit("bob", "2024-01-01", "09:05:00"), "Bob", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	own, err := b.Append(ctx, commit("carol", "2024-01-01", "09:10:00"), "Carol", 0.9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	added, err := b.Refresh(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(added) != 1 || added[0].PersonID != "bob" || added[0].ID != 2 {
		t.Fatalf("expected only bob to be added, got %+v", added)
	}
	if store.fullLoads != 1 || len(store.sinceIDs) != 1 || store.sinceIDs[0] != 1 {
		t.Fatalf("refresh must read past the watermark only: full=%d since=%v", store.fullLoads, store.sinceIDs)
	}

	view, _ := b.Snapshot()
	if view.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", view.Len())
	}
	version := b.Version()
	added, err = b.Refresh(ctx)
	if err != nil || len(added) != 0 {
		t.Fatalf("second refresh must add nothing, got %+v (%v)", added, err)
	}
	if b.Version() != version {
		t.Fatalf("empty refresh must not bump version")
	}
	if store.sinceIDs[1] != own.ID {
		t.Fatalf("watermark must advance to %d, got %d", own.ID, store.sinceIDs[1])
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	store := &fakeStore{}
	l := New(store, zap.NewNop())
	if _, err := l.Append(context.Background(), commit("alice", "2024-01-01", "09:00:00"), "Alice", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.loadErr = errors.New("db down")
	if _, err := l.Refresh(context.Background()); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if view, _ := l.Snapshot(); view.Len() != 1 {
		t.Fatalf("last snapshot must be served, got len=%d", view.Len())
	}
}

func TestViewRecentOrdersByDayAndTime(t *testing.T) {
	// Третья запись пришла последней, но относится к прошлому дню
	v := NewView([]domain.AttendanceEntry{
		{ID: 1, PersonID: "a", Date: "2024-01-02", Time: "09:00:00"},
		{ID: 2, PersonID: "b", Date: "2024-01-02", Time: "08:30:00"},
		{ID: 3, PersonID: "c", Date: "2024-01-01", Time: "18:00:00"},
		{ID: 4, PersonID: "d", Date: "2024-01-02", Time: "09:00:00"},
	})
	got := v.Recent(0)
	want := []int64{4, 1, 2, 3}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d (%+v)", i, id, got[i].ID, got)
		}
	}
	if top := v.Recent(1); len(top) != 1 || top[0].ID != 4 {
		t.Fatalf("unexpected top: %+v", top)
	}
}
