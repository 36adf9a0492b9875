package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xela07ax/attendance-engine/internal/domain"
	"go.uber.org/zap"
)

type memPersons struct {
	mu      sync.Mutex
	rows    map[string]domain.Person
	listErr error
}

func newMemPersons(ps ...domain.Person) *memPersons {
	m := &memPersons{rows: make(map[string]domain.Person)}
	for _, p := range ps {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPersons) ListPersons(context.Context) ([]domain.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]domain.Person, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPersons) SavePerson(_ context.Context, p domain.Person) (domain.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
	return p, nil
}

func (m *memPersons) DeletePerson(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return domain.ErrPersonNotFound
	}
	delete(m.rows, id)
	return nil
}

func TestRegistryInitAndResolve(t *testing.T) {
	repo := newMemPersons(
		domain.Person{ID: "1", Name: "Zoe", ImageCount: 4},
		domain.Person{ID: "2", Name: "Adam"},
	)
	r := NewRegistry(nil, repo, zap.NewNop())
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Count() != 2 {
		t.Fatalf("expected 2 persons, got %d", r.Count())
	}
	p, ok := r.Resolve("1")
	if !ok || p.Name != "Zoe" || p.ImageCount != 4 {
		t.Fatalf("unexpected person: %+v %v", p, ok)
	}
	list := r.List()
	if len(list) != 2 || list[0].Name != "Adam" || list[1].Name != "Zoe" {
		t.Fatalf("list must be sorted by name: %+v", list)
	}
}

func TestRegistryInitFailure(t *testing.T) {
	repo := newMemPersons()
	repo.listErr = errors.New("db down")
	r := NewRegistry(nil, repo, zap.NewNop())
	if err := r.Init(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRegistryRegisterAndRemove(t *testing.T) {
	repo := newMemPersons()
	r := NewRegistry(nil, repo, zap.NewNop())

	if _, err := r.Register(context.Background(), domain.Person{ID: " 7 ", Name: " Eve "}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p, ok := r.Resolve("7"); !ok || p.Name != "Eve" {
		t.Fatalf("registered person must resolve: %+v", p)
	}

	for _, bad := range []domain.Person{{ID: "", Name: "x"}, {ID: "x", Name: ""}, {ID: "a:b", Name: "x"}} {
		if _, err := r.Register(context.Background(), bad); !errors.Is(err, domain.ErrInvalidPerson) {
			t.Fatalf("expected ErrInvalidPerson for %+v, got %v", bad, err)
		}
	}

	if err := r.Remove(context.Background(), "7"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Resolve("7"); ok {
		t.Fatalf("removed person must not resolve")
	}
	if err := r.Remove(context.Background(), "7"); !errors.Is(err, domain.ErrPersonNotFound) {
		t.Fatalf("expected ErrPersonNotFound, got %v", err)
	}
}

func TestRegistryApplySignal(t *testing.T) {
	r := NewRegistry(nil, newMemPersons(), zap.NewNop())

	r.applySignal("42:Ivan Petrov")
	r.applySignal("43:Name: with colon")
	r.applySignal("garbage")

	if p, ok := r.Resolve("42"); !ok || p.Name != "Ivan Petrov" {
		t.Fatalf("unexpected person: %+v", p)
	}
	if p, _ := r.Resolve("43"); p.Name != "Name: with colon" {
		t.Fatalf("name must be taken after the first colon: %q", p.Name)
	}
	r.applySignal("42:-")
	if _, ok := r.Resolve("42"); ok {
		t.Fatalf("delete signal ignored")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 person, got %d", r.Count())
	}
}

func TestParseAppendSignal(t *testing.T) {
	cases := []struct {
		in     string
		origin string
		ok     bool
	}{
		{"inst-1:p1:2024-01-01", "inst-1", true},
		{"inst-1:2024-01-01", "", false},
		{":p1:2024-01-01", "", false},
		{"nonsense", "", false},
	}
	for _, c := range cases {
		origin, _, ok := parseAppendSignal(c.in)
		if ok != c.ok || origin != c.origin {
			t.Fatalf("%q: got (%q, %v)", c.in, origin, ok)
		}
	}
}

func TestDiffHash(t *testing.T) {
	cached := map[string]string{"1": "Alice", "2": "Bob", "3": "Gone"}
	want := map[string]string{"1": "Alice", "2": "Robert", "4": "Eve"}

	set, del := diffHash(cached, want)
	if len(set) != 2 || set["2"] != "Robert" || set["4"] != "Eve" {
		t.Fatalf("unexpected set: %v", set)
	}
	if len(del) != 1 || del[0] != "3" {
		t.Fatalf("unexpected delete: %v", del)
	}

	set, del = diffHash(want, want)
	if len(set) != 0 || len(del) != 0 {
		t.Fatalf("identical hashes must produce no changes: %v %v", set, del)
	}
}
