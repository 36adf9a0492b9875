package ledger

import (
	"cmp"
	"iter"
	"slices"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// View — неизменяемое представление ledger. Записи отдаются по значению,
// поэтому читатель не может повлиять ни на ledger, ни на других читателей.
type View struct {
	entries []domain.AttendanceEntry
}

// NewView строит View из копии записей (для тестов и CLI)
func NewView(entries []domain.AttendanceEntry) View {
	cp := make([]domain.AttendanceEntry, len(entries))
	copy(cp, entries)
	return View{entries: cp[:len(cp):len(cp)]}
}

func (v View) Len() int { return len(v.entries) }

func (v View) At(i int) domain.AttendanceEntry { return v.entries[i] }

// All обходит записи в порядке добавления
func (v View) All() iter.Seq[domain.AttendanceEntry] {
	return func(yield func(domain.AttendanceEntry) bool) {
		for _, e := range v.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Recent возвращает до limit записей, самые свежие по (date, time) первыми;
// при равенстве выше запись с большим ID. limit <= 0 — все.
// Порядок не зависит от порядка поступления: догруженное из Kafka событие
// за прошлый день не поднимается над сегодняшними.
func (v View) Recent(limit int) []domain.AttendanceEntry {
	out := make([]domain.AttendanceEntry, len(v.entries))
	copy(out, v.entries)
	slices.SortFunc(out, func(a, b domain.AttendanceEntry) int {
		return cmp.Or(
			cmp.Compare(b.Date, a.Date),
			cmp.Compare(b.Time, a.Time),
			cmp.Compare(b.ID, a.ID),
		)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit:limit]
	}
	return out
}
