package postgres

/*
Файл attendance_repo.go — физическое хранилище ledger посещаемости.
Даты и время хранятся типами DATE/TIME, наружу отдаются строками в тех же
форматах, что и в домене, через to_char: никаких сдвигов часового пояса.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/attendance-engine/internal/domain"
	"github.com/xela07ax/attendance-engine/internal/ledger"
)

const (
	uniqueViolation  = "23505"
	personDayUniqKey = "attendance_person_day_uniq"
)

// Insert сохраняет запись и возвращает ID, выданный identity-колонкой.
// Нарушение уникальности (person_id, att_date) возвращается как ledger.ErrDuplicate.
func (r *Repo) Insert(ctx context.Context, e domain.AttendanceEntry) (int64, error) {
	query := `
		INSERT INTO attendance (person_id, person_name, att_date, att_time, confidence, created_at)
		VALUES ($1, $2, $3::date, $4::time, $5, $6)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, e.PersonID, e.PersonName, e.Date, e.Time, e.Confidence, e.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == personDayUniqKey {
			return 0, ledger.ErrDuplicate
		}
		return 0, fmt.Errorf("postgres: failed to insert attendance: %w", err)
	}
	return id, nil
}

const selectAttendance = `
		SELECT id, person_id, person_name,
		       to_char(att_date, 'YYYY-MM-DD'), to_char(att_time, 'HH24:MI:SS'),
		       confidence, created_at
		FROM attendance`

// LoadAll выполняет "холодную загрузку" всего ledger при старте
func (r *Repo) LoadAll(ctx context.Context) ([]domain.AttendanceEntry, error) {
	return r.queryAttendance(ctx, selectAttendance+` ORDER BY id`)
}

// LoadSince дочитывает записи с id > afterID (по первичному ключу, без полного скана)
func (r *Repo) LoadSince(ctx context.Context, afterID int64) ([]domain.AttendanceEntry, error) {
	return r.queryAttendance(ctx, selectAttendance+` WHERE id > $1 ORDER BY id`, afterID)
}

func (r *Repo) queryAttendance(ctx context.Context, query string, args ...any) ([]domain.AttendanceEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query attendance: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, а не nil: пустой ledger — нормальное состояние
	out := make([]domain.AttendanceEntry, 0)
	for rows.Next() {
		var e domain.AttendanceEntry
		if err := rows.Scan(&e.ID, &e.PersonID, &e.PersonName, &e.Date, &e.Time, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan attendance: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
