package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/attendance-engine/internal/audit"
	"github.com/xela07ax/attendance-engine/internal/domain"
)

// JournalRepo пишет журнал распознаваний пачками через database/sql.
// Отдельный пул: всплеск журнала не отнимает соединения у ledger.
type JournalRepo struct {
	db *sql.DB
}

func NewJournalRepo(connString string) (*JournalRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open journal db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &JournalRepo{db: db}, nil
}

func (r *JournalRepo) Close() error { return r.db.Close() }

func (r *JournalRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице recognition_journal
	numFields := 11
	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		if i > 0 {
			placeholders.WriteByte(',')
		}
		p := i * numFields
		fmt.Fprintf(&placeholders, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11)

		vals = append(vals,
			e.ID, e.TraceID, e.Transport, e.PersonID, e.Confidence, e.DetectedAt,
			e.Status, nullInt64(e.EntryID), nullString(e.Error), e.Timestamp, e.DurationMs,
		)
	}

	query := "INSERT INTO recognition_journal " +
		"(id, trace_id, transport, person_id, confidence, detected_at, status, entry_id, error, timestamp, duration_ms) VALUES " +
		placeholders.String()

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FetchRecent возвращает последние записи журнала. Пустой personID — без фильтра.
func (r *JournalRepo) FetchRecent(ctx context.Context, personID string, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trace_id, transport, person_id, confidence, detected_at, status,
		       COALESCE(entry_id, 0), COALESCE(error, ''), timestamp, duration_ms
		FROM recognition_journal
		WHERE ($1 = '' OR person_id = $1)
		ORDER BY timestamp DESC
		LIMIT $2`, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch journal: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Event, 0, limit)
	for rows.Next() {
		var e audit.Event
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Transport, &e.PersonID, &e.Confidence, &e.DetectedAt,
			&e.Status, &e.EntryID, &e.Error, &e.Timestamp, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("postgres: scan journal: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats — сводка за последние 60 минут. P95 считается честно через PERCENTILE_CONT.
func (r *JournalRepo) Stats(ctx context.Context) (domain.IngestStats, error) {
	var s domain.IngestStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'recorded'),
			COUNT(*) FILTER (WHERE status IN ('deduplicated', 'already_recorded')),
			COUNT(*) FILTER (WHERE status = 'low_confidence'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
		FROM recognition_journal
		WHERE timestamp > NOW() - INTERVAL '60 minutes'`).Scan(
		&s.TotalEvents, &s.Recorded, &s.Deduplicated, &s.LowConfidence, &s.Errors, &s.P95LatencyMs,
	)
	if err != nil {
		return domain.IngestStats{}, fmt.Errorf("postgres: journal stats: %w", err)
	}
	s.EventsPerSec = float64(s.TotalEvents) / 3600
	return s, nil
}
