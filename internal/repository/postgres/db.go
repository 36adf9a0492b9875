package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/attendance-engine/internal/infra"
)

// Repo — доступ к PostgreSQL через пул pgx: ledger посещаемости и реестр лиц
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo открывает пул и проверяет соединение
func NewRepo(ctx context.Context, cfg infra.DatabaseConfig) (*Repo, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: bad database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// Ping проверяет доступность базы (healthcheck)
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// schema: уникальность (person_id, att_date) дублирует индекс ledger на уровне БД,
// чтобы два инстанса не записали один день дважды
const schema = `
CREATE TABLE IF NOT EXISTS persons (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	image_count INT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	person_id   TEXT NOT NULL,
	person_name TEXT NOT NULL,
	att_date    DATE NOT NULL,
	att_time    TIME NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT attendance_person_day_uniq UNIQUE (person_id, att_date)
);

CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance (att_date);

CREATE TABLE IF NOT EXISTS recognition_journal (
	id          UUID PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	transport   TEXT NOT NULL,
	person_id   TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	entry_id    BIGINT,
	error       TEXT,
	timestamp   TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS recognition_journal_ts_idx ON recognition_journal (timestamp DESC);`

// EnsureSchema создает таблицы, если их нет. Без аргументов pgx шлет запрос
// простым протоколом, поэтому несколько выражений проходят одним Exec.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
