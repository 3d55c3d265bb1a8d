package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — DDL таблиц State Store. Выполняется при старте сервиса;
// все операторы идемпотентны (IF NOT EXISTS).
//
// Индексируемые поля jobs вынесены в колонки; остальное (spec,
// журнал, артефакты, история) лежит версионированным JSONB в record.
const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id          UUID PRIMARY KEY,
		state       TEXT NOT NULL,
		progress    DOUBLE PRECISION NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		version     BIGINT NOT NULL DEFAULT 1,
		record      JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state_created_at ON jobs (state, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_expires_at ON jobs (expires_at) WHERE expires_at IS NOT NULL;

	CREATE TABLE IF NOT EXISTS units (
		id          UUID PRIMARY KEY,
		job_id      UUID NOT NULL,
		kind        TEXT NOT NULL,
		stage       TEXT NOT NULL,
		pass        INTEGER NOT NULL DEFAULT 0,
		attempt     INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		payload     JSONB,
		outputs     JSONB,
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		error       TEXT,
		created_at  TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_job_pass_stage ON units (job_id, pass, stage);
	CREATE INDEX IF NOT EXISTS idx_units_status_created_at ON units (status, created_at);
`

// EnsureSchema создаёт таблицы State Store, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
