package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Clipline/internal/domain"
)

// UnitStore — хранилище units.
//
// Units мутируются двумя сторонами: worker пишет статус/результаты,
// coordinator читает счётчики для fan-in барьера. Версионирования
// здесь нет: у каждого unit ровно один писатель в каждый момент
// времени (worker, держащий сообщение из очереди).
type UnitStore struct {
	pool *pgxpool.Pool
}

// NewUnitStore создаёт новый UnitStore.
func NewUnitStore(pool *pgxpool.Pool) *UnitStore {
	return &UnitStore{pool: pool}
}

// Create создаёт новый unit.
func (s *UnitStore) Create(ctx context.Context, unit *domain.Unit) error {
	payloadJSON, err := json.Marshal(unit.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO units (id, job_id, kind, stage, pass, attempt, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		unit.ID,
		unit.JobID,
		unit.Kind,
		unit.Stage,
		unit.Pass,
		unit.Attempt,
		unit.Status,
		payloadJSON,
		unit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	return nil
}

// GetByID возвращает unit по ID.
func (s *UnitStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Unit, error) {
	query := `
		SELECT id, job_id, kind, stage, pass, attempt, status, payload, outputs,
		       started_at, finished_at, error, created_at
		FROM units
		WHERE id = $1
	`
	return s.scanUnit(s.pool.QueryRow(ctx, query, id))
}

// Update обновляет мутабельные поля unit.
func (s *UnitStore) Update(ctx context.Context, unit *domain.Unit) error {
	outputsJSON, err := json.Marshal(unit.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		UPDATE units
		SET attempt = $2, status = $3, outputs = $4,
		    started_at = $5, finished_at = $6, error = $7
		WHERE id = $1
	`
	result, err := s.pool.Exec(ctx, query,
		unit.ID,
		unit.Attempt,
		unit.Status,
		outputsJSON,
		unit.StartedAt,
		unit.FinishedAt,
		nullString(unit.Error),
	)
	if err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByJobID возвращает все units для job (старые первыми).
func (s *UnitStore) ListByJobID(ctx context.Context, jobID uuid.UUID) ([]domain.Unit, error) {
	query := `
		SELECT id, job_id, kind, stage, pass, attempt, status, payload, outputs,
		       started_at, finished_at, error, created_at
		FROM units
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list units by job_id: %w", err)
	}
	defer rows.Close()

	return s.collectUnits(rows)
}

// ListQueued возвращает units в статусе QUEUED.
// Используется worker'ом как polling fallback при недоступности MQ.
func (s *UnitStore) ListQueued(ctx context.Context, limit int) ([]domain.Unit, error) {
	query := `
		SELECT id, job_id, kind, stage, pass, attempt, status, payload, outputs,
		       started_at, finished_at, error, created_at
		FROM units
		WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued units: %w", err)
	}
	defer rows.Close()

	return s.collectUnits(rows)
}

// ListByJobPass возвращает units конкретного прохода и стадии.
// Нужен барьеру, чтобы при принятии решения видеть именно свой
// fan-out набор, а не units предыдущих проходов.
func (s *UnitStore) ListByJobPass(ctx context.Context, jobID uuid.UUID, pass int, stage domain.JobState) ([]domain.Unit, error) {
	query := `
		SELECT id, job_id, kind, stage, pass, attempt, status, payload, outputs,
		       started_at, finished_at, error, created_at
		FROM units
		WHERE job_id = $1 AND pass = $2 AND stage = $3
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, jobID, pass, stage)
	if err != nil {
		return nil, fmt.Errorf("list units by pass: %w", err)
	}
	defer rows.Close()

	return s.collectUnits(rows)
}

// CountTerminalByJobPass возвращает количество завершённых units
// прохода (SUCCEEDED + FAILED) для fan-in барьера.
func (s *UnitStore) CountTerminalByJobPass(ctx context.Context, jobID uuid.UUID, pass int, stage domain.JobState) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM units
		WHERE job_id = $1 AND pass = $2 AND stage = $3
		  AND status IN ('SUCCEEDED', 'FAILED')
	`, jobID, pass, stage).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count terminal units: %w", err)
	}
	return count, nil
}

// DeleteByJobIDs каскадно удаляет units удалённых jobs.
func (s *UnitStore) DeleteByJobIDs(ctx context.Context, jobIDs []uuid.UUID) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	result, err := s.pool.Exec(ctx, `DELETE FROM units WHERE job_id = ANY($1)`, jobIDs)
	if err != nil {
		return 0, fmt.Errorf("delete units by job ids: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

func (s *UnitStore) scanUnit(row scanRow) (*domain.Unit, error) {
	var unit domain.Unit
	var payloadJSON, outputsJSON []byte
	var unitError *string

	err := row.Scan(
		&unit.ID,
		&unit.JobID,
		&unit.Kind,
		&unit.Stage,
		&unit.Pass,
		&unit.Attempt,
		&unit.Status,
		&payloadJSON,
		&outputsJSON,
		&unit.StartedAt,
		&unit.FinishedAt,
		&unitError,
		&unit.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan unit: %w", err)
	}

	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &unit.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &unit.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if unitError != nil {
		unit.Error = *unitError
	}

	return &unit, nil
}

func (s *UnitStore) collectUnits(rows pgx.Rows) ([]domain.Unit, error) {
	var units []domain.Unit
	for rows.Next() {
		unit, err := s.scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *unit)
	}
	return units, rows.Err()
}
