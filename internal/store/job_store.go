package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Clipline/internal/domain"
)

// defaultCacheTTL — окно допустимой staleness для локального кэша.
const defaultCacheTTL = 2 * time.Second

// JobStore — State Store для job-записей.
//
// Источник истины — таблица jobs в PostgreSQL; поверх неё работает
// короткоживущий in-process кэш для быстрых чтений процессом,
// который недавно писал. Все записи сквозные (write-through):
// сначала БД, затем кэш.
//
// Запись защищена оптимистичной блокировкой: Update выполняет
// compare-and-swap по колонке version и возвращает ErrStaleVersion,
// если запись была конкурентно перезаписана.
type JobStore struct {
	pool  *pgxpool.Pool
	cache *jobCache
}

// NewJobStore создаёт JobStore с кэшем по умолчанию.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{
		pool:  pool,
		cache: newJobCache(defaultCacheTTL),
	}
}

// Create создаёт новый job (version = 1).
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	record, err := encodeRecord(job)
	if err != nil {
		return err
	}

	job.Version = 1
	job.UpdatedAt = time.Now()

	query := `
		INSERT INTO jobs (id, state, progress, retry_count, error, version, record, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.State,
		job.Progress,
		job.RetryCount,
		nullString(job.Error),
		job.Version,
		record,
		job.CreatedAt,
		job.UpdatedAt,
		job.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	s.cache.put(job)
	return nil
}

// GetByID возвращает job по ID.
// Свежая запись из локального кэша возвращается без похода в БД.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if job, ok := s.cache.get(id); ok {
		return job, nil
	}
	return s.GetFresh(ctx, id)
}

// GetFresh возвращает job, минуя кэш.
// Используется там, где staleness недопустима: снапшот при подписке,
// перечитывание после ErrStaleVersion, отмена.
func (s *JobStore) GetFresh(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, state, progress, retry_count, error, version, record,
		       created_at, updated_at, expires_at
		FROM jobs
		WHERE id = $1
	`
	job, err := s.scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	s.cache.put(job)
	return job, nil
}

// Update записывает job с compare-and-swap по версии.
//
// Ожидаемая версия берётся из job.Version; при успехе version
// инкрементируется и в БД, и в переданном job. Если запись была
// конкурентно изменена — ErrStaleVersion, job не изменяется.
func (s *JobStore) Update(ctx context.Context, job *domain.Job) error {
	record, err := encodeRecord(job)
	if err != nil {
		return err
	}

	now := time.Now()

	query := `
		UPDATE jobs
		SET state = $3, progress = $4, retry_count = $5, error = $6,
		    version = version + 1, record = $7, updated_at = $8, expires_at = $9
		WHERE id = $1 AND version = $2
	`
	result, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Version,
		job.State,
		job.Progress,
		job.RetryCount,
		nullString(job.Error),
		record,
		now,
		job.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if result.RowsAffected() == 0 {
		s.cache.invalidate(job.ID)

		// Различаем отсутствие записи и конфликт версий
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check job existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: job %s version %d", ErrStaleVersion, job.ID, job.Version)
	}

	job.Version++
	job.UpdatedAt = now
	s.cache.put(job)
	return nil
}

// List возвращает jobs с фильтрацией.
func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT id, state, progress, retry_count, error, version, record,
		       created_at, updated_at, expires_at
		FROM jobs
		WHERE ($1::text IS NULL OR state = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, query,
		nullString(string(filter.State)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return s.collectJobs(rows)
}

// ListByState возвращает jobs в заданном состоянии (старые первыми).
// Используется Coordinator'ом как polling fallback.
func (s *JobStore) ListByState(ctx context.Context, state domain.JobState, limit int) ([]domain.Job, error) {
	query := `
		SELECT id, state, progress, retry_count, error, version, record,
		       created_at, updated_at, expires_at
		FROM jobs
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, state, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs by state: %w", err)
	}
	defer rows.Close()

	return s.collectJobs(rows)
}

// Delete удаляет job.
func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.cache.invalidate(id)
	return nil
}

// DeleteExpired удаляет записи с истёкшим retention-окном.
// Возвращает ID удалённых jobs для каскадной чистки units.
func (s *JobStore) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM jobs
		WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired job id: %w", err)
		}
		s.cache.invalidate(id)
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Helpers ---

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	State  domain.JobState
	Limit  int
	Offset int
}

// scanRow — общий интерфейс pgx.Row / pgx.Rows для сканирования.
type scanRow interface {
	Scan(dest ...any) error
}

func (s *JobStore) scanJob(row scanRow) (*domain.Job, error) {
	var job domain.Job
	var record []byte
	var jobError *string

	err := row.Scan(
		&job.ID,
		&job.State,
		&job.Progress,
		&job.RetryCount,
		&jobError,
		&job.Version,
		&record,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if jobError != nil {
		job.Error = *jobError
	}

	if err := decodeRecord(record, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// nullString возвращает nil для пустой строки (NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
