package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/platform/logger"
	"github.com/medvextract/medvextract-api/internal/redact"
	"github.com/medvextract/medvextract-api/internal/store"
)

const jobColumns = `id, fingerprint, request, status, raw_result, result, error_message, created_at, updated_at`

// JobStore implements store.JobStore.
type JobStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore returns a JobStore over db.
func NewJobStore(db *DB, logger *slog.Logger) *JobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{
		db:      db.DB,
		dialect: db.Dialect,
		logger:  logger.With("component", "job_store"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *JobStore) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, s.logger)
}

// CreateJob inserts a PENDING job.
func (s *JobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", store.ErrInvalidEntity)
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: new job must be PENDING, got %s", store.ErrInvalidEntity, job.Status)
	}
	if err := job.CheckInvariant(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", store.ErrInvalidEntity, err)
	}

	query := s.dialect.Rebind(`
		INSERT INTO extraction_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Fingerprint.String(),
		string(request),
		string(job.Status),
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	if err != nil {
		s.log(ctx).Error("failed to create job",
			"job_id", job.ID,
			"fingerprint", job.Fingerprint.Short(),
			"error", redact.Error(err))
		return MapError(err)
	}

	s.log(ctx).Debug("job created", "job_id", job.ID, "fingerprint", job.Fingerprint.Short())
	return nil
}

// GetJob retrieves a job by ID.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := s.dialect.Rebind(`SELECT ` + jobColumns + ` FROM extraction_jobs WHERE id = ?`)

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		s.log(ctx).Error("failed to get job", "job_id", id, "error", redact.Error(err))
		return nil, MapError(err)
	}
	return job, nil
}

// CompleteJob moves a PENDING job to COMPLETED.
func (s *JobStore) CompleteJob(ctx context.Context, id uuid.UUID, rawResult, result json.RawMessage) error {
	if len(result) == 0 {
		return fmt.Errorf("%w: completed job requires a result", store.ErrInvalidEntity)
	}
	if !json.Valid(result) || (len(rawResult) > 0 && !json.Valid(rawResult)) {
		return fmt.Errorf("%w: result is not valid JSON", store.ErrInvalidEntity)
	}

	return s.finish(ctx, id, domain.JobStatusCompleted, `
		UPDATE extraction_jobs
		SET status = ?, raw_result = ?, result = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(domain.JobStatusCompleted), nullJSON(rawResult), string(result), s.now(), id)
}

// FailJob moves a PENDING job to FAILED.
func (s *JobStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: failed job requires an error message", store.ErrInvalidEntity)
	}

	return s.finish(ctx, id, domain.JobStatusFailed, `
		UPDATE extraction_jobs
		SET status = ?, raw_result = NULL, result = NULL, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(domain.JobStatusFailed), message, s.now(), id)
}

// finish applies a terminal transition. The update only matches PENDING rows;
// when nothing matched, the row is re-read in the same transaction to tell a
// missing job from one that already finished.
func (s *JobStore) finish(ctx context.Context, id uuid.UUID, to domain.JobStatus, query string, args ...any) error {
	log := s.log(ctx).With("job_id", id, "status", string(to))

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
		if err != nil {
			return MapError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: rows affected: %v", store.ErrUpdateFailed, err)
		}
		if n == 1 {
			return nil
		}

		var current string
		err = tx.QueryRowContext(ctx,
			s.dialect.Rebind(`SELECT status FROM extraction_jobs WHERE id = ?`), id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrJobNotFound
		}
		if err != nil {
			return MapError(err)
		}
		return fmt.Errorf("%w: job is %s", store.ErrJobNotPending, current)
	})
	if err != nil {
		if !errors.Is(err, store.ErrJobNotPending) && !errors.Is(err, store.ErrNotFound) {
			log.Error("terminal job update failed", "error", redact.Error(err))
		}
		return err
	}

	log.Debug("job finished")
	return nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *JobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	filter = filter.Normalize()

	var (
		where string
		args  []any
	)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("%w: %w", store.ErrInvalidEntity, domain.ErrInvalidJobStatus)
		}
		where = ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := s.dialect.Rebind(`SELECT ` + jobColumns + ` FROM extraction_jobs` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	return s.queryJobs(ctx, query, args...)
}

// ListPendingJobs returns every PENDING job, oldest first.
func (s *JobStore) ListPendingJobs(ctx context.Context) ([]*domain.Job, error) {
	query := s.dialect.Rebind(`SELECT ` + jobColumns + ` FROM extraction_jobs
		WHERE status = 'PENDING' ORDER BY created_at ASC, id ASC`)
	return s.queryJobs(ctx, query)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.log(ctx).Error("failed to query jobs", "error", redact.Error(err))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			s.log(ctx).Error("failed to scan job", "error", redact.Error(err))
			return nil, MapError(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                 domain.Job
		fingerprint, status string
		request             []byte
		rawResult, result   []byte
		errorMessage        sql.NullString
	)

	err := row.Scan(
		&job.ID,
		&fingerprint,
		&request,
		&status,
		&rawResult,
		&result,
		&errorMessage,
		timestamp{&job.CreatedAt},
		timestamp{&job.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("decoding request of job %s: %w", job.ID, err)
	}
	job.Status, err = domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Fingerprint = domain.Fingerprint(fingerprint)
	if len(rawResult) > 0 {
		job.RawResult = json.RawMessage(rawResult)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	job.ErrorMessage = errorMessage.String
	return &job, nil
}

func nullJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

// timestamp scans the time representations produced by both drivers.
type timestamp struct {
	t *time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case int64:
		*ts.t = time.Unix(v, 0).UTC()
		return nil
	case nil:
		*ts.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts timestamp) parse(v string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}
