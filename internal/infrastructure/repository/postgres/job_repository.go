package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
)

// JobRepository is the durable job ledger.
type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (
	id, account_id, kind, status, current_unit, total_units, percentage, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		job.ID, job.AccountID, string(job.Kind), string(job.Status),
		job.CurrentUnit, job.TotalUnits, job.Percentage, job.Error,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "insert job", err)
	}
	return nil
}

const jobColumns = `id, account_id, kind, status, current_unit, total_units, percentage, error_message, created_at, updated_at, completed_at`

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE id = $1
`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job", err)
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// UpdateProgress applies a monotonic counter update. An update whose current
// unit is below the stored value, or targeting an already-terminal job, is
// dropped and reported as false. Status flips to completed automatically
// once the counter reaches a known total.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, current, total int, status domain.JobStatus) (bool, error) {
	final := status
	if total > 0 && current >= total && !status.IsTerminal() {
		final = domain.JobStatusCompleted
	}
	percentage := domain.ComputePercentage(current, total)
	now := time.Now().UTC()

	var completedAt any
	if final.IsTerminal() {
		completedAt = now
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $2, current_unit = $3, total_units = $4, percentage = $5, updated_at = $6,
	completed_at = COALESCE($7, completed_at)
WHERE id = $1
  AND current_unit <= $3
  AND status NOT IN ('completed','failed','canceled')
`, id, string(final), current, total, percentage, now, completedAt)
	if err != nil {
		return false, fmt.Errorf("update job progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update job progress rows: %w", err)
	}
	return affected > 0, nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMessage string) error {
	return r.markTerminal(ctx, id, domain.JobStatusFailed, errMessage)
}

func (r *JobRepository) MarkCanceled(ctx context.Context, id string) error {
	return r.markTerminal(ctx, id, domain.JobStatusCanceled, "")
}

// markTerminal is one-way: it never touches a job that already reached a
// terminal status.
func (r *JobRepository) markTerminal(ctx context.Context, id string, status domain.JobStatus, errMessage string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = $2, error_message = $3, updated_at = $4, completed_at = $4
WHERE id = $1
  AND status NOT IN ('completed','failed','canceled')
`, id, string(status), errMessage, now)
	if err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}
	return nil
}

func (r *JobRepository) FindActive(ctx context.Context, accountID string, kind domain.JobKind) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE account_id = $1 AND kind = $2 AND status IN ('pending','running')
ORDER BY created_at DESC
LIMIT 1
`, accountID, string(kind))
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan active job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read job status: %w", err)
	}
	return !domain.JobStatus(status).IsTerminal(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var kind, status string
	var errMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.AccountID, &kind, &status,
		&job.CurrentUnit, &job.TotalUnits, &job.Percentage,
		&errMessage, &job.CreatedAt, &job.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Error = errMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}
