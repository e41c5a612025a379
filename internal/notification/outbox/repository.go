package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "outbox repository not configured"

// Repository is the Postgres Store. Job creation per dedup key is serialized
// with a transaction-scoped advisory lock; the partial unique index on active
// jobs backs it up.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobSelectCols = `
	id, lead_id, builder_id, channel, recipient, status, attempts, scheduled_at,
	locked_until, COALESCE(last_error, ''), COALESCE(delivery_id, ''), created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var (
		j               Job
		channel, status string
	)
	err := row.Scan(&j.ID, &j.LeadID, &j.BuilderID, &channel, &j.Recipient, &status, &j.Attempts, &j.ScheduledAt,
		&j.LockedUntil, &j.LastError, &j.DeliveryID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	j.Channel = builders.Channel(channel)
	j.Status = Status(status)
	return j, nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	defer rows.Close()

	var results []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	return nil
}

func (r *Repository) CreateUnlessBlocked(ctx context.Context, job Job, ttl time.Duration, now time.Time) (Job, bool, error) {
	if err := r.ready(); err != nil {
		return Job{}, false, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Job{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockKey := "notification-job:" + job.LeadID.String() + ":" + job.BuilderID + ":" + string(job.Channel)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return Job{}, false, err
	}

	cutoff := now.Add(-ttl)
	if _, err := tx.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'expired', updated_at = $5
		WHERE lead_id = $1 AND builder_id = $2 AND channel = $3
		  AND status = 'sent' AND updated_at < $4
	`, job.LeadID, job.BuilderID, string(job.Channel), cutoff, now); err != nil {
		return Job{}, false, err
	}

	existing, err := scanJob(tx.QueryRow(ctx, `
		SELECT`+jobSelectCols+`
		FROM notification_jobs
		WHERE lead_id = $1 AND builder_id = $2 AND channel = $3
		  AND (status = 'pending' OR (status IN ('sent', 'delivered') AND updated_at >= $4))
		ORDER BY created_at DESC
		LIMIT 1
	`, job.LeadID, job.BuilderID, string(job.Channel), cutoff))
	if err == nil {
		return existing, false, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO notification_jobs (
			id, lead_id, builder_id, channel, recipient, status, attempts,
			scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, job.ID, job.LeadID, job.BuilderID, string(job.Channel), job.Recipient, string(job.Status), job.Attempts,
		job.ScheduledAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Job{}, false, ErrConflict
		}
		return Job{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	if err := r.ready(); err != nil {
		return Job{}, err
	}
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT`+jobSelectCols+` FROM notification_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Job, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+jobSelectCols+`
		FROM notification_jobs
		WHERE lead_id = $1
		ORDER BY created_at ASC, builder_id ASC, channel ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func (r *Repository) Lease(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (Job, error) {
	if err := r.ready(); err != nil {
		return Job{}, err
	}
	j, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE notification_jobs
		SET locked_until = $3
		WHERE id = $1 AND status = 'pending' AND scheduled_at <= $2
		  AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING`+jobSelectCols,
		id, now, now.Add(lease)))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return Job{}, getErr
		}
		return current, ErrNotLeasable
	}
	return j, err
}

func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Job, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM notification_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
		  AND (locked_until IS NULL OR locked_until <= $1)
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE notification_jobs j
	SET locked_until = $3
	FROM cte
	WHERE j.id = cte.id
	RETURNING j.id, j.lead_id, j.builder_id, j.channel, j.recipient, j.status, j.attempts, j.scheduled_at,
		j.locked_until, COALESCE(j.last_error, ''), COALESCE(j.delivery_id, ''), j.created_at, j.updated_at`,
		now, limit, now.Add(lease))
	if err != nil {
		return nil, err
	}
	results, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) Finish(ctx context.Context, job Job) (Job, error) {
	if err := r.ready(); err != nil {
		return Job{}, err
	}
	j, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE notification_jobs
		SET status = $2, attempts = $3, scheduled_at = $4, last_error = NULLIF($5, ''),
		    delivery_id = NULLIF($6, ''), locked_until = NULL, updated_at = $7
		WHERE id = $1 AND status = 'pending'
		RETURNING`+jobSelectCols,
		job.ID, string(job.Status), job.Attempts, job.ScheduledAt, job.LastError, job.DeliveryID, job.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrConflict
	}
	return j, err
}

func (r *Repository) Confirm(ctx context.Context, id uuid.UUID, deliveryID string, now time.Time) (Job, error) {
	if err := r.ready(); err != nil {
		return Job{}, err
	}
	j, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE notification_jobs
		SET status = 'delivered', delivery_id = COALESCE(NULLIF($2, ''), delivery_id), updated_at = $3
		WHERE id = $1 AND status = 'sent'
		RETURNING`+jobSelectCols,
		id, deliveryID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Job{}, getErr
		}
		return Job{}, ErrConflict
	}
	return j, err
}

func (r *Repository) CancelPending(ctx context.Context, leadID uuid.UUID, reason string, now time.Time) ([]Job, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		UPDATE notification_jobs
		SET status = 'cancelled', last_error = $2, updated_at = $3
		WHERE lead_id = $1 AND status = 'pending'
		  AND (locked_until IS NULL OR locked_until <= $3)
		RETURNING`+jobSelectCols,
		leadID, reason, now)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

var _ Store = (*Repository)(nil)
