package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadSelectCols = `
	id, company_name, contact_name, contact_email, contact_phone,
	city, country, country_code, continent, location_confidence,
	exhibition_name, exhibition_slug, industry, services, stand_size,
	budget_raw, budget_min, budget_max, budget_currency, budget_band,
	timeline, special_requirements, priority, status, version, source,
	assigned_builders, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var (
		l                          domain.Lead
		confidence, band, priority string
		status                     string
	)
	err := row.Scan(
		&l.ID, &l.Contact.CompanyName, &l.Contact.Name, &l.Contact.Email, &l.Contact.Phone,
		&l.Location.City, &l.Location.Country, &l.Location.CountryCode, &l.Location.Continent, &confidence,
		&l.Exhibition.Name, &l.Exhibition.Slug, &l.Requirements.Industry, &l.Requirements.Services, &l.Requirements.StandSize,
		&l.Requirements.Budget.Raw, &l.Requirements.Budget.Min, &l.Requirements.Budget.Max, &l.Requirements.Budget.Currency, &band,
		&l.Requirements.Timeline, &l.Requirements.SpecialRequirements, &priority, &status, &l.Version, &l.Source,
		&l.AssignedBuilders, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	l.Location.Confidence = geo.Confidence(confidence)
	l.Requirements.Budget.Band = domain.BudgetBand(band)
	l.Priority = domain.Priority(priority)
	l.Status = domain.Status(status)
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()

	items := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// CreateUnlessDuplicate serializes submissions for the same (email,
// exhibition) with a transaction-scoped advisory lock, so the duplicate check
// and insert cannot interleave.
func (r *Repository) CreateUnlessDuplicate(ctx context.Context, lead domain.Lead, created domain.LeadEvent, since time.Time) (domain.Lead, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"lead-intake:"+lead.Contact.Email+":"+lead.Exhibition.Slug); err != nil {
		return domain.Lead{}, false, fmt.Errorf("lock intake key: %w", err)
	}

	existing, err := scanLead(tx.QueryRow(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE lower(contact_email) = lower($1) AND exhibition_slug = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, lead.Contact.Email, lead.Exhibition.Slug, since))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, false, err
	}

	services := lead.Requirements.Services
	if services == nil {
		services = []string{}
	}
	assigned := lead.AssignedBuilders
	if assigned == nil {
		assigned = []string{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO leads (
			id, company_name, contact_name, contact_email, contact_phone,
			city, country, country_code, continent, location_confidence,
			exhibition_name, exhibition_slug, industry, services, stand_size,
			budget_raw, budget_min, budget_max, budget_currency, budget_band,
			timeline, special_requirements, priority, status, version, source,
			assigned_builders, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
		)`,
		lead.ID, lead.Contact.CompanyName, lead.Contact.Name, lead.Contact.Email, lead.Contact.Phone,
		lead.Location.City, lead.Location.Country, lead.Location.CountryCode, lead.Location.Continent, string(lead.Location.Confidence),
		lead.Exhibition.Name, lead.Exhibition.Slug, lead.Requirements.Industry, services, lead.Requirements.StandSize,
		lead.Requirements.Budget.Raw, lead.Requirements.Budget.Min, lead.Requirements.Budget.Max, lead.Requirements.Budget.Currency, string(lead.Requirements.Budget.Band),
		lead.Requirements.Timeline, lead.Requirements.SpecialRequirements, string(lead.Priority), string(lead.Status), lead.Version, lead.Source,
		assigned, lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, false, err
	}
	if err := insertEvents(ctx, tx, []domain.LeadEvent{created}); err != nil {
		return domain.Lead{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx, `SELECT`+leadSelectCols+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, domain.ErrLeadNotFound
	}
	return l, err
}

func (r *Repository) ApplyStatusChange(ctx context.Context, change StatusChange) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads
		SET status = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $2 AND status = $3
		RETURNING`+leadSelectCols,
		change.LeadID, change.ExpectedVersion, string(change.From), string(change.To), change.At.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, change.LeadID).Scan(&exists); err != nil {
			return domain.Lead{}, err
		}
		if !exists {
			return domain.Lead{}, domain.ErrLeadNotFound
		}
		return domain.Lead{}, domain.ErrConcurrencyConflict
	}
	if err != nil {
		return domain.Lead{}, err
	}

	if err := upsertMatches(ctx, tx, change.Matches); err != nil {
		return domain.Lead{}, err
	}
	if err := insertEvents(ctx, tx, change.Events); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return updated, nil
}

func (r *Repository) AddAssignedBuilders(ctx context.Context, leadID uuid.UUID, builderIDs []string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_builders = ARRAY(
			SELECT DISTINCT unnest(assigned_builders || $2::text[]) ORDER BY 1
		)
		WHERE id = $1
	`, leadID, builderIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeadNotFound
	}
	return nil
}

func (r *Repository) ListMatches(ctx context.Context, leadID uuid.UUID) ([]domain.MatchResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lead_id, builder_id, score, rank, reasons, breakdown, computed_at
		FROM match_results
		WHERE lead_id = $1
		ORDER BY rank ASC, builder_id ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MatchResult, 0)
	for rows.Next() {
		var (
			m                  domain.MatchResult
			reasons, breakdown []byte
		)
		if err := rows.Scan(&m.LeadID, &m.BuilderID, &m.Score, &m.Rank, &reasons, &breakdown, &m.ComputedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reasons, &m.Reasons); err != nil {
			return nil, fmt.Errorf("decode match reasons: %w", err)
		}
		if err := json.Unmarshal(breakdown, &m.Breakdown); err != nil {
			return nil, fmt.Errorf("decode match breakdown: %w", err)
		}
		items = append(items, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) ListByStatusUpdatedBefore(ctx context.Context, statuses []domain.Status, before time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`, statusStrings(statuses), before, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) ListByStatusInCountries(ctx context.Context, status domain.Status, countryCodes []string, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE status = $1 AND country_code = ANY($2)
		ORDER BY created_at ASC
		LIMIT $3
	`, string(status), countryCodes, limit)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) AppendEvents(ctx context.Context, events ...domain.LeadEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := insertEvents(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const eventSelectCols = `
	seq, id, lead_id, type, from_status, to_status, builder_id, channel,
	job_id, actor, reason, payload, occurred_at`

func (r *Repository) ListEvents(ctx context.Context, leadID uuid.UUID) ([]domain.LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+eventSelectCols+` FROM lead_events WHERE lead_id = $1 ORDER BY seq ASC`, leadID)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (r *Repository) ListEventsSince(ctx context.Context, since time.Time) ([]domain.LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+eventSelectCols+` FROM lead_events WHERE occurred_at >= $1 ORDER BY seq ASC`, since)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (r *Repository) ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+eventSelectCols+` FROM lead_events WHERE seq > $1 ORDER BY seq ASC LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.LeadEvent, error) {
	defer rows.Close()

	items := make([]domain.LeadEvent, 0)
	for rows.Next() {
		var (
			e             domain.LeadEvent
			typ, from, to string
			payload       []byte
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.LeadID, &typ, &from, &to, &e.BuilderID, &e.Channel,
			&e.JobID, &e.Actor, &e.Reason, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.FromStatus = domain.Status(from)
		e.ToStatus = domain.Status(to)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		items = append(items, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []domain.LeadEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		payload := e.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		batch.Queue(`
			INSERT INTO lead_events (
				id, lead_id, type, from_status, to_status, builder_id, channel,
				job_id, actor, reason, payload, occurred_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			e.ID, e.LeadID, string(e.Type), string(e.FromStatus), string(e.ToStatus), e.BuilderID, e.Channel,
			e.JobID, e.Actor, e.Reason, raw, e.OccurredAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func upsertMatches(ctx context.Context, tx pgx.Tx, matches []domain.MatchResult) error {
	if len(matches) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range matches {
		reasons, err := json.Marshal(m.Reasons)
		if err != nil {
			return err
		}
		breakdown, err := json.Marshal(m.Breakdown)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO match_results (lead_id, builder_id, score, rank, reasons, breakdown, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (lead_id, builder_id) DO UPDATE SET
				score = EXCLUDED.score,
				rank = EXCLUDED.rank,
				reasons = EXCLUDED.reasons,
				breakdown = EXCLUDED.breakdown,
				computed_at = EXCLUDED.computed_at`,
			m.LeadID, m.BuilderID, m.Score, m.Rank, reasons, breakdown, m.ComputedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

var _ Store = (*Repository)(nil)
