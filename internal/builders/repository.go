package builders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/syed-c/standzon-sub008/internal/geo"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the Postgres-backed Directory.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const builderSelectCols = `
	id, name, email, phone, channels, locations, services, verified, rating,
	response_time_percentile, conversion_rate, active_lead_count, last_active_at, updated_at`

func scanBuilder(row pgx.Row) (Builder, error) {
	var (
		b         Builder
		channels   []string
		locations  []byte
		lastActive *time.Time
	)
	err := row.Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &channels, &locations, &b.Services, &b.Verified, &b.Rating,
		&b.ResponseTimePercentile, &b.ConversionRate, &b.ActiveLeadCount, &lastActive, &b.UpdatedAt,
	)
	if err != nil {
		return Builder{}, err
	}
	if lastActive != nil {
		b.LastActiveAt = *lastActive
	}
	b.Channels = make([]Channel, 0, len(channels))
	for _, ch := range channels {
		b.Channels = append(b.Channels, Channel(ch))
	}
	if len(locations) > 0 {
		var locs []geo.Location
		if err := json.Unmarshal(locations, &locs); err != nil {
			return Builder{}, fmt.Errorf("decode builder locations: %w", err)
		}
		b.Locations = locs
	}
	return b, nil
}

func (r *Repository) List(ctx context.Context) ([]Builder, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+builderSelectCols+` FROM builders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Builder, 0)
	for rows.Next() {
		b, err := scanBuilder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Builder, error) {
	b, err := scanBuilder(r.pool.QueryRow(ctx, `SELECT`+builderSelectCols+` FROM builders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Builder{}, ErrNotFound
	}
	return b, err
}

func (r *Repository) Upsert(ctx context.Context, b Builder) error {
	channels := make([]string, 0, len(b.Channels))
	for _, ch := range b.Channels {
		channels = append(channels, string(ch))
	}
	locations, err := json.Marshal(b.Locations)
	if err != nil {
		return err
	}
	services := b.Services
	if services == nil {
		services = []string{}
	}
	var lastActive *time.Time
	if !b.LastActiveAt.IsZero() {
		lastActive = &b.LastActiveAt
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO builders (
			id, name, email, phone, channels, locations, services, verified, rating,
			response_time_percentile, conversion_rate, active_lead_count, last_active_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			channels = EXCLUDED.channels,
			locations = EXCLUDED.locations,
			services = EXCLUDED.services,
			verified = EXCLUDED.verified,
			rating = EXCLUDED.rating,
			response_time_percentile = EXCLUDED.response_time_percentile,
			conversion_rate = EXCLUDED.conversion_rate,
			active_lead_count = EXCLUDED.active_lead_count,
			last_active_at = EXCLUDED.last_active_at,
			updated_at = now()
	`, b.ID, b.Name, b.Email, b.Phone, channels, locations, services, b.Verified, b.Rating,
		b.ResponseTimePercentile, b.ConversionRate, b.ActiveLeadCount, lastActive)
	return err
}

func (r *Repository) SetVerified(ctx context.Context, id string, verified bool) (Builder, error) {
	b, err := scanBuilder(r.pool.QueryRow(ctx, `
		UPDATE builders SET verified = $2, updated_at = now()
		WHERE id = $1
		RETURNING`+builderSelectCols, id, verified))
	if errors.Is(err, pgx.ErrNoRows) {
		return Builder{}, ErrNotFound
	}
	return b, err
}

var _ Directory = (*Repository)(nil)
