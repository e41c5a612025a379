// Package intake normalizes raw lead submissions into canonical leads.
package intake

import (
	"context"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/internal/geo"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/phone"
	"github.com/syed-c/standzon-sub008/platform/sanitize"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/google/uuid"
)

const DefaultDedupWindow = 10 * time.Minute

// RawLocation is the submitted location.
type RawLocation struct {
	City    string `json:"city" validate:"max=120"`
	Country string `json:"country" validate:"max=120"`
}

// RawSubmission is the public lead form payload.
type RawSubmission struct {
	CompanyName         string      `json:"companyName" validate:"required,max=200"`
	ContactName         string      `json:"contactName" validate:"max=200"`
	ContactEmail        string      `json:"contactEmail" validate:"required,email,max=254"`
	ContactPhone        string      `json:"contactPhone" validate:"max=40"`
	Location            RawLocation `json:"location"`
	Exhibition          string      `json:"exhibition" validate:"required,max=200"`
	Industry            string      `json:"industry" validate:"max=120"`
	Services            []string    `json:"services" validate:"max=20,dive,max=80"`
	StandSize           int         `json:"standSize" validate:"gte=0,lte=100000"`
	Budget              string      `json:"budget" validate:"max=120"`
	Timeline            string      `json:"timeline" validate:"max=120"`
	SpecialRequirements string      `json:"specialRequirements" validate:"max=5000"`
	Priority            string      `json:"priority" validate:"max=20"`
	Source              string      `json:"source" validate:"max=80"`
}

// Store persists new leads. CreateUnlessDuplicate must be atomic: when a lead
// with the same lower-cased email and exhibition slug exists since `since`,
// it returns that lead and created=false instead of inserting.
type Store interface {
	CreateUnlessDuplicate(ctx context.Context, lead domain.Lead, created domain.LeadEvent, since time.Time) (domain.Lead, bool, error)
}

// Intake validates and canonicalizes submissions.
type Intake struct {
	store    Store
	val      *validator.Validator
	taxonomy *geo.Taxonomy
	window   time.Duration
	now      func() time.Time
}

// Option configures an Intake.
type Option func(*Intake)

func WithDedupWindow(d time.Duration) Option {
	return func(i *Intake) {
		if d > 0 {
			i.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Intake) { i.now = now }
}

func New(store Store, val *validator.Validator, taxonomy *geo.Taxonomy, opts ...Option) *Intake {
	i := &Intake{store: store, val: val, taxonomy: taxonomy, window: DefaultDedupWindow, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest returns the canonical lead and whether it was newly created.
// Validation failures are apperr validation errors with per-field details.
func (i *Intake) Ingest(ctx context.Context, raw RawSubmission) (domain.Lead, bool, error) {
	if err := i.val.Struct(raw); err != nil {
		return domain.Lead{}, false, apperr.Validation("invalid lead submission").WithDetails(validator.FieldErrors(err))
	}

	lead, err := i.normalize(raw)
	if err != nil {
		return domain.Lead{}, false, err
	}

	created := domain.NewEvent(lead.ID, domain.EventLeadCreated, lead.CreatedAt)
	created.ToStatus = domain.StatusNew
	created.Actor = domain.ActorSystem
	created.Payload = map[string]any{
		"priority":   string(lead.Priority),
		"continent":  lead.Location.Continent,
		"country":    lead.Location.Country,
		"confidence": string(lead.Location.Confidence),
		"exhibition": lead.Exhibition.Name,
	}

	stored, isNew, err := i.store.CreateUnlessDuplicate(ctx, lead, created, lead.CreatedAt.Add(-i.window))
	if err != nil {
		return domain.Lead{}, false, err
	}
	return stored, isNew, nil
}

func (i *Intake) normalize(raw RawSubmission) (domain.Lead, error) {
	now := i.now().UTC()
	location := i.taxonomy.Resolve(sanitize.Text(raw.Location.City), sanitize.Text(raw.Location.Country))

	contactPhone := ""
	if p := strings.TrimSpace(raw.ContactPhone); p != "" {
		normalized, err := phone.ParseE164(p, location.CountryCode)
		if err != nil {
			return domain.Lead{}, apperr.Validation("invalid lead submission").
				WithDetails(map[string]string{"contactPhone": "invalid phone number"})
		}
		contactPhone = normalized
	}

	exhibition := sanitize.Text(raw.Exhibition)
	budget := ParseBudget(sanitize.Text(raw.Budget))
	timeline := sanitize.TextOr(raw.Timeline, geo.NotSpecified)

	services := make([]string, 0, len(raw.Services))
	for _, s := range raw.Services {
		if s = sanitize.Text(s); s != "" {
			services = append(services, s)
		}
	}

	return domain.Lead{
		ID: uuid.New(),
		Contact: domain.Contact{
			CompanyName: sanitize.Text(raw.CompanyName),
			Name:        sanitize.TextOr(raw.ContactName, geo.NotSpecified),
			Email:       strings.ToLower(strings.TrimSpace(raw.ContactEmail)),
			Phone:       contactPhone,
		},
		Location:   location,
		Exhibition: domain.Exhibition{Name: exhibition, Slug: Slugify(exhibition)},
		Requirements: domain.Requirements{
			Industry:            sanitize.TextOr(raw.Industry, geo.NotSpecified),
			Services:            services,
			StandSize:           raw.StandSize,
			Budget:              budget,
			Timeline:            timeline,
			SpecialRequirements: sanitize.TextOr(raw.SpecialRequirements, geo.NotSpecified),
		},
		Priority:         AssignPriority(raw.Priority, raw.Timeline, budget),
		Status:           domain.StatusNew,
		Version:          1,
		Source:           sanitize.TextOr(raw.Source, "website"),
		AssignedBuilders: []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Slugify folds a name into a lowercase dash-separated key.
func Slugify(name string) string {
	folded := geo.Fold(name)
	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
