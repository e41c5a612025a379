// Package builders holds the builder directory read model used for matching
// and notification routing.
package builders

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/syed-c/standzon-sub008/internal/geo"
)

// Channel is a notification channel a builder has opted into.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ErrNotFound is returned when a builder id is unknown.
var ErrNotFound = errors.New("builder not found")

// Builder is a stand builder profile. Locations[0] is the headquarters.
type Builder struct {
	ID                     string         `json:"id" yaml:"id"`
	Name                   string         `json:"name" yaml:"name"`
	Email                  string         `json:"email" yaml:"email"`
	Phone                  string         `json:"phone,omitempty" yaml:"phone"`
	Channels               []Channel      `json:"channels" yaml:"channels"`
	Locations              []geo.Location `json:"locations" yaml:"locations"`
	Services               []string       `json:"services" yaml:"services"`
	Verified               bool           `json:"verified" yaml:"verified"`
	Rating                 float64        `json:"rating" yaml:"rating"`
	ResponseTimePercentile float64        `json:"responseTimePercentile" yaml:"responseTimePercentile"`
	ConversionRate         float64        `json:"conversionRate" yaml:"conversionRate"`
	ActiveLeadCount        int            `json:"activeLeadCount" yaml:"activeLeadCount"`
	LastActiveAt           time.Time      `json:"lastActiveAt" yaml:"lastActiveAt"`
	UpdatedAt              time.Time      `json:"updatedAt" yaml:"-"`
}

// AcceptsChannel reports whether the builder opted into ch.
func (b Builder) AcceptsChannel(ch Channel) bool {
	return slices.Contains(b.Channels, ch)
}

// Recipient returns the address used for ch.
func (b Builder) Recipient(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return b.Email
	case ChannelSMS:
		return b.Phone
	}
	return ""
}

// Countries lists the distinct country codes the builder serves.
func (b Builder) Countries() []string {
	codes := make([]string, 0, len(b.Locations))
	for _, loc := range b.Locations {
		if loc.CountryCode != "" && !slices.Contains(codes, loc.CountryCode) {
			codes = append(codes, loc.CountryCode)
		}
	}
	return codes
}

// Reader provides read access to the directory.
type Reader interface {
	List(ctx context.Context) ([]Builder, error)
	Get(ctx context.Context, id string) (Builder, error)
}

// Writer updates directory entries.
type Writer interface {
	Upsert(ctx context.Context, b Builder) error
	SetVerified(ctx context.Context, id string, verified bool) (Builder, error)
}

// Directory is the full builder store.
type Directory interface {
	Reader
	Writer
}
