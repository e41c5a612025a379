package analytics

import (
	"context"
	"time"

	"github.com/syed-c/standzon-sub008/internal/events"
	apphttp "github.com/syed-c/standzon-sub008/internal/http"
)

// Module exposes the quote-matching dashboard under the admin group.
type Module struct {
	agg     *Aggregator
	handler *Handler
}

// NewModule subscribes agg to bus and replays src so the dashboard survives
// restarts. Either may be nil.
func NewModule(ctx context.Context, agg *Aggregator, bus events.Bus, src EventSource) (*Module, error) {
	if bus != nil {
		agg.RegisterHandlers(bus)
	}
	if src != nil {
		if err := agg.Rebuild(ctx, src); err != nil {
			return nil, err
		}
	}
	return &Module{agg: agg, handler: NewHandler(agg)}, nil
}

// Follow keeps the dashboard current with events other processes append to
// the log. It blocks until ctx is done.
func (m *Module) Follow(ctx context.Context, feed EventFeed, interval time.Duration) {
	m.agg.Follow(ctx, feed, interval)
}

func (m *Module) Name() string {
	return "analytics"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/analytics"))
}

var _ apphttp.Module = (*Module)(nil)
