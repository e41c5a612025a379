package builders

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryDirectory is an in-process Directory, seeded from YAML or tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewMemoryDirectory returns a directory holding the given builders.
func NewMemoryDirectory(initial ...Builder) *MemoryDirectory {
	d := &MemoryDirectory{builders: make(map[string]Builder, len(initial))}
	for _, b := range initial {
		d.builders[b.ID] = cloneBuilder(b)
	}
	return d
}

func (d *MemoryDirectory) List(_ context.Context) ([]Builder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Builder, 0, len(d.builders))
	for _, b := range d.builders {
		out = append(out, cloneBuilder(b))
	}
	slices.SortFunc(out, func(a, b Builder) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (Builder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.builders[id]
	if !ok {
		return Builder{}, ErrNotFound
	}
	return cloneBuilder(b), nil
}

func (d *MemoryDirectory) Upsert(_ context.Context, b Builder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b.UpdatedAt = time.Now().UTC()
	d.builders[b.ID] = cloneBuilder(b)
	return nil
}

func (d *MemoryDirectory) SetVerified(_ context.Context, id string, verified bool) (Builder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.builders[id]
	if !ok {
		return Builder{}, ErrNotFound
	}
	b.Verified = verified
	b.UpdatedAt = time.Now().UTC()
	d.builders[id] = b
	return cloneBuilder(b), nil
}

func cloneBuilder(b Builder) Builder {
	b.Channels = slices.Clone(b.Channels)
	b.Locations = slices.Clone(b.Locations)
	b.Services = slices.Clone(b.Services)
	return b
}

var _ Directory = (*MemoryDirectory)(nil)
