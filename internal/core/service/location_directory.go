package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rl1809/wip-inventory/internal/port"
	"go.uber.org/zap"
)

type locationSet struct {
	codes   map[string]struct{}
	ordered []string
}

// LocationDirectory is a read-only snapshot of the location catalog. Until a
// load succeeds it fails closed: every code is invalid.
type LocationDirectory struct {
	catalog port.LocationCatalog
	logger  *zap.Logger
	current atomic.Pointer[locationSet]
}

func NewLocationDirectory(ctx context.Context, catalog port.LocationCatalog, logger *zap.Logger) *LocationDirectory {
	d := &LocationDirectory{catalog: catalog, logger: logger}
	d.current.Store(&locationSet{codes: map[string]struct{}{}})

	if err := d.Reload(ctx); err != nil {
		logger.Error("location catalog unavailable, rejecting all locations", zap.Error(err))
	}
	return d
}

// Reload swaps in a fresh catalog snapshot. On failure the previous snapshot is kept.
func (d *LocationDirectory) Reload(ctx context.Context) error {
	codes, err := d.catalog.Locations(ctx)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}

	set := &locationSet{codes: make(map[string]struct{}, len(codes))}
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, dup := set.codes[code]; dup {
			continue
		}
		set.codes[code] = struct{}{}
		set.ordered = append(set.ordered, code)
	}
	d.current.Store(set)

	d.logger.Info("location catalog loaded", zap.Int("locations", len(set.ordered)))
	return nil
}

func (d *LocationDirectory) IsValidLocation(code string) bool {
	_, ok := d.current.Load().codes[code]
	return ok
}

func (d *LocationDirectory) ListLocations() []string {
	set := d.current.Load()
	out := make([]string, len(set.ordered))
	copy(out, set.ordered)
	return out
}
