package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.LocationCatalog = (*StaticCatalog)(nil)

var ErrEmptyCatalog = errors.New("location catalog is empty")

// DefaultLocations are the shop-floor codes used when nothing is configured.
var DefaultLocations = []string{"RECEIVING", "FLOOR", "QC", "SHIPPING", "STOCK"}

// StaticCatalog serves a fixed list of codes, typically from configuration.
type StaticCatalog struct {
	codes []string
}

func NewStaticCatalog(codes []string) *StaticCatalog {
	cleaned := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return &StaticCatalog{codes: cleaned}
}

func (c *StaticCatalog) Locations(ctx context.Context) ([]string, error) {
	if len(c.codes) == 0 {
		return nil, ErrEmptyCatalog
	}
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out, nil
}
