package port

import (
	"context"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

type LocationCatalog interface {
	// Locations returns every valid location code
	Locations(ctx context.Context) ([]string, error)
}

type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type IDGenerator interface {
	NewID() string
}

// AuditEvent describes the outcome of one engine call.
type AuditEvent struct {
	Operation   string
	UserID      string
	Kind        domain.ErrorKind
	Err         error
	Result      *domain.TransferResult
	Transaction *domain.Transaction
	Context     map[string]any
	OccurredAt  time.Time
}

func (e AuditEvent) Failed() bool {
	return e.Err != nil
}

type AuditSink interface {
	// Record must not block the caller for long; its error is never acted on by the engine
	Record(ctx context.Context, event AuditEvent) error
}
