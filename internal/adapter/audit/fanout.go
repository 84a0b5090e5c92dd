package audit

import (
	"context"
	"errors"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.AuditSink = Fanout(nil)

// Fanout delivers every event to each sink in turn. A failing sink does not
// stop delivery to the rest; all failures are joined.
type Fanout []port.AuditSink

func (f Fanout) Record(ctx context.Context, event port.AuditEvent) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
