package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/adapter/catalog"
	"github.com/rl1809/wip-inventory/internal/adapter/lock"
	"github.com/rl1809/wip-inventory/internal/adapter/storage"
	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

var errStorageDown = errors.New("connection reset by peer")

var testLocations = []string{"RECEIVING", "FLOOR", "QC", "SHIPPING"}

func record(partID, op, loc string, qty int) domain.InventoryRecord {
	return domain.InventoryRecord{PartID: partID, Operation: op, Location: loc, Quantity: qty, ItemType: "WIP"}
}

func transferReq(from, to string, qty int) domain.TransferRequest {
	return domain.TransferRequest{
		PartID:            "PART001",
		Operation:         "90",
		FromLocation:      from,
		ToLocation:        to,
		RequestedQuantity: qty,
		RequestedBy:       "jdoe",
	}
}

// Mock AuditSink
type recordingSink struct {
	mu     sync.Mutex
	events []port.AuditEvent
	err    error
}

func (s *recordingSink) Record(ctx context.Context, event port.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) Events() []port.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]port.AuditEvent(nil), s.events...)
}

// flakyLedger fails the next failWrites mutations before delegating.
// lostReplies commits a mutation but reports a failure to the caller.
type flakyLedger struct {
	*storage.MemoryLedger

	mu          sync.Mutex
	failWrites  int
	writeErr    error
	lostReplies int
	writeCalls  int
	failReads   bool
	onWrite     func(ctx context.Context)
}

func (f *flakyLedger) write(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.onWrite != nil {
		f.onWrite(ctx)
	}
	if f.failWrites != 0 {
		if f.failWrites > 0 {
			f.failWrites--
		}
		if f.writeErr != nil {
			return f.writeErr
		}
		return errStorageDown
	}
	return nil
}

func (f *flakyLedger) reply(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil && f.lostReplies > 0 {
		f.lostReplies--
		return errStorageDown
	}
	return err
}

func (f *flakyLedger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

func (f *flakyLedger) Get(ctx context.Context, key domain.Key) (domain.InventoryRecord, error) {
	if f.failReads {
		return domain.InventoryRecord{}, errStorageDown
	}
	return f.MemoryLedger.Get(ctx, key)
}

func (f *flakyLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, tx domain.Transaction) error {
	if err := f.write(ctx); err != nil {
		return err
	}
	return f.reply(f.MemoryLedger.Transfer(ctx, src, dst, quantity, tx))
}

func (f *flakyLedger) Add(ctx context.Context, rec domain.InventoryRecord, tx domain.Transaction) error {
	if err := f.write(ctx); err != nil {
		return err
	}
	return f.reply(f.MemoryLedger.Add(ctx, rec, tx))
}

func (f *flakyLedger) Remove(ctx context.Context, key domain.Key, quantity int, tx domain.Transaction) error {
	if err := f.write(ctx); err != nil {
		return err
	}
	return f.reply(f.MemoryLedger.Remove(ctx, key, quantity, tx))
}

// stallingLedger never completes a transfer before its context ends.
type stallingLedger struct {
	*storage.MemoryLedger
}

func (l stallingLedger) Transfer(ctx context.Context, src, dst domain.Key, quantity int, tx domain.Transaction) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingCatalog struct{}

func (failingCatalog) Locations(ctx context.Context) ([]string, error) {
	return nil, errStorageDown
}

type stubLocker struct{ err error }

func (l stubLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, l.err
}

type fixture struct {
	mem       *storage.MemoryLedger
	ledger    *flakyLedger
	sink      *recordingSink
	validator *TransferValidator
	svc       *TransferService
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, seed ...domain.InventoryRecord) *fixture {
	t.Helper()
	return newFixtureWith(t, lock.NewKeyedLocker(), seed...)
}

func newFixtureWith(t *testing.T, locker port.Locker, seed ...domain.InventoryRecord) *fixture {
	t.Helper()

	mem := storage.NewMemoryLedger(seed...)
	ledger := &flakyLedger{MemoryLedger: mem}
	logger := zap.NewNop()

	dir := NewLocationDirectory(context.Background(), catalog.NewStaticCatalog(testLocations), logger)
	validator := NewTransferValidator(NewInventoryQuery(ledger), dir, logger)
	sink := &recordingSink{}

	svc := NewTransferService(ledger, validator, locker, sink, logger,
		WithRetry(2, time.Millisecond),
		WithLockTimeout(time.Second),
		WithClock(func() time.Time { return fixedNow }),
	)

	return &fixture{mem: mem, ledger: ledger, sink: sink, validator: validator, svc: svc}
}

func (f *fixture) quantity(t *testing.T, loc string) int {
	t.Helper()
	rec, err := f.mem.Get(context.Background(), domain.Key{PartID: "PART001", Operation: "90", Location: loc})
	if errors.Is(err, domain.ErrNotFound) {
		return -1
	}
	if err != nil {
		t.Fatalf("get %s: %v", loc, err)
	}
	return rec.Quantity
}
