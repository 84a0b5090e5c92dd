package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/logging"
	"github.com/rl1809/wip-inventory/internal/port"
)

const instrumentationName = "github.com/rl1809/wip-inventory/internal/core/service"

const (
	OpTransfer    = "transfer"
	OpAddStock    = "add_stock"
	OpRemoveStock = "remove_stock"
)

// ErrAborted wraps caller cancellation observed before the ledger mutation started.
var ErrAborted = errors.New("operation aborted before mutation")

type Option func(*TransferService)

func WithIDGenerator(ids port.IDGenerator) Option {
	return func(s *TransferService) { s.ids = ids }
}

// WithRetry bounds the retries of a failed ledger write. maxRetries excludes the first attempt.
func WithRetry(maxRetries int, initial time.Duration) Option {
	return func(s *TransferService) {
		s.maxRetries = maxRetries
		s.retryInitial = initial
	}
}

// WithPersistTimeout bounds a ledger write, retries included. The bound holds
// even after the caller has gone away.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *TransferService) { s.persistTimeout = d }
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *TransferService) { s.lockTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *TransferService) { s.now = now }
}

// TransferService is the only writer of the ledger. Every mutation runs under
// the lock of the key it decrements (or creates).
type TransferService struct {
	ledger    port.Ledger
	validator *TransferValidator
	locker    port.Locker
	sink      port.AuditSink
	ids       port.IDGenerator
	logger    *zap.Logger
	now       func() time.Time

	maxRetries     int
	retryInitial   time.Duration
	lockTimeout    time.Duration
	persistTimeout time.Duration

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

func NewTransferService(
	ledger port.Ledger,
	validator *TransferValidator,
	locker port.Locker,
	sink port.AuditSink,
	logger *zap.Logger,
	opts ...Option,
) *TransferService {
	s := &TransferService{
		ledger:         ledger,
		validator:      validator,
		locker:         locker,
		sink:           sink,
		ids:            UUIDGenerator{},
		logger:         logger,
		now:            time.Now,
		maxRetries:     3,
		retryInitial:   50 * time.Millisecond,
		lockTimeout:    5 * time.Second,
		persistTimeout: 3 * time.Second,
		tracer:         otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter("inventory.mutations",
		metric.WithDescription("Ledger mutations by operation and outcome"))
	if err != nil {
		logger.Warn("create mutation counter", zap.Error(err))
	}
	s.outcomes = counter
	return s
}

func (s *TransferService) Validate(ctx context.Context, req domain.TransferRequest) domain.ValidationOutcome {
	ctx, span := s.tracer.Start(ctx, "transfer.validate")
	defer span.End()

	out := s.validator.Validate(ctx, req)
	span.SetAttributes(attribute.Bool("valid", out.IsValid))
	return out
}

// ExecuteTransfer moves min(requested, available) units from the source to the
// destination key. A result is returned only when the ledger committed.
func (s *TransferService) ExecuteTransfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.execute", trace.WithAttributes(
		attribute.String("part_id", req.PartID),
		attribute.String("operation", req.Operation),
		attribute.String("from_location", req.FromLocation),
		attribute.String("to_location", req.ToLocation),
		attribute.Int("requested_quantity", req.RequestedQuantity),
	))
	defer span.End()

	fields := map[string]any{
		"part_id":            req.PartID,
		"operation":          req.Operation,
		"from_location":      req.FromLocation,
		"to_location":        req.ToLocation,
		"requested_quantity": req.RequestedQuantity,
	}

	result, err := s.executeTransfer(ctx, req, fields)

	event := port.AuditEvent{Operation: OpTransfer, UserID: req.RequestedBy, Err: err, Context: fields}
	if err == nil {
		event.Result = &result
		span.SetAttributes(
			attribute.Int("transferred_quantity", result.TransferredQuantity),
			attribute.Bool("split", result.WasSplit),
		)
	}
	s.finish(ctx, span, event)
	return result, err
}

func (s *TransferService) executeTransfer(ctx context.Context, req domain.TransferRequest, fields map[string]any) (domain.TransferResult, error) {
	if out := s.validator.Validate(ctx, req); !out.IsValid {
		return domain.TransferResult{}, domain.ValidationFailed(out.Errors)
	}

	src, dst := req.SourceKey(), req.DestinationKey()

	unlock, err := s.lock(ctx, src)
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer unlock()

	current, err := s.currentQuantity(ctx, src)
	if err != nil {
		return domain.TransferResult{}, err
	}
	fields["available_quantity"] = current
	if current < 0 {
		return domain.TransferResult{}, domain.PersistenceFailure(fmt.Errorf("%s holds negative quantity %d", src, current))
	}
	if current == 0 {
		return domain.TransferResult{}, domain.InsufficientQuantity(src, 0)
	}

	effective := min(req.RequestedQuantity, current)
	split := effective < req.RequestedQuantity

	if err := ctx.Err(); err != nil {
		return domain.TransferResult{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	tx := s.newTransaction(domain.TransactionTransfer, src, req.FromLocation, req.ToLocation, effective, req.RequestedBy, req.Notes)
	fields["transaction_id"] = tx.ID
	fields["transferred_quantity"] = effective

	err = s.persist(ctx, func(ctx context.Context) error {
		return s.ledger.Transfer(ctx, src, dst, effective, tx)
	})
	if err != nil {
		return domain.TransferResult{}, s.mutationError(src, err)
	}

	return domain.TransferResult{
		TransactionID:       tx.ID,
		OriginalQuantity:    req.RequestedQuantity,
		TransferredQuantity: effective,
		RemainingQuantity:   0,
		WasSplit:            split,
		Message:             domain.TransferMessage(effective, split),
		PartID:              req.PartID,
		Operation:           req.Operation,
		FromLocation:        req.FromLocation,
		ToLocation:          req.ToLocation,
		UserID:              req.RequestedBy,
		CompletedAt:         tx.CreatedAt,
	}, nil
}

// AddStock creates the record at req's key or increments it.
func (s *TransferService) AddStock(ctx context.Context, req domain.StockRequest) (domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.add", trace.WithAttributes(
		attribute.String("key", req.Key().String()),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	fields := stockFields(req)
	tx, err := s.addStock(ctx, req, fields)

	event := port.AuditEvent{Operation: OpAddStock, UserID: req.User, Err: err, Context: fields}
	if err == nil {
		event.Transaction = &tx
	}
	s.finish(ctx, span, event)
	return tx, err
}

func (s *TransferService) addStock(ctx context.Context, req domain.StockRequest, fields map[string]any) (domain.Transaction, error) {
	if out := s.validator.ValidateStock(ctx, req, false); !out.IsValid {
		return domain.Transaction{}, domain.ValidationFailed(out.Errors)
	}

	key := req.Key()
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	tx := s.newTransaction(domain.TransactionIn, key, "", req.Location, req.Quantity, req.User, req.Notes)
	fields["transaction_id"] = tx.ID

	rec := domain.InventoryRecord{
		PartID:      req.PartID,
		Operation:   req.Operation,
		Location:    req.Location,
		Quantity:    req.Quantity,
		ItemType:    req.ItemType,
		BatchNumber: req.BatchNumber,
	}
	err = s.persist(ctx, func(ctx context.Context) error {
		return s.ledger.Add(ctx, rec, tx)
	})
	if err != nil {
		return domain.Transaction{}, s.mutationError(key, err)
	}
	return tx, nil
}

// RemoveStock decrements an existing record. Unlike transfers, removal is
// never capped: asking for more than is available is rejected.
func (s *TransferService) RemoveStock(ctx context.Context, req domain.StockRequest) (domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.remove", trace.WithAttributes(
		attribute.String("key", req.Key().String()),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	fields := stockFields(req)
	tx, err := s.removeStock(ctx, req, fields)

	event := port.AuditEvent{Operation: OpRemoveStock, UserID: req.User, Err: err, Context: fields}
	if err == nil {
		event.Transaction = &tx
	}
	s.finish(ctx, span, event)
	return tx, err
}

func (s *TransferService) removeStock(ctx context.Context, req domain.StockRequest, fields map[string]any) (domain.Transaction, error) {
	if out := s.validator.ValidateStock(ctx, req, true); !out.IsValid {
		return domain.Transaction{}, domain.ValidationFailed(out.Errors)
	}

	key := req.Key()
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer unlock()

	current, err := s.currentQuantity(ctx, key)
	if err != nil {
		return domain.Transaction{}, err
	}
	fields["available_quantity"] = current
	if current < 0 {
		return domain.Transaction{}, domain.PersistenceFailure(fmt.Errorf("%s holds negative quantity %d", key, current))
	}
	if current == 0 || req.Quantity > current {
		return domain.Transaction{}, domain.InsufficientQuantity(key, current)
	}

	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	tx := s.newTransaction(domain.TransactionOut, key, req.Location, "", req.Quantity, req.User, req.Notes)
	fields["transaction_id"] = tx.ID

	err = s.persist(ctx, func(ctx context.Context) error {
		return s.ledger.Remove(ctx, key, req.Quantity, tx)
	})
	if err != nil {
		return domain.Transaction{}, s.mutationError(key, err)
	}
	return tx, nil
}

func (s *TransferService) lock(ctx context.Context, key domain.Key) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, key.String())
	if err == nil {
		return unlock, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, ctxErr)
	}
	return nil, domain.PersistenceFailure(fmt.Errorf("acquire lock %s: %w", key, err))
}

// currentQuantity re-reads key under its lock. A record that vanished after
// validation counts as empty.
func (s *TransferService) currentQuantity(ctx context.Context, key domain.Key) (int, error) {
	var rec domain.InventoryRecord
	err := s.retry(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.ledger.Get(ctx, key)
		return err
	})
	switch {
	case err == nil:
		return rec.Quantity, nil
	case errors.Is(err, domain.ErrNotFound):
		return 0, nil
	case ctx.Err() != nil:
		return 0, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	default:
		return 0, domain.PersistenceFailure(fmt.Errorf("read %s: %w", key, err))
	}
}

// persist runs a ledger write detached from caller cancellation, so a started
// mutation runs to commit or abort, but never longer than persistTimeout. A
// stalled write is cancelled and its database transaction rolls back whole.
//
// Transaction ids are fresh per mutation, so a duplicate id seen on a retry
// means an earlier attempt committed before its reply was lost.
func (s *TransferService) persist(ctx context.Context, write func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	if s.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.persistTimeout)
		defer cancel()
	}

	attempt := 0
	return s.retry(ctx, func(ctx context.Context) error {
		attempt++
		err := write(ctx)
		if attempt > 1 && errors.Is(err, domain.ErrDuplicateTransaction) {
			logging.L(ctx, s.logger).Info("earlier write attempt committed", zap.Int("attempt", attempt))
			return nil
		}
		return err
	})
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	for _, target := range []error{
		domain.ErrInsufficientQuantity,
		domain.ErrNotFound,
		domain.ErrQuantityOverflow,
		domain.ErrDuplicateTransaction,
		domain.ErrConstraintViolation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *TransferService) retry(ctx context.Context, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logging.L(ctx, s.logger).Warn("ledger call failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.maxRetries),
			zap.Error(err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.maxRetries, 0))), ctx))
}

func (s *TransferService) mutationError(key domain.Key, err error) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientQuantity), errors.Is(err, domain.ErrNotFound):
		return domain.InsufficientQuantity(key, 0)
	case errors.Is(err, domain.ErrQuantityOverflow):
		return domain.ValidationFailed([]string{msgQuantityOverflow})
	}
	return domain.PersistenceFailure(fmt.Errorf("write %s: %w", key, err))
}

func (s *TransferService) newTransaction(typ domain.TransactionType, key domain.Key, from, to string, qty int, user, notes string) domain.Transaction {
	return domain.Transaction{
		ID:           s.ids.NewID(),
		Type:         typ,
		PartID:       key.PartID,
		Operation:    key.Operation,
		FromLocation: from,
		ToLocation:   to,
		Quantity:     qty,
		User:         user,
		Notes:        notes,
		CreatedAt:    s.now().UTC(),
	}
}

// finish records the outcome on the span and the counter, then hands the event
// to the audit sink. Sink failures are logged and otherwise ignored.
func (s *TransferService) finish(ctx context.Context, span trace.Span, event port.AuditEvent) {
	outcome := "success"
	if event.Err != nil {
		event.Kind = domain.KindOf(event.Err)
		outcome = string(event.Kind)
		if outcome == "" {
			outcome = "aborted"
		}
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, outcome)
	} else if event.Result != nil && event.Result.WasSplit {
		outcome = "split"
	}

	if s.outcomes != nil {
		s.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", event.Operation),
			attribute.String("outcome", outcome),
		))
	}

	if s.sink == nil {
		return
	}
	event.OccurredAt = s.now().UTC()
	if err := s.sink.Record(context.WithoutCancel(ctx), event); err != nil {
		logging.L(ctx, s.logger).Debug("audit sink rejected event",
			zap.String("operation", event.Operation), zap.Error(err))
	}
}

func stockFields(req domain.StockRequest) map[string]any {
	return map[string]any{
		"part_id":   req.PartID,
		"operation": req.Operation,
		"location":  req.Location,
		"quantity":  req.Quantity,
	}
}
