package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rl1809/wip-inventory/internal/core/domain"
	"go.uber.org/zap"
)

const (
	msgQuantityNotPositive = "quantity must be greater than zero."
	msgQuantityTooLarge    = "quantity must not exceed 2147483647."
	msgQuantityOverflow    = "resulting quantity would exceed 2147483647."
	msgSameLocation        = "source and destination are the same location."
	msgRecordNotFound      = "no inventory found for the given part/operation/location."
	msgLookupFailed        = "inventory lookup failed."
)

func invalidLocation(code string) string {
	return "invalid location: " + code
}

// fieldLabels names struct fields in required-field messages
var fieldLabels = map[string]string{
	"PartID":      "part id",
	"Operation":   "operation",
	"RequestedBy": "requested by",
	"User":        "user",
}

// TransferValidator checks requests against the ledger and the location directory.
// It never mutates anything.
type TransferValidator struct {
	query     *InventoryQuery
	locations *LocationDirectory
	structs   *validator.Validate
	logger    *zap.Logger
}

func NewTransferValidator(query *InventoryQuery, locations *LocationDirectory, logger *zap.Logger) *TransferValidator {
	return &TransferValidator{
		query:     query,
		locations: locations,
		structs:   validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Validate collects every rule violation of req, in rule order.
func (v *TransferValidator) Validate(ctx context.Context, req domain.TransferRequest) domain.ValidationOutcome {
	var errs []string

	if msg := checkQuantity(req.RequestedQuantity); msg != "" {
		errs = append(errs, msg)
	}
	if !v.locations.IsValidLocation(req.FromLocation) {
		errs = append(errs, invalidLocation(req.FromLocation))
	}
	if !v.locations.IsValidLocation(req.ToLocation) {
		errs = append(errs, invalidLocation(req.ToLocation))
	}
	if req.FromLocation == req.ToLocation {
		errs = append(errs, msgSameLocation)
	}
	if msg := v.checkRecord(ctx, req.SourceKey()); msg != "" {
		errs = append(errs, msg)
	}
	errs = append(errs, v.requiredFields(req)...)

	return outcome(errs)
}

// ValidateStock checks an add or remove request. Removal also requires the record to exist.
func (v *TransferValidator) ValidateStock(ctx context.Context, req domain.StockRequest, requireRecord bool) domain.ValidationOutcome {
	var errs []string

	if msg := checkQuantity(req.Quantity); msg != "" {
		errs = append(errs, msg)
	}
	if !v.locations.IsValidLocation(req.Location) {
		errs = append(errs, invalidLocation(req.Location))
	}
	if requireRecord {
		if msg := v.checkRecord(ctx, req.Key()); msg != "" {
			errs = append(errs, msg)
		}
	}
	errs = append(errs, v.requiredFields(req)...)

	return outcome(errs)
}

func checkQuantity(q int) string {
	switch {
	case q <= 0:
		return msgQuantityNotPositive
	case q > domain.MaxQuantity:
		return msgQuantityTooLarge
	}
	return ""
}

func (v *TransferValidator) checkRecord(ctx context.Context, key domain.Key) string {
	_, err := v.query.Find(ctx, key)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotFound):
		return msgRecordNotFound
	default:
		v.logger.Warn("inventory lookup failed during validation",
			zap.String("key", key.String()), zap.Error(err))
		return msgLookupFailed
	}
}

func (v *TransferValidator) requiredFields(s any) []string {
	err := v.structs.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		msgs = append(msgs, fmt.Sprintf("%s is required.", label))
	}
	return msgs
}

func outcome(errs []string) domain.ValidationOutcome {
	if len(errs) == 0 {
		return domain.ValidationOutcome{IsValid: true, Errors: []string{}}
	}
	return domain.ValidationOutcome{IsValid: false, Errors: errs}
}
