package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

var (
	ErrInvalidRange  = errors.New("from must be before to")
	ErrMissingFilter = errors.New("a part id or user is required")
)

// HistoryService reads the transaction rows written alongside ledger mutations.
type HistoryService struct {
	log port.TransactionLog
}

func NewHistoryService(log port.TransactionLog) *HistoryService {
	return &HistoryService{log: log}
}

func (h *HistoryService) ByPart(ctx context.Context, partID string, limit int) ([]domain.Transaction, error) {
	if partID == "" {
		return nil, ErrMissingFilter
	}
	txs, err := h.log.TransactionsByPart(ctx, partID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("transactions by part %s: %w", partID, err)
	}
	return txs, nil
}

func (h *HistoryService) ByUser(ctx context.Context, user string, limit int) ([]domain.Transaction, error) {
	if user == "" {
		return nil, ErrMissingFilter
	}
	txs, err := h.log.TransactionsByUser(ctx, user, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("transactions by user %s: %w", user, err)
	}
	return txs, nil
}

func (h *HistoryService) InRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}
	txs, err := h.log.TransactionsInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("transactions in range: %w", err)
	}
	return txs, nil
}

func (h *HistoryService) Summary(ctx context.Context, from, to time.Time) (domain.TransactionSummary, error) {
	txs, err := h.InRange(ctx, from, to)
	if err != nil {
		return domain.TransactionSummary{}, err
	}
	return domain.Summarize(from, to, txs), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
