package handler

import (
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/core/service"
)

// Services groups the core services both transports call into.
type Services struct {
	Query     *service.InventoryQuery
	Transfers *service.TransferService
	Locations *service.LocationDirectory
	History   *service.HistoryService
}

type recordResponse struct {
	PartID      string    `json:"part_id"`
	Operation   string    `json:"operation"`
	Location    string    `json:"location"`
	Quantity    int       `json:"quantity"`
	ItemType    string    `json:"item_type,omitempty"`
	BatchNumber string    `json:"batch_number,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type transferResponse struct {
	TransactionID       string    `json:"transaction_id"`
	PartID              string    `json:"part_id"`
	Operation           string    `json:"operation"`
	FromLocation        string    `json:"from_location"`
	ToLocation          string    `json:"to_location"`
	OriginalQuantity    int       `json:"original_quantity"`
	TransferredQuantity int       `json:"transferred_quantity"`
	RemainingQuantity   int       `json:"remaining_quantity"`
	WasSplit            bool      `json:"was_split"`
	Efficiency          string    `json:"efficiency"`
	Message             string    `json:"message"`
	CompletedAt         time.Time `json:"completed_at"`
}

type transactionResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	PartID       string    `json:"part_id"`
	Operation    string    `json:"operation"`
	FromLocation string    `json:"from_location,omitempty"`
	ToLocation   string    `json:"to_location,omitempty"`
	Quantity     int       `json:"quantity"`
	User         string    `json:"user"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type validationResponse struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

func toRecords(recs []domain.InventoryRecord) []recordResponse {
	out := make([]recordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordResponse{
			PartID:      r.PartID,
			Operation:   r.Operation,
			Location:    r.Location,
			Quantity:    r.Quantity,
			ItemType:    r.ItemType,
			BatchNumber: r.BatchNumber,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out
}

func toTransfer(r domain.TransferResult) transferResponse {
	return transferResponse{
		TransactionID:       r.TransactionID,
		PartID:              r.PartID,
		Operation:           r.Operation,
		FromLocation:        r.FromLocation,
		ToLocation:          r.ToLocation,
		OriginalQuantity:    r.OriginalQuantity,
		TransferredQuantity: r.TransferredQuantity,
		RemainingQuantity:   r.RemainingQuantity,
		WasSplit:            r.WasSplit,
		Efficiency:          r.Efficiency().String(),
		Message:             r.Message,
		CompletedAt:         r.CompletedAt,
	}
}

func toTransaction(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Type:         string(tx.Type),
		PartID:       tx.PartID,
		Operation:    tx.Operation,
		FromLocation: tx.FromLocation,
		ToLocation:   tx.ToLocation,
		Quantity:     tx.Quantity,
		User:         tx.User,
		Notes:        tx.Notes,
		CreatedAt:    tx.CreatedAt,
	}
}

func toTransactions(txs []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransaction(tx))
	}
	return out
}

func toValidation(out domain.ValidationOutcome) validationResponse {
	errs := out.Errors
	if errs == nil {
		errs = []string{}
	}
	return validationResponse{IsValid: out.IsValid, Errors: errs}
}
