package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransferRequest struct {
	PartID            string `json:"part_id" validate:"required"`
	Operation         string `json:"operation" validate:"required"`
	FromLocation      string `json:"from_location"`
	ToLocation        string `json:"to_location"`
	RequestedQuantity int    `json:"quantity"`
	RequestedBy       string `json:"requested_by" validate:"required"`
	Notes             string `json:"notes,omitempty"`
}

func (r TransferRequest) SourceKey() Key {
	return Key{PartID: r.PartID, Operation: r.Operation, Location: r.FromLocation}
}

func (r TransferRequest) DestinationKey() Key {
	return Key{PartID: r.PartID, Operation: r.Operation, Location: r.ToLocation}
}

// TransferResult is created once per successful transfer and never modified.
type TransferResult struct {
	TransactionID       string
	OriginalQuantity    int
	TransferredQuantity int
	RemainingQuantity   int
	WasSplit            bool
	Message             string

	PartID       string
	Operation    string
	FromLocation string
	ToLocation   string
	UserID       string
	CompletedAt  time.Time
}

// Efficiency is the share of the requested quantity that moved, in percent.
func (r TransferResult) Efficiency() decimal.Decimal {
	if r.OriginalQuantity == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.TransferredQuantity)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(r.OriginalQuantity))).
		Round(2)
}

func (r TransferResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction %s: %s Op:%s\n", r.TransactionID, r.PartID, r.Operation)
	fmt.Fprintf(&b, "From: %s -> To: %s\n", r.FromLocation, r.ToLocation)
	fmt.Fprintf(&b, "Transferred: %d of %d", r.TransferredQuantity, r.OriginalQuantity)
	if r.WasSplit {
		fmt.Fprintf(&b, " (capped, %s%%)", r.Efficiency().String())
	}
	fmt.Fprintf(&b, "\nCompleted: %s", r.CompletedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "\nBy: %s", r.UserID)
	if r.Message != "" {
		fmt.Fprintf(&b, "\nMessage: %s", r.Message)
	}
	return b.String()
}

func TransferMessage(transferred int, split bool) string {
	if split {
		return fmt.Sprintf("Transfer completed. %d units transferred (capped to available quantity).", transferred)
	}
	return fmt.Sprintf("Transfer completed. Full quantity of %d units transferred.", transferred)
}

type ValidationOutcome struct {
	IsValid bool
	Errors  []string
}

// StockRequest adds or removes quantity at a single location.
type StockRequest struct {
	PartID      string `json:"part_id" validate:"required"`
	Operation   string `json:"operation" validate:"required"`
	Location    string `json:"location"`
	Quantity    int    `json:"quantity"`
	ItemType    string `json:"item_type,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`
	User        string `json:"user" validate:"required"`
	Notes       string `json:"notes,omitempty"`
}

func (r StockRequest) Key() Key {
	return Key{PartID: r.PartID, Operation: r.Operation, Location: r.Location}
}
