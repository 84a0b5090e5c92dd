package audit

import (
	"errors"
	"time"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/port"
)

const eventVersion = 1

// eventDocument is the wire and storage shape shared by the Kafka and Mongo sinks.
type eventDocument struct {
	EventID      string          `json:"event_id" bson:"event_id"`
	EventType    string          `json:"event_type" bson:"event_type"`
	EventVersion int             `json:"event_version" bson:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at" bson:"occurred_at"`
	Operation    string          `json:"operation" bson:"operation"`
	UserID       string          `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Outcome      string          `json:"outcome" bson:"outcome"`
	Kind         string          `json:"kind,omitempty" bson:"kind,omitempty"`
	Error        string          `json:"error,omitempty" bson:"error,omitempty"`
	Transfer     *transferDoc    `json:"transfer,omitempty" bson:"transfer,omitempty"`
	Transaction  *transactionDoc `json:"transaction,omitempty" bson:"transaction,omitempty"`
	Context      map[string]any  `json:"context,omitempty" bson:"context,omitempty"`
}

type transferDoc struct {
	TransactionID       string `json:"transaction_id" bson:"transaction_id"`
	PartID              string `json:"part_id" bson:"part_id"`
	Operation           string `json:"operation" bson:"operation"`
	FromLocation        string `json:"from_location" bson:"from_location"`
	ToLocation          string `json:"to_location" bson:"to_location"`
	OriginalQuantity    int    `json:"original_quantity" bson:"original_quantity"`
	TransferredQuantity int    `json:"transferred_quantity" bson:"transferred_quantity"`
	WasSplit            bool   `json:"was_split" bson:"was_split"`
	Efficiency          string `json:"efficiency" bson:"efficiency"`
}

type transactionDoc struct {
	ID           string `json:"id" bson:"id"`
	Type         string `json:"type" bson:"type"`
	PartID       string `json:"part_id" bson:"part_id"`
	Operation    string `json:"operation" bson:"operation"`
	FromLocation string `json:"from_location,omitempty" bson:"from_location,omitempty"`
	ToLocation   string `json:"to_location,omitempty" bson:"to_location,omitempty"`
	Quantity     int    `json:"quantity" bson:"quantity"`
}

func outcome(event port.AuditEvent) string {
	if !event.Failed() {
		return "success"
	}
	if event.Kind == "" {
		return "aborted"
	}
	return string(event.Kind)
}

func newDocument(id string, event port.AuditEvent) eventDocument {
	doc := eventDocument{
		EventID:      id,
		EventType:    "inventory." + event.Operation + "." + outcome(event),
		EventVersion: eventVersion,
		OccurredAt:   event.OccurredAt.UTC(),
		Operation:    event.Operation,
		UserID:       event.UserID,
		Outcome:      outcome(event),
		Kind:         string(event.Kind),
		Context:      event.Context,
	}
	if doc.OccurredAt.IsZero() {
		doc.OccurredAt = time.Now().UTC()
	}
	if event.Err != nil {
		doc.Error = userMessage(event.Err)
	}
	if r := event.Result; r != nil {
		doc.Transfer = &transferDoc{
			TransactionID:       r.TransactionID,
			PartID:              r.PartID,
			Operation:           r.Operation,
			FromLocation:        r.FromLocation,
			ToLocation:          r.ToLocation,
			OriginalQuantity:    r.OriginalQuantity,
			TransferredQuantity: r.TransferredQuantity,
			WasSplit:            r.WasSplit,
			Efficiency:          r.Efficiency().String(),
		}
	}
	if tx := event.Transaction; tx != nil {
		doc.Transaction = &transactionDoc{
			ID:           tx.ID,
			Type:         string(tx.Type),
			PartID:       tx.PartID,
			Operation:    tx.Operation,
			FromLocation: tx.FromLocation,
			ToLocation:   tx.ToLocation,
			Quantity:     tx.Quantity,
		}
	}
	return doc
}

// userMessage keeps internal causes out of published events.
func userMessage(err error) string {
	var te *domain.TransferError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}
