package domain

import "time"

type TransactionType string

const (
	TransactionIn       TransactionType = "IN"
	TransactionOut      TransactionType = "OUT"
	TransactionTransfer TransactionType = "TRANSFER"
)

// Transaction is the audit row written together with every ledger mutation.
// For IN rows FromLocation is empty, for OUT rows ToLocation is empty.
type Transaction struct {
	ID           string
	Type         TransactionType
	PartID       string
	Operation    string
	FromLocation string
	ToLocation   string
	Quantity     int
	User         string
	Notes        string
	CreatedAt    time.Time
}

type TransactionSummary struct {
	From                 time.Time
	To                   time.Time
	TotalTransactions    int
	InTransactions       int
	OutTransactions      int
	TransferTransactions int
	QuantityIn           int
	QuantityOut          int
	QuantityTransferred  int
}

// Summarize folds a set of transactions into per-type counts.
func Summarize(from, to time.Time, txs []Transaction) TransactionSummary {
	s := TransactionSummary{From: from, To: to}
	for _, tx := range txs {
		s.TotalTransactions++
		switch tx.Type {
		case TransactionIn:
			s.InTransactions++
			s.QuantityIn += tx.Quantity
		case TransactionOut:
			s.OutTransactions++
			s.QuantityOut += tx.Quantity
		case TransactionTransfer:
			s.TransferTransactions++
			s.QuantityTransferred += tx.Quantity
		}
	}
	return s
}
