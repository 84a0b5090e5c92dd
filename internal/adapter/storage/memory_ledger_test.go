package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

func TestMemoryLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 50, ItemType: "WIP"})

	src := domain.Key{PartID: "PART001", Operation: "90", Location: "FLOOR"}
	dst := domain.Key{PartID: "PART001", Operation: "90", Location: "RECEIVING"}

	require.NoError(t, ledger.Transfer(ctx, src, dst, 50, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "RECEIVING", 50)))
	assert.ErrorIs(t, ledger.Transfer(ctx, src, dst, 1, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "RECEIVING", 1)), domain.ErrInsufficientQuantity)

	missing := domain.Key{PartID: "PART009", Operation: "90", Location: "FLOOR"}
	assert.ErrorIs(t, ledger.Transfer(ctx, missing, dst, 1, domain.Transaction{}), domain.ErrNotFound)

	records, err := ledger.Search(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].Quantity)
	assert.Equal(t, 50, records[1].Quantity)
	assert.Equal(t, "WIP", records[1].ItemType)

	txs, err := ledger.TransactionsByPart(ctx, "PART001", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestMemoryLedger_SearchReturnsCopies(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 5})

	records, err := ledger.Search(ctx, "PART001", "90")
	require.NoError(t, err)
	records[0].Quantity = 999

	rec, err := ledger.Get(ctx, records[0].Key())
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Quantity)
}

func TestMemoryLedger_Remove(t *testing.T) {
	ctx := context.Background()
	key := domain.Key{PartID: "PART001", Operation: "90", Location: "FLOOR"}
	ledger := NewMemoryLedger(domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 3})

	assert.ErrorIs(t, ledger.Remove(ctx, key, 4, domain.Transaction{}), domain.ErrInsufficientQuantity)
	require.NoError(t, ledger.Remove(ctx, key, 3, testTx(domain.TransactionOut, "PART001", "FLOOR", "", 3)))

	rec, err := ledger.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)
}

func TestMemoryLedger_SearchIsExactAndCaseSensitive(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger(domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 5})

	for _, partID := range []string{"part001", "PART", "ART001", "PART0011"} {
		records, err := ledger.Search(ctx, partID, "")
		require.NoError(t, err)
		assert.Empty(t, records, partID)
	}

	records, err := ledger.Search(ctx, "PART001", "9")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = ledger.Search(ctx, "PART001", "90")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMemoryLedger_RejectsOverflow(t *testing.T) {
	ctx := context.Background()
	floor := domain.Key{PartID: "PART001", Operation: "90", Location: "FLOOR"}
	qc := domain.Key{PartID: "PART001", Operation: "90", Location: "QC"}
	ledger := NewMemoryLedger(
		domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 10},
		domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "QC", Quantity: domain.MaxQuantity - 3},
	)

	err := ledger.Add(ctx, domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: domain.MaxQuantity},
		testTx(domain.TransactionIn, "PART001", "", "FLOOR", domain.MaxQuantity))
	assert.ErrorIs(t, err, domain.ErrQuantityOverflow)

	err = ledger.Add(ctx, domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "SHIPPING", Quantity: math.MaxInt},
		testTx(domain.TransactionIn, "PART001", "", "SHIPPING", 1))
	assert.ErrorIs(t, err, domain.ErrQuantityOverflow)

	err = ledger.Transfer(ctx, floor, qc, 5, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "QC", 5))
	assert.ErrorIs(t, err, domain.ErrQuantityOverflow)

	// nothing moved and nothing was logged
	rec, err := ledger.Get(ctx, floor)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Quantity)
	rec, err = ledger.Get(ctx, qc)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity-3, rec.Quantity)
	txs, err := ledger.TransactionsByPart(ctx, "PART001", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)

	require.NoError(t, ledger.Transfer(ctx, floor, qc, 3, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "QC", 3)))
	rec, err = ledger.Get(ctx, qc)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity, rec.Quantity)
}

func TestMemoryLedger_DuplicateTransactionID(t *testing.T) {
	ctx := context.Background()
	src := domain.Key{PartID: "PART001", Operation: "90", Location: "FLOOR"}
	dst := domain.Key{PartID: "PART001", Operation: "90", Location: "QC"}
	ledger := NewMemoryLedger(domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 10})

	tx := testTx(domain.TransactionTransfer, "PART001", "FLOOR", "QC", 4)
	require.NoError(t, ledger.Transfer(ctx, src, dst, 4, tx))
	assert.ErrorIs(t, ledger.Transfer(ctx, src, dst, 4, tx), domain.ErrDuplicateTransaction)
	assert.ErrorIs(t, ledger.Remove(ctx, src, 1, tx), domain.ErrDuplicateTransaction)

	rec, err := ledger.Get(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.Quantity)
}
