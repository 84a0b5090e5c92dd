package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

// getRedisClient prefers a live server from REDIS_ADDR and falls back to miniredis.
func getRedisClient(t *testing.T) *redis.Client {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(context.Background()).Err(); err == nil {
			client.FlushDB(context.Background())
			t.Cleanup(func() { client.Close() })
			return client
		}
		client.Close()
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func seedRedis(t *testing.T, ledger *RedisLedger, loc string, qty int) domain.Key {
	t.Helper()
	rec := domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: loc, Quantity: qty, ItemType: "WIP", BatchNumber: "B-7"}
	require.NoError(t, ledger.Add(context.Background(), rec, testTx(domain.TransactionIn, "PART001", "", loc, qty)))
	return rec.Key()
}

func TestRedisLedger_AddGetSearch(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()

	floor := seedRedis(t, ledger, "FLOOR", 10)
	seedRedis(t, ledger, "QC", 3)
	seedRedis(t, ledger, "FLOOR", 5)

	got, err := ledger.Get(ctx, floor)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Quantity)
	assert.Equal(t, "B-7", got.BatchNumber)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = ledger.Get(ctx, domain.Key{PartID: "PART001", Operation: "90", Location: "SHIPPING"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	records, err := ledger.Search(ctx, "PART001", "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "FLOOR", records[0].Location)
	assert.Equal(t, "QC", records[1].Location)

	records, err = ledger.Search(ctx, "", "10")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRedisLedger_Transfer(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()

	floor := seedRedis(t, ledger, "FLOOR", 50)
	receiving := domain.Key{PartID: "PART001", Operation: "90", Location: "RECEIVING"}

	require.NoError(t, ledger.Transfer(ctx, floor, receiving, 50,
		testTx(domain.TransactionTransfer, "PART001", "FLOOR", "RECEIVING", 50)))

	src, _ := ledger.Get(ctx, floor)
	dst, err := ledger.Get(ctx, receiving)
	require.NoError(t, err)
	assert.Equal(t, 0, src.Quantity)
	assert.Equal(t, 50, dst.Quantity)
	assert.Equal(t, "WIP", dst.ItemType)

	err = ledger.Transfer(ctx, floor, receiving, 1, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "RECEIVING", 1))
	assert.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	missing := domain.Key{PartID: "PART001", Operation: "90", Location: "NOPE"}
	err = ledger.Transfer(ctx, missing, receiving, 1, testTx(domain.TransactionTransfer, "PART001", "NOPE", "RECEIVING", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// zero rows stay searchable
	records, err := ledger.Search(ctx, "PART001", "90")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRedisLedger_RemoveConcurrent(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()
	key := seedRedis(t, ledger, "FLOOR", 20)

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.Remove(ctx, key, 1, testTx(domain.TransactionOut, "PART001", "FLOOR", "", 1))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientQuantity):
				insufficientCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), successCount.Load())
	assert.Equal(t, int32(30), insufficientCount.Load())

	rec, err := ledger.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)
}

func TestRedisLedger_Transactions(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: 1}
	for i := 0; i < 4; i++ {
		tx := testTx(domain.TransactionIn, "PART001", "", "FLOOR", 1)
		tx.ID = string(rune('a' + i))
		tx.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if i == 3 {
			tx.User = "other"
		}
		require.NoError(t, ledger.Add(ctx, rec, tx))
	}

	txs, err := ledger.TransactionsByPart(ctx, "PART001", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "d", txs[0].ID)
	assert.Equal(t, "c", txs[1].ID)

	txs, err = ledger.TransactionsByUser(ctx, "test-user", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	txs, err = ledger.TransactionsInRange(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "b", txs[0].ID)
	assert.Equal(t, domain.TransactionIn, txs[0].Type)
	assert.True(t, txs[0].CreatedAt.Equal(base.Add(time.Hour)))
}

func TestRedisLedger_Locations(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()

	codes, err := ledger.Locations(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	require.NoError(t, ledger.SetLocations(ctx, []string{"FLOOR", "QC"}))
	codes, err = ledger.Locations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"FLOOR", "QC"}, codes)
}

func TestRedisLedger_SearchIsExactAndCaseSensitive(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()
	seedRedis(t, ledger, "FLOOR", 5)

	for _, partID := range []string{"part001", "PART", "ART001", "PART0011"} {
		records, err := ledger.Search(ctx, partID, "")
		require.NoError(t, err)
		assert.Empty(t, records, partID)
	}

	records, err := ledger.Search(ctx, "PART001", "90")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRedisLedger_RejectsOverflow(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()

	floor := seedRedis(t, ledger, "FLOOR", 10)
	qc := seedRedis(t, ledger, "QC", domain.MaxQuantity-3)

	err := ledger.Add(ctx, domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: domain.MaxQuantity},
		testTx(domain.TransactionIn, "PART001", "", "FLOOR", domain.MaxQuantity))
	assert.ErrorIs(t, err, domain.ErrQuantityOverflow)

	err = ledger.Transfer(ctx, floor, qc, 5, testTx(domain.TransactionTransfer, "PART001", "FLOOR", "QC", 5))
	assert.ErrorIs(t, err, domain.ErrQuantityOverflow)

	src, err := ledger.Get(ctx, floor)
	require.NoError(t, err)
	assert.Equal(t, 10, src.Quantity)
	dst, err := ledger.Get(ctx, qc)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity-3, dst.Quantity)

	txs, err := ledger.TransactionsByPart(ctx, "PART001", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "only the two seed rows")
}

func TestRedisLedger_DuplicateTransactionID(t *testing.T) {
	ledger := NewRedisLedger(getRedisClient(t))
	ctx := context.Background()

	floor := seedRedis(t, ledger, "FLOOR", 10)
	qc := domain.Key{PartID: "PART001", Operation: "90", Location: "QC"}

	tx := testTx(domain.TransactionTransfer, "PART001", "FLOOR", "QC", 4)
	require.NoError(t, ledger.Transfer(ctx, floor, qc, 4, tx))
	assert.ErrorIs(t, ledger.Transfer(ctx, floor, qc, 4, tx), domain.ErrDuplicateTransaction)

	src, err := ledger.Get(ctx, floor)
	require.NoError(t, err)
	assert.Equal(t, 6, src.Quantity)
	dst, err := ledger.Get(ctx, qc)
	require.NoError(t, err)
	assert.Equal(t, 4, dst.Quantity)
}
