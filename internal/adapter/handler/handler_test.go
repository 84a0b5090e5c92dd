package handler

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/adapter/catalog"
	"github.com/rl1809/wip-inventory/internal/adapter/lock"
	"github.com/rl1809/wip-inventory/internal/adapter/storage"
	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/core/service"
)

func newTestServices(t *testing.T, seed ...domain.InventoryRecord) (Services, *storage.MemoryLedger) {
	t.Helper()
	logger := zap.NewNop()
	ledger := storage.NewMemoryLedger(seed...)

	query := service.NewInventoryQuery(ledger)
	locations := service.NewLocationDirectory(context.Background(), catalog.NewStaticCatalog(catalog.DefaultLocations), logger)
	validator := service.NewTransferValidator(query, locations, logger)
	transfers := service.NewTransferService(ledger, validator, lock.NewKeyedLocker(), nil, logger)

	return Services{
		Query:     query,
		Transfers: transfers,
		Locations: locations,
		History:   service.NewHistoryService(ledger),
	}, ledger
}

func floorStock(qty int) domain.InventoryRecord {
	return domain.InventoryRecord{PartID: "PART001", Operation: "90", Location: "FLOOR", Quantity: qty, ItemType: "WIP"}
}
