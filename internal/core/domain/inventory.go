package domain

import (
	"math"
	"time"
)

// MaxQuantity is the largest quantity a record may hold, the bound of the
// INT quantity columns.
const MaxQuantity = math.MaxInt32

// Key identifies one inventory record.
type Key struct {
	PartID    string
	Operation string
	Location  string
}

func (k Key) String() string {
	return k.PartID + "/" + k.Operation + "/" + k.Location
}

// InventoryRecord is the quantity of a part/operation held at one location.
// Records that reach zero are kept as zero-quantity rows.
type InventoryRecord struct {
	PartID      string
	Operation   string
	Location    string
	Quantity    int
	ItemType    string
	BatchNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r InventoryRecord) Key() Key {
	return Key{PartID: r.PartID, Operation: r.Operation, Location: r.Location}
}
