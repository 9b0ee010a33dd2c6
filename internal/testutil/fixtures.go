package testutil

import (
	"time"

	"github.com/storecraft/commerce-core/internal/domain/stock"
)

func NewTestKey(tenantID, itemID string) stock.Key {
	return stock.Key{
		TenantID:   tenantID,
		StoreID:    "store-1",
		ItemID:     itemID,
		LocationID: "loc-1",
	}
}

func NewTestStockRow(key stock.Key, totalQty, safetyStock int64) *stock.Row {
	now := time.Now()
	return &stock.Row{
		Key:         key,
		TotalQty:    totalQty,
		LockedQty:   0,
		SafetyStock: safetyStock,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
