package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/storecraft/commerce-core/internal/domain/errors"
	"github.com/storecraft/commerce-core/internal/domain/stock"
)

const stockKeyWhere = `tenant_id = $1 AND store_id = $2 AND item_id = $3 AND location_id = $4`

// StockRepository implements stock.Repository using PostgreSQL. All
// mutations are conditional updates guarded by the version column; the
// affected-row count is the success signal.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

func (r *StockRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *StockRepository) Get(ctx context.Context, key stock.Key) (*stock.Row, error) {
	row := &stock.Row{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT tenant_id, store_id, item_id, location_id, total_qty, locked_qty, safety_stock, version, created_at, updated_at
		 FROM stock_items WHERE `+stockKeyWhere,
		key.TenantID, key.StoreID, key.ItemID, key.LocationID,
	).Scan(
		&row.TenantID, &row.StoreID, &row.ItemID, &row.LocationID,
		&row.TotalQty, &row.LockedQty, &row.SafetyStock, &row.Version,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrStockNotFound
		}
		return nil, fmt.Errorf("scan stock row: %w", err)
	}
	return row, nil
}

func (r *StockRepository) Create(ctx context.Context, row *stock.Row) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO stock_items (tenant_id, store_id, item_id, location_id, total_qty, locked_qty, safety_stock, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row.TenantID, row.StoreID, row.ItemID, row.LocationID,
		row.TotalQty, row.LockedQty, row.SafetyStock, row.Version,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock row: %w", err)
	}
	return nil
}

func (r *StockRepository) IncreaseLocked(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE stock_items
		 SET locked_qty = locked_qty + $5, version = version + 1, updated_at = now()
		 WHERE `+stockKeyWhere+` AND version = $6`,
		key.TenantID, key.StoreID, key.ItemID, key.LocationID, qty, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("increase locked qty: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *StockRepository) ConfirmDeduct(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE stock_items
		 SET total_qty = total_qty - $5, locked_qty = locked_qty - $5, version = version + 1, updated_at = now()
		 WHERE `+stockKeyWhere+` AND version = $6`,
		key.TenantID, key.StoreID, key.ItemID, key.LocationID, qty, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("confirm deduct: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *StockRepository) DecreaseLocked(ctx context.Context, key stock.Key, qty, expectedVersion int64) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE stock_items
		 SET locked_qty = locked_qty - $5, version = version + 1, updated_at = now()
		 WHERE `+stockKeyWhere+` AND version = $6`,
		key.TenantID, key.StoreID, key.ItemID, key.LocationID, qty, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("decrease locked qty: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *StockRepository) Adjust(ctx context.Context, key stock.Key, totalQty, safetyStock, expectedVersion int64) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE stock_items
		 SET total_qty = $5, safety_stock = $6, version = version + 1, updated_at = now()
		 WHERE `+stockKeyWhere+` AND version = $7`,
		key.TenantID, key.StoreID, key.ItemID, key.LocationID, totalQty, safetyStock, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("adjust stock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *StockRepository) AddTxn(ctx context.Context, txn *stock.Txn) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO stock_txns (id, tenant_id, store_id, item_id, location_id, txn_type, qty, before_total, after_total, before_locked, after_locked, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.TenantID, txn.StoreID, txn.ItemID, txn.LocationID,
		string(txn.TxnType), txn.Qty, txn.BeforeTotal, txn.AfterTotal,
		txn.BeforeLocked, txn.AfterLocked, txn.RequestID, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock txn: %w", err)
	}
	return nil
}
