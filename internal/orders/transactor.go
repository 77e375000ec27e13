package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/inventory"
)

// SQLTransactor runs order transactions against Postgres at SERIALIZABLE
// isolation. Products are read with SELECT ... FOR UPDATE so concurrent orders
// for the same product queue on the row lock.
type SQLTransactor struct {
	db *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := database.RunInTx(ctx, t.db, func(ctx context.Context, sqlTx *sql.Tx) error {
		return fn(ctx, sqlStores{
			products: inventory.NewRepository(sqlTx),
			orders:   NewOrderRepository(sqlTx),
		})
	})
	if errors.Is(err, database.ErrSerialization) {
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}
	return err
}

type sqlStores struct {
	products *inventory.Repository
	orders   *OrderRepository
}

func (s sqlStores) Inventory() InventoryStore { return lockingInventory{repo: s.products} }
func (s sqlStores) Ledger() OrderLedger       { return s.orders }

type lockingInventory struct {
	repo *inventory.Repository
}

func (l lockingInventory) Get(ctx context.Context, productID string) (*domain.Product, error) {
	return l.repo.GetForUpdate(ctx, productID)
}

func (l lockingInventory) Save(ctx context.Context, product *domain.Product) error {
	return l.repo.Save(ctx, product)
}
