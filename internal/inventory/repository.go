package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/database"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

var (
	ErrNameTaken       = errors.New("product name already exists")
	ErrProductNotFound = errors.New("product not found")
)

const productColumns = `id, name, description, category, price, stock, created_at, updated_at`

// Repository reads and writes products through q, which is either the pool or
// an open transaction.
type Repository struct {
	q database.Querier
}

func NewRepository(q database.Querier) *Repository {
	return &Repository{q: q}
}

// ProductPatch holds the fields of a partial update. Nil fields are left as is.
type ProductPatch struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Stock       *int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// GetForUpdate reads the product and locks its row until the surrounding
// transaction ends. Only meaningful when the repository wraps a *sql.Tx.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) get(ctx context.Context, query, id string) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO products (id, name, description, category, price, stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Description, p.Category, p.Price, p.Stock).Scan(&p.CreatedAt, &p.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

// Save writes every mutable field of p. It returns ErrProductNotFound when the
// row no longer exists.
func (r *Repository) Save(ctx context.Context, p *domain.Product) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, price = $5, stock = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, p.Description, p.Category, p.Price, p.Stock).Scan(&p.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrProductNotFound
	case database.IsUniqueViolation(err):
		return ErrNameTaken
	}
	return err
}

// Update applies patch in a single statement so it cannot overwrite a
// concurrent stock decrement with a stale value.
func (r *Repository) Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	p, err := scanProduct(r.q.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			price = COALESCE($5, price),
			stock = COALESCE($6, stock),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns,
		id, patch.Name, patch.Description, patch.Category, patch.Price, patch.Stock))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case database.IsUniqueViolation(err):
		return nil, ErrNameTaken
	case err != nil:
		return nil, err
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}
