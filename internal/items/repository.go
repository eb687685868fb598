package items

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocktide/stocktide/internal/platform/db"
)

// RepositoryPort defines data access methods for items.
type RepositoryPort interface {
	Create(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id int64) (Item, error)
	List(ctx context.Context, filter ListFilter) ([]Item, error)
	Update(ctx context.Context, item Item) (Item, error)
	Delete(ctx context.Context, id int64) error
}

// Repository persists items in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, tenant_id, sku, name, qty, unit_cost, supplier_tax_id, notes, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, item Item) (Item, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO items (tenant_id, sku, name, qty, unit_cost, supplier_tax_id, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING `+itemColumns,
		item.TenantID, item.SKU, item.Name, item.Qty, item.UnitCost, item.SupplierTaxID, item.Notes)
	created, err := scanItem(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + itemColumns + ` FROM items WHERE 1=1`)
	args := make([]any, 0, 4)
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		query.WriteString(` AND tenant_id = $1`)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query.WriteString(` AND (sku ILIKE $` + strconv.Itoa(len(args)) + ` OR name ILIKE $` + strconv.Itoa(len(args)) + `)`)
	}
	query.WriteString(` ORDER BY id`)
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Update rewrites the mutable columns inside a transaction so concurrent
// updates serialize on the row.
func (r *Repository) Update(ctx context.Context, item Item) (Item, error) {
	var updated Item
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE items
			 SET name = $2, qty = $3, unit_cost = $4, supplier_tax_id = $5, notes = $6, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+itemColumns,
			item.ID, item.Name, item.Qty, item.UnitCost, item.SupplierTaxID, item.Notes)
		var err error
		updated, err = scanItem(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID, &item.TenantID, &item.SKU, &item.Name, &item.Qty,
		&item.UnitCost, &item.SupplierTaxID, &item.Notes,
		&item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

