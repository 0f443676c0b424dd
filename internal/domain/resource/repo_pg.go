package resource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harms/harms/internal/platform/db"
)

type resourceRepoPG struct{ db db.DBTX }

func NewResourceRepoPG(conn db.DBTX) ResourceRepository {
	return &resourceRepoPG{db: conn}
}

func (r *resourceRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.db)
}

const resourceCols = `id, name, resource_type, category, total_quantity, available_quantity, unit,
	description, location, expiry_date::text, min_threshold, is_active, created_at, updated_at`

func (r *resourceRepoPG) scanResource(row pgx.Row) (*Resource, error) {
	var res Resource
	var typ string
	err := row.Scan(&res.ID, &res.Name, &typ, &res.Category, &res.TotalQuantity, &res.AvailableQuantity,
		&res.Unit, &res.Description, &res.Location, &res.ExpiryDate, &res.MinThreshold, &res.IsActive,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	res.Type = Type(typ)
	return &res, nil
}

func (r *resourceRepoPG) Create(ctx context.Context, res *Resource) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO resources (name, resource_type, category, total_quantity, available_quantity,
			unit, description, location, expiry_date, min_threshold, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10, $11)
		RETURNING id, created_at, updated_at`,
		res.Name, string(res.Type), res.Category, res.TotalQuantity, res.AvailableQuantity,
		res.Unit, res.Description, res.Location, res.ExpiryDate, res.MinThreshold, res.IsActive,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
}

func (r *resourceRepoPG) GetByID(ctx context.Context, id int64) (*Resource, error) {
	return r.scanResource(r.conn(ctx).QueryRow(ctx, `SELECT `+resourceCols+` FROM resources WHERE id = $1`, id))
}

func (r *resourceRepoPG) GetForUpdate(ctx context.Context, id int64) (*Resource, error) {
	return r.scanResource(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resourceCols+` FROM resources WHERE id = $1 FOR UPDATE`, id))
}

func (r *resourceRepoPG) Update(ctx context.Context, res *Resource) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE resources SET name = $2, category = $3, total_quantity = $4, available_quantity = $5,
			unit = $6, description = $7, location = $8, expiry_date = $9::date, min_threshold = $10,
			is_active = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		res.ID, res.Name, res.Category, res.TotalQuantity, res.AvailableQuantity,
		res.Unit, res.Description, res.Location, res.ExpiryDate, res.MinThreshold, res.IsActive,
	).Scan(&res.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *resourceRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Type != "" {
		where += fmt.Sprintf(` AND resource_type = $%d`, idx)
		args = append(args, string(f.Type))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM resources`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + resourceCols + ` FROM resources` + where +
		fmt.Sprintf(` ORDER BY name, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *resourceRepoPG) FindLowStock(ctx context.Context) ([]*Resource, error) {
	return r.query(ctx, `SELECT `+resourceCols+` FROM resources
		WHERE is_active AND available_quantity <= min_threshold
		ORDER BY available_quantity, name, id`)
}

func (r *resourceRepoPG) FindExpiredMedicines(ctx context.Context, today string) ([]*Resource, error) {
	return r.query(ctx, `SELECT `+resourceCols+` FROM resources
		WHERE is_active AND resource_type = 'medicine' AND expiry_date < $1::date
		ORDER BY expiry_date, name, id`, today)
}

func (r *resourceRepoPG) Stats(ctx context.Context, today string) (*Summary, error) {
	var s Summary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE resource_type = 'bed'),
			COUNT(*) FILTER (WHERE resource_type = 'medicine'),
			COUNT(*) FILTER (WHERE resource_type = 'equipment'),
			COUNT(*) FILTER (WHERE available_quantity <= min_threshold),
			COUNT(*) FILTER (WHERE resource_type = 'medicine' AND expiry_date < $1::date),
			COALESCE(SUM(total_quantity) FILTER (WHERE resource_type = 'bed'), 0),
			COALESCE(SUM(total_quantity - available_quantity) FILTER (WHERE resource_type = 'bed'), 0)
		FROM resources`, today,
	).Scan(&s.TotalResources, &s.TotalBeds, &s.TotalMedicines, &s.TotalEquipment,
		&s.LowStockCount, &s.ExpiredMedicines, &s.Occupancy.TotalBeds, &s.Occupancy.OccupiedBeds)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *resourceRepoPG) query(ctx context.Context, query string, args ...interface{}) ([]*Resource, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Resource
	for rows.Next() {
		res, err := r.scanResource(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, res)
	}
	return items, rows.Err()
}

// -- Transactions --

type transactionRepoPG struct{ db db.DBTX }

func NewTransactionRepoPG(conn db.DBTX) TransactionRepository {
	return &transactionRepoPG{db: conn}
}

func (r *transactionRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.db)
}

const txCols = `id, resource_id, transaction_type, quantity, reason, reference_id, created_by, created_at`

func (r *transactionRepoPG) CreateTransaction(ctx context.Context, t *Transaction) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO resource_transactions (resource_id, transaction_type, quantity, reason, reference_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		t.ResourceID, string(t.Type), t.Quantity, t.Reason, t.ReferenceID, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)
}

func (r *transactionRepoPG) ListTransactions(ctx context.Context, resourceID int64, limit, offset int) ([]*Transaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM resource_transactions WHERE resource_id = $1`, resourceID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+txCols+` FROM resource_transactions
		WHERE resource_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, resourceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.ResourceID, &typ, &t.Quantity, &t.Reason, &t.ReferenceID,
			&t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.Type = TransactionType(typ)
		items = append(items, &t)
	}
	return items, total, rows.Err()
}

func (r *transactionRepoPG) LedgerNet(ctx context.Context, resourceID int64) (int, int, error) {
	var net, count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN transaction_type = 'out' THEN -quantity ELSE quantity END), 0), COUNT(*)
		FROM resource_transactions WHERE resource_id = $1`, resourceID).Scan(&net, &count)
	return net, count, err
}
