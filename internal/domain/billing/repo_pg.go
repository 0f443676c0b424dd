package billing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harms/harms/internal/platform/db"
)

type billingRepoPG struct{ db db.DBTX }

func NewBillingRepoPG(conn db.DBTX) BillingRepository {
	return &billingRepoPG{db: conn}
}

func (r *billingRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.db)
}

const billingCols = `id, appointment_id, patient_id, consultation_fee, additional_charges, discount,
	tax_amount, total_amount, status, payment_method, payment_reference, notes, paid_at,
	created_at, updated_at`

func (r *billingRepoPG) scanBilling(row pgx.Row) (*Billing, error) {
	var b Billing
	var status string
	var method *string
	err := row.Scan(&b.ID, &b.AppointmentID, &b.PatientID, &b.ConsultationFee, &b.AdditionalCharges,
		&b.Discount, &b.TaxAmount, &b.TotalAmount, &status, &method, &b.PaymentReference, &b.Notes,
		&b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Status = Status(status)
	if method != nil {
		m := PaymentMethod(*method)
		b.PaymentMethod = &m
	}
	return &b, nil
}

func methodArg(m *PaymentMethod) *string {
	if m == nil {
		return nil
	}
	s := string(*m)
	return &s
}

func (r *billingRepoPG) Create(ctx context.Context, b *Billing) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing (appointment_id, patient_id, consultation_fee, additional_charges,
			discount, tax_amount, total_amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		b.AppointmentID, b.PatientID, b.ConsultationFee, b.AdditionalCharges,
		b.Discount, b.TaxAmount, b.TotalAmount, string(b.Status), b.Notes,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (r *billingRepoPG) GetByID(ctx context.Context, id int64) (*Billing, error) {
	return r.scanBilling(r.conn(ctx).QueryRow(ctx, `SELECT `+billingCols+` FROM billing WHERE id = $1`, id))
}

func (r *billingRepoPG) GetForUpdate(ctx context.Context, id int64) (*Billing, error) {
	return r.scanBilling(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billingCols+` FROM billing WHERE id = $1 FOR UPDATE`, id))
}

func (r *billingRepoPG) GetByAppointment(ctx context.Context, appointmentID int64) (*Billing, error) {
	return r.scanBilling(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billingCols+` FROM billing WHERE appointment_id = $1`, appointmentID))
}

func (r *billingRepoPG) Update(ctx context.Context, b *Billing) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing SET consultation_fee = $2, additional_charges = $3, discount = $4,
			tax_amount = $5, total_amount = $6, status = $7, payment_method = $8,
			payment_reference = $9, notes = $10, paid_at = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.ConsultationFee, b.AdditionalCharges, b.Discount, b.TaxAmount, b.TotalAmount,
		string(b.Status), methodArg(b.PaymentMethod), b.PaymentReference, b.Notes, b.PaidAt,
	).Scan(&b.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *billingRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Billing, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.PatientID != 0 {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + billingCols + ` FROM billing` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Billing
	for rows.Next() {
		b, err := r.scanBilling(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}
