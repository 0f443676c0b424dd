package scheduling

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harms/harms/internal/platform/db"
)

type appointmentRepoPG struct{ db db.DBTX }

func NewAppointmentRepoPG(conn db.DBTX) AppointmentRepository {
	return &appointmentRepoPG{db: conn}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.db)
}

const apptCols = `id, patient_id, doctor_id, appointment_date::text, to_char(appointment_time, 'HH24:MI'),
	duration_minutes, status, reason, notes, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&a.DurationMinutes, &status, &a.Reason, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, appointment_date, appointment_time,
			duration_minutes, status, reason, notes)
		VALUES ($1, $2, $3::date, $4::time, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		a.PatientID, a.DoctorID, a.Date, a.Time, a.DurationMinutes, string(a.Status), a.Reason, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET status = $2, notes = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, a.ID, string(a.Status), a.Notes).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func buildWhere(f Filter) (string, []interface{}, int) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(cond string, v interface{}) {
		where += fmt.Sprintf(cond, idx)
		args = append(args, v)
		idx++
	}
	if f.PatientID != 0 {
		add(` AND patient_id = $%d`, f.PatientID)
	}
	if f.DoctorID != 0 {
		add(` AND doctor_id = $%d`, f.DoctorID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, string(f.Status))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add(` AND status = ANY($%d)`, statuses)
	}
	if f.Date != "" {
		add(` AND appointment_date = $%d::date`, f.Date)
	}
	if f.DateFrom != "" {
		add(` AND appointment_date >= $%d::date`, f.DateFrom)
	}
	if f.DateTo != "" {
		add(` AND appointment_date <= $%d::date`, f.DateTo)
	}
	if f.Time != "" {
		add(` AND appointment_time = $%d::time`, f.Time)
	}
	return where, args, idx
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where, args, idx := buildWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY appointment_date DESC, appointment_time DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) Find(ctx context.Context, f Filter, limit int) ([]*Appointment, error) {
	where, args, idx := buildWhere(f)
	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		` ORDER BY appointment_date, appointment_time, id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, idx)
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context, f Filter) (map[Status]int, error) {
	where, args, _ := buildWhere(f)
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM appointments`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *appointmentRepoPG) query(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
