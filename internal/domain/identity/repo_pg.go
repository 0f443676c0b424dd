package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
)

type userRepoPG struct{ db db.DBTX }

func NewUserRepoPG(conn db.DBTX) UserRepository { return &userRepoPG{db: conn} }

func (r *userRepoPG) conn(ctx context.Context) db.DBTX {
	return db.Conn(ctx, r.db)
}

const userCols = `id, email, password_hash, first_name, last_name, phone, role, is_active,
	specialty, license_number, experience_years,
	date_of_birth::text, gender, address, emergency_contact,
	created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	var d DoctorProfile
	var p PatientProfile
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &role, &u.IsActive,
		&d.Specialty, &d.LicenseNumber, &d.ExperienceYears,
		&p.DateOfBirth, &p.Gender, &p.Address, &p.EmergencyContact,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	switch u.Role {
	case auth.RoleDoctor:
		u.Doctor = &d
	case auth.RolePatient:
		u.Patient = &p
	}
	return &u, nil
}

// profileArgs returns the role columns in insert order; fields of the other
// variant are always NULL.
func profileArgs(u *User) []interface{} {
	var d DoctorProfile
	var p PatientProfile
	if u.Role == auth.RoleDoctor && u.Doctor != nil {
		d = *u.Doctor
	}
	if u.Role == auth.RolePatient && u.Patient != nil {
		p = *u.Patient
	}
	return []interface{}{
		d.Specialty, d.LicenseNumber, d.ExperienceYears,
		p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact,
	}
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	args := []interface{}{u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, string(u.Role), u.IsActive}
	args = append(args, profileArgs(u)...)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, phone, role, is_active,
			specialty, license_number, experience_years,
			date_of_birth, gender, address, emergency_contact)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::date,$12,$13,$14)
		RETURNING id, created_at, updated_at`, args...).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	args := []interface{}{u.ID, u.FirstName, u.LastName, u.Phone}
	args = append(args, profileArgs(u)...)
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET first_name=$2, last_name=$3, phone=$4,
			specialty=$5, license_number=$6, experience_years=$7,
			date_of_birth=$8::date, gender=$9, address=$10, emergency_contact=$11,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`, args...).Scan(&u.UpdatedAt)
}

func (r *userRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, string(f.Role))
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userCols + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *userRepoPG) ListActiveDoctors(ctx context.Context) ([]*User, error) {
	return r.queryUsers(ctx, `SELECT `+userCols+` FROM users
		WHERE role = 'doctor' AND is_active = TRUE ORDER BY last_name, first_name`)
}

func (r *userRepoPG) GetMany(ctx context.Context, ids []int64) (map[int64]*User, error) {
	out := make(map[int64]*User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := r.queryUsers(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *userRepoPG) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
