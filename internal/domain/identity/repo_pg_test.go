package identity

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harms/harms/internal/platform/auth"
	"github.com/harms/harms/internal/platform/db"
)

var userColumns = []string{
	"id", "email", "password_hash", "first_name", "last_name", "phone", "role", "is_active",
	"specialty", "license_number", "experience_years",
	"date_of_birth", "gender", "address", "emergency_contact",
	"created_at", "updated_at",
}

func doctorRow(rows *pgxmock.Rows, id int64, now time.Time) *pgxmock.Rows {
	return rows.AddRow(id, "house@example.com", "hash", "Gregory", "House", (*string)(nil), "doctor", true,
		strPtr("Diagnostics"), strPtr("LIC-1"), intPtr(12),
		(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
		now, now)
}

func TestUserRepoPG_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM users WHERE id =").
		WithArgs(int64(3)).
		WillReturnRows(doctorRow(pgxmock.NewRows(userColumns), 3, now))

	repo := NewUserRepoPG(mock)
	u, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDoctor, u.Role)
	require.NotNil(t, u.Doctor)
	assert.Equal(t, "Diagnostics", *u.Doctor.Specialty)
	assert.Nil(t, u.Patient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoPG_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT .* FROM users WHERE id =").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewUserRepoPG(mock).GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepoPG_CreateWritesOnlyRoleColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	u := &User{
		Email: "ada@example.com", PasswordHash: "hash", FirstName: "Ada", LastName: "Lovelace",
		Role: auth.RolePatient, IsActive: true,
		Patient: &PatientProfile{Gender: strPtr("female")},
		// stale doctor data must not reach the row
		Doctor: &DoctorProfile{Specialty: strPtr("Surgery")},
	}
	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("ada@example.com", "hash", "Ada", "Lovelace", (*string)(nil), "patient", true,
			(*string)(nil), (*string)(nil), (*int)(nil),
			(*string)(nil), strPtr("female"), (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	require.NoError(t, NewUserRepoPG(mock).Create(context.Background(), u))
	assert.Equal(t, int64(1), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoPG_CreateUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = NewUserRepoPG(mock).Create(context.Background(), &User{Email: "a@example.com", Role: auth.RoleAdmin})
	assert.True(t, db.IsUniqueViolation(err))
}

func TestUserRepoPG_SetActiveMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE users SET is_active").
		WithArgs(int64(5), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewUserRepoPG(mock).SetActive(context.Background(), 5, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepoPG_ListWithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("doctor", "%house%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .* FROM users WHERE 1=1 AND role = .* ILIKE .* LIMIT").
		WithArgs("doctor", "%house%", 10, 0).
		WillReturnRows(doctorRow(pgxmock.NewRows(userColumns), 3, now))

	items, total, err := NewUserRepoPG(mock).List(context.Background(),
		Filter{Role: auth.RoleDoctor, Search: "house"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "House", items[0].LastName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoPG_GetManyEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	out, err := NewUserRepoPG(mock).GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoPG_UsesRequestTransaction(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin()
	pool.ExpectQuery("SELECT EXISTS").
		WithArgs("ada@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err)
	ctx := db.WithTx(context.Background(), tx)

	// The repo is built on a nil fallback; only the context transaction can serve it.
	exists, err := NewUserRepoPG(nil).EmailExists(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, pool.ExpectationsWereMet())
}
