package identity

import (
	"context"

	"github.com/harms/harms/internal/platform/apperror"
)

var ErrNotFound = apperror.NotFound("user not found")

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, u *User) error
	SetActive(ctx context.Context, id int64, active bool) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error)
	ListActiveDoctors(ctx context.Context) ([]*User, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]*User, error)
}
