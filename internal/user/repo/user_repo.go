package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/user/entity"
	"github.com/rohilsavliya09/smarty-dash/pkg/utilities"
)

// constraint name -> field, see migrations/00001_users.sql
var userConstraints = map[string]string{
	"users_email_key":    "email",
	"users_username_key": "username",
}

const userColumns = `id, username, email, password_hash, is_verified, created_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. The unique constraints on username and email
// are the final arbiter of duplicates; a violation comes back as
// *store.ConflictError naming the field.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	out := *u
	if out.ID == "" {
		out.ID = utilities.NewSnowflakeID()
	}
	out.Email = strings.ToLower(strings.TrimSpace(out.Email))
	const q = `INSERT INTO users (id, username, email, password_hash, is_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, q, out.ID, out.Username, out.Email, out.PasswordHash, out.IsVerified).Scan(&out.CreatedAt)
	if err != nil {
		return nil, store.MapUniqueViolation(err, userConstraints)
	}
	return &out, nil
}

// FindByEmail returns the user with the given (normalized) email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.get(ctx, q, strings.ToLower(strings.TrimSpace(email)))
}

// FindByID returns the user with the given id.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.get(ctx, q, id)
}

// FindByIdentity returns any user whose email or username matches. Rows
// matching on email sort first so the caller can report the email collision.
func (r *UserRepo) FindByIdentity(ctx context.Context, email, username string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE email = $1 OR username = $2
		ORDER BY (email = $1) DESC
		LIMIT 1`
	return r.get(ctx, q, strings.ToLower(strings.TrimSpace(email)), username)
}

// UpdatePassword replaces the password hash of one user.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *UserRepo) get(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	row.CreatedAt = row.CreatedAt.UTC()
	return &row, nil
}
