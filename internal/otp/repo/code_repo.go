package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rohilsavliya09/smarty-dash/internal/otp/entity"
	"github.com/rohilsavliya09/smarty-dash/internal/store"
)

// NOTE: table schema lives in pkg/database/migrations/00002_pending_codes.sql.

const codeColumns = `id, email, code, purpose, username, password_hash, expires_at, created_at`

type codeRow struct {
	ID           int64          `db:"id"`
	Email        string         `db:"email"`
	Code         string         `db:"code"`
	Purpose      string         `db:"purpose"`
	Username     sql.NullString `db:"username"`
	PasswordHash sql.NullString `db:"password_hash"`
	ExpiresAt    time.Time      `db:"expires_at"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r codeRow) toEntity() (*entity.PendingCode, error) {
	var p entity.Payload
	switch entity.Purpose(r.Purpose) {
	case entity.PurposeRegistration:
		p = entity.RegistrationPayload{Username: r.Username.String, PasswordHash: r.PasswordHash.String}
	case entity.PurposeLogin:
		p = entity.LoginPayload{Username: r.Username.String}
	case entity.PurposeReset:
		p = entity.ResetPayload{}
	default:
		return nil, fmt.Errorf("pending code %d: unknown purpose %q", r.ID, r.Purpose)
	}
	return &entity.PendingCode{
		ID:        r.ID,
		Email:     r.Email,
		Code:      r.Code,
		Payload:   p,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

// payloadColumns flattens a payload into the nullable username/password_hash columns.
func payloadColumns(p entity.Payload) (username, hash sql.NullString) {
	switch v := p.(type) {
	case entity.RegistrationPayload:
		return sql.NullString{String: v.Username, Valid: true}, sql.NullString{String: v.PasswordHash, Valid: true}
	case entity.LoginPayload:
		return sql.NullString{String: v.Username, Valid: v.Username != ""}, sql.NullString{}
	}
	return sql.NullString{}, sql.NullString{}
}

// CodeRepo provides data access for pending_codes using sqlx. Every method
// is one statement, so each is atomic on its own.
type CodeRepo struct {
	db *sqlx.DB
}

func NewCodeRepo(db *sqlx.DB) *CodeRepo { return &CodeRepo{db: db} }

// DeleteByEmail removes every pending code for email.
func (r *CodeRepo) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_codes WHERE email = $1`, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Insert stores a new pending code and returns it with id and created_at set.
func (r *CodeRepo) Insert(ctx context.Context, c entity.PendingCode) (*entity.PendingCode, error) {
	if c.Payload == nil {
		return nil, errors.New("pending code without payload")
	}
	username, hash := payloadColumns(c.Payload)
	const q = `INSERT INTO pending_codes (email, code, purpose, username, password_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if err := r.db.QueryRowxContext(ctx, q, c.Email, c.Code, string(c.Payload.Purpose()), username, hash, c.ExpiresAt).
		Scan(&c.ID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Take deletes and returns the pending code matching (email, code, purpose).
// Deletion and lookup are the same statement, so two callers racing on one
// code cannot both receive it.
func (r *CodeRepo) Take(ctx context.Context, email, code string, purpose entity.Purpose) (*entity.PendingCode, error) {
	const q = `DELETE FROM pending_codes
		WHERE email = $1 AND code = $2 AND purpose = $3
		RETURNING ` + codeColumns
	var rows []codeRow
	if err := r.db.SelectContext(ctx, &rows, q, email, code, string(purpose)); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	// a resend race can leave two matches; the latest deadline wins
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExpiresAt.After(rows[j].ExpiresAt) })
	return rows[0].toEntity()
}

// FindLive returns the newest code for email that has not expired at now.
func (r *CodeRepo) FindLive(ctx context.Context, email string, now time.Time) (*entity.PendingCode, error) {
	const q = `SELECT ` + codeColumns + ` FROM pending_codes
		WHERE email = $1 AND expires_at > $2
		ORDER BY id DESC
		LIMIT 1`
	var row codeRow
	if err := r.db.GetContext(ctx, &row, q, email, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return row.toEntity()
}

// UpdateCode replaces the code value and deadline of the live codes for
// email, leaving the payload untouched.
func (r *CodeRepo) UpdateCode(ctx context.Context, email, code string, expiresAt, now time.Time) error {
	const q = `UPDATE pending_codes SET code = $2, expires_at = $3
		WHERE email = $1 AND expires_at > $4`
	res, err := r.db.ExecContext(ctx, q, email, code, expiresAt, now)
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

// DeleteExpired removes codes whose deadline is at or before now.
func (r *CodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
