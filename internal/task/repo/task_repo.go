package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/task/entity"
)

// NOTE: table schema lives in pkg/database/migrations/00003_tasks.sql.

const taskColumns = `id, owner_id, text, done, assign_date, assign_time, expires_at, created_at, updated_at`

var taskConstraints = map[string]string{"tasks_pkey": "id"}

// TaskRepo stores tasks in postgres. done/expires_at changes are single
// UPDATE statements so a concurrent sweep never observes half a toggle.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo { return &TaskRepo{db: db} }

func (r *TaskRepo) Create(ctx context.Context, t *entity.Task) (*entity.Task, error) {
	const q = `INSERT INTO tasks (id, owner_id, text, done, assign_date, assign_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + taskColumns
	var out entity.Task
	if err := r.db.QueryRowxContext(ctx, q, t.ID, t.OwnerID, t.Text, t.Done, t.AssignDate, t.AssignTime, t.ExpiresAt).
		StructScan(&out); err != nil {
		return nil, store.MapUniqueViolation(err, taskConstraints)
	}
	return normalize(&out), nil
}

func (r *TaskRepo) Get(ctx context.Context, ownerID, id string) (*entity.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 AND id = $2`
	var t entity.Task
	if err := r.db.GetContext(ctx, &t, q, ownerID, id); err != nil {
		return nil, mapNoRows(err)
	}
	return normalize(&t), nil
}

func (r *TaskRepo) ListByOwner(ctx context.Context, ownerID string) ([]entity.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY assign_date, assign_time, created_at`
	return r.list(ctx, q, ownerID)
}

func (r *TaskRepo) ListByDate(ctx context.Context, ownerID, date string) ([]entity.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 AND assign_date = $2 ORDER BY assign_time, created_at`
	return r.list(ctx, q, ownerID, date)
}

func (r *TaskRepo) EditText(ctx context.Context, ownerID, id, text string) (*entity.Task, error) {
	const q = `UPDATE tasks SET text = $3, updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING ` + taskColumns
	return r.update(ctx, q, ownerID, id, text)
}

// Toggle flips done. A task becoming done gets expiresAt; one becoming
// undone has its expiry cleared. SET expressions read the pre-update row.
func (r *TaskRepo) Toggle(ctx context.Context, ownerID, id string, expiresAt time.Time) (*entity.Task, error) {
	const q = `UPDATE tasks SET done = NOT done,
			expires_at = CASE WHEN done THEN NULL ELSE $3::timestamptz END,
			updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING ` + taskColumns
	return r.update(ctx, q, ownerID, id, expiresAt)
}

// SetDone sets done explicitly. Marking an already-done task done keeps its
// original expiry.
func (r *TaskRepo) SetDone(ctx context.Context, ownerID, id string, done bool, expiresAt time.Time) (*entity.Task, error) {
	const q = `UPDATE tasks SET done = $3::boolean,
			expires_at = CASE
				WHEN NOT $3::boolean THEN NULL
				WHEN done THEN expires_at
				ELSE $4::timestamptz
			END,
			updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING ` + taskColumns
	return r.update(ctx, q, ownerID, id, done, expiresAt)
}

func (r *TaskRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = $1 AND id = $2`, ownerID, id)
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

// DeleteExpired removes every done task whose expiry is at or before now.
func (r *TaskRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE done AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TaskRepo) update(ctx context.Context, q string, args ...any) (*entity.Task, error) {
	var t entity.Task
	if err := r.db.QueryRowxContext(ctx, q, args...).StructScan(&t); err != nil {
		return nil, mapNoRows(err)
	}
	return normalize(&t), nil
}

func (r *TaskRepo) list(ctx context.Context, q string, args ...any) ([]entity.Task, error) {
	tasks := []entity.Task{}
	if err := r.db.SelectContext(ctx, &tasks, q, args...); err != nil {
		return nil, err
	}
	for i := range tasks {
		normalize(&tasks[i])
	}
	return tasks, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func normalize(t *entity.Task) *entity.Task {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.ExpiresAt != nil {
		e := t.ExpiresAt.UTC()
		t.ExpiresAt = &e
	}
	return t
}
