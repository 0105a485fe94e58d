package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/task/entity"
)

type taskKey struct{ owner, id string }

// MemoryRepo keeps tasks in process behind one mutex. Each method is a
// single critical section, matching the per-row atomicity of TaskRepo.
type MemoryRepo struct {
	mu    sync.Mutex
	tasks map[taskKey]entity.Task
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tasks: make(map[taskKey]entity.Task), now: func() time.Time { return time.Now().UTC() }}
}

func (r *MemoryRepo) Create(_ context.Context, t *entity.Task) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := taskKey{t.OwnerID, t.ID}
	if _, ok := r.tasks[k]; ok {
		return nil, &store.ConflictError{Field: "id"}
	}
	now := r.now()
	out := *t
	out.CreatedAt, out.UpdatedAt = now, now
	r.tasks[k] = out
	return clone(out), nil
}

func (r *MemoryRepo) Get(_ context.Context, ownerID, id string) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[taskKey{ownerID, id}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(t), nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, ownerID string) ([]entity.Task, error) {
	return r.filter(func(t entity.Task) bool { return t.OwnerID == ownerID }), nil
}

func (r *MemoryRepo) ListByDate(_ context.Context, ownerID, date string) ([]entity.Task, error) {
	return r.filter(func(t entity.Task) bool { return t.OwnerID == ownerID && t.AssignDate == date }), nil
}

func (r *MemoryRepo) EditText(_ context.Context, ownerID, id, text string) (*entity.Task, error) {
	return r.mutate(ownerID, id, func(t *entity.Task) { t.Text = text })
}

func (r *MemoryRepo) Toggle(_ context.Context, ownerID, id string, expiresAt time.Time) (*entity.Task, error) {
	return r.mutate(ownerID, id, func(t *entity.Task) {
		t.Done = !t.Done
		if t.Done {
			e := expiresAt
			t.ExpiresAt = &e
		} else {
			t.ExpiresAt = nil
		}
	})
}

func (r *MemoryRepo) SetDone(_ context.Context, ownerID, id string, done bool, expiresAt time.Time) (*entity.Task, error) {
	return r.mutate(ownerID, id, func(t *entity.Task) {
		switch {
		case !done:
			t.ExpiresAt = nil
		case !t.Done:
			e := expiresAt
			t.ExpiresAt = &e
		}
		t.Done = done
	})
}

func (r *MemoryRepo) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := taskKey{ownerID, id}
	if _, ok := r.tasks[k]; !ok {
		return store.ErrNotFound
	}
	delete(r.tasks, k)
	return nil
}

func (r *MemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.tasks {
		if t.SweepDue(now) {
			delete(r.tasks, k)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) mutate(ownerID, id string, fn func(*entity.Task)) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := taskKey{ownerID, id}
	t, ok := r.tasks[k]
	if !ok {
		return nil, store.ErrNotFound
	}
	fn(&t)
	t.UpdatedAt = r.now()
	r.tasks[k] = t
	return clone(t), nil
}

func (r *MemoryRepo) filter(keep func(entity.Task) bool) []entity.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []entity.Task{}
	for _, t := range r.tasks {
		if keep(t) {
			out = append(out, *clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AssignDate != b.AssignDate {
			return a.AssignDate < b.AssignDate
		}
		if a.AssignTime != b.AssignTime {
			return a.AssignTime < b.AssignTime
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out
}

// clone copies t so callers never share the stored ExpiresAt pointer.
func clone(t entity.Task) *entity.Task {
	if t.ExpiresAt != nil {
		e := *t.ExpiresAt
		t.ExpiresAt = &e
	}
	return &t
}
