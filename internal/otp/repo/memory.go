package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rohilsavliya09/smarty-dash/internal/otp/entity"
	"github.com/rohilsavliya09/smarty-dash/internal/store"
)

// MemoryRepo keeps pending codes in process. Methods hold the lock for their
// whole body, giving the same per-call atomicity as the postgres statements.
type MemoryRepo struct {
	mu    sync.Mutex
	seq   int64
	codes map[int64]entity.PendingCode
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{codes: make(map[int64]entity.PendingCode)}
}

func (r *MemoryRepo) DeleteByEmail(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.codes {
		if c.Email == email {
			delete(r.codes, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) Insert(_ context.Context, c entity.PendingCode) (*entity.PendingCode, error) {
	if c.Payload == nil {
		return nil, errors.New("pending code without payload")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	c.ID = r.seq
	c.CreatedAt = time.Now().UTC()
	r.codes[c.ID] = c
	return &c, nil
}

func (r *MemoryRepo) Take(_ context.Context, email, code string, purpose entity.Purpose) (*entity.PendingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *entity.PendingCode
	for id, c := range r.codes {
		if c.Email != email || c.Code != code || c.Payload.Purpose() != purpose {
			continue
		}
		delete(r.codes, id)
		if best == nil || c.ExpiresAt.After(best.ExpiresAt) {
			c := c
			best = &c
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) FindLive(_ context.Context, email string, now time.Time) (*entity.PendingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *entity.PendingCode
	for _, c := range r.codes {
		if c.Email != email || !c.ExpiresAt.After(now) {
			continue
		}
		if best == nil || c.ID > best.ID {
			c := c
			best = &c
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepo) UpdateCode(_ context.Context, email, code string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := false
	for id, c := range r.codes {
		if c.Email != email || !c.ExpiresAt.After(now) {
			continue
		}
		c.Code = code
		c.ExpiresAt = expiresAt
		r.codes[id] = c
		updated = true
	}
	if !updated {
		return store.ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.codes {
		if !c.ExpiresAt.After(now) {
			delete(r.codes, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many codes are stored, expired or not.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}
