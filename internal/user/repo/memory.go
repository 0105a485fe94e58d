package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/user/entity"
	"github.com/rohilsavliya09/smarty-dash/pkg/utilities"
)

// MemoryRepo is an in-process user store for development and tests. The
// uniqueness check and insert happen under one lock, mirroring the unique
// constraints of the postgres table.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[string]entity.User)}
}

func (r *MemoryRepo) Create(_ context.Context, u *entity.User) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := *u
	out.Email = strings.ToLower(strings.TrimSpace(out.Email))
	for _, existing := range r.users {
		if existing.Email == out.Email {
			return nil, &store.ConflictError{Field: "email"}
		}
		if existing.Username == out.Username {
			return nil, &store.ConflictError{Field: "username"}
		}
	}
	if out.ID == "" {
		out.ID = utilities.NewSnowflakeID()
	}
	out.CreatedAt = time.Now().UTC()
	r.users[out.ID] = out
	return &out, nil
}

func (r *MemoryRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.find(func(u entity.User) bool { return u.Email == email })
}

func (r *MemoryRepo) FindByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepo) FindByIdentity(ctx context.Context, email, username string) (*entity.User, error) {
	if u, err := r.FindByEmail(ctx, email); err == nil {
		return u, nil
	}
	return r.find(func(u entity.User) bool { return u.Username == username })
}

func (r *MemoryRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	r.users[id] = u
	return nil
}

func (r *MemoryRepo) find(match func(entity.User) bool) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}
