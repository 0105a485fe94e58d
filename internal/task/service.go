// Package task manages a user's work items. Completed tasks carry an expiry
// and are removed by the sweeper once it passes.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/task/entity"
	"github.com/rohilsavliya09/smarty-dash/pkg/utilities"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	ErrNotFound   = errors.New("task not found")
	ErrValidation = errors.New("invalid task")
	ErrConflict   = errors.New("task id already exists")
)

// Repository is implemented by repo.TaskRepo and repo.MemoryRepo.
type Repository interface {
	Create(ctx context.Context, t *entity.Task) (*entity.Task, error)
	Get(ctx context.Context, ownerID, id string) (*entity.Task, error)
	ListByOwner(ctx context.Context, ownerID string) ([]entity.Task, error)
	ListByDate(ctx context.Context, ownerID, date string) ([]entity.Task, error)
	EditText(ctx context.Context, ownerID, id, text string) (*entity.Task, error)
	Toggle(ctx context.Context, ownerID, id string, expiresAt time.Time) (*entity.Task, error)
	SetDone(ctx context.Context, ownerID, id string, done bool, expiresAt time.Time) (*entity.Task, error)
	Delete(ctx context.Context, ownerID, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CreateInput struct {
	ID         string
	Text       string
	AssignDate string
	AssignTime string
}

type Service struct {
	repo  Repository
	grace time.Duration
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a task service; grace is how long a done task lives.
func NewService(repo Repository, grace time.Duration, opts ...Option) *Service {
	s := &Service{repo: repo, grace: grace, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*entity.Task, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: task text is required", ErrValidation)
	}
	if _, err := time.Parse(dateLayout, in.AssignDate); err != nil {
		return nil, fmt.Errorf("%w: assigndate must be YYYY-MM-DD", ErrValidation)
	}
	if _, err := time.Parse(timeLayout, in.AssignTime); err != nil {
		return nil, fmt.Errorf("%w: assigntime must be HH:mm", ErrValidation)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = utilities.NewKSUID()
	}
	t, err := s.repo.Create(ctx, &entity.Task{
		ID:         id,
		OwnerID:    ownerID,
		Text:       text,
		AssignDate: in.AssignDate,
		AssignTime: in.AssignTime,
	})
	return t, mapErr(err)
}

// Today lists the owner's tasks assigned to the current UTC date.
func (s *Service) Today(ctx context.Context, ownerID string) ([]entity.Task, error) {
	tasks, err := s.repo.ListByDate(ctx, ownerID, s.now().UTC().Format(dateLayout))
	return tasks, mapErr(err)
}

func (s *Service) All(ctx context.Context, ownerID string) ([]entity.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	return tasks, mapErr(err)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*entity.Task, error) {
	t, err := s.repo.Get(ctx, ownerID, id)
	return t, mapErr(err)
}

func (s *Service) EditText(ctx context.Context, ownerID, id, text string) (*entity.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: task text is required", ErrValidation)
	}
	t, err := s.repo.EditText(ctx, ownerID, id, text)
	return t, mapErr(err)
}

// ToggleDone flips done; a task turning done expires after the grace period.
func (s *Service) ToggleDone(ctx context.Context, ownerID, id string) (*entity.Task, error) {
	t, err := s.repo.Toggle(ctx, ownerID, id, s.now().Add(s.grace))
	return t, mapErr(err)
}

// MarkDone sets done explicitly, setting or clearing the expiry with it.
func (s *Service) MarkDone(ctx context.Context, ownerID, id string, done bool) (*entity.Task, error) {
	t, err := s.repo.SetDone(ctx, ownerID, id, done, s.now().Add(s.grace))
	return t, mapErr(err)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return mapErr(s.repo.Delete(ctx, ownerID, id))
}

// SweepExpired deletes done tasks whose expiry is at or before now.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	}
	return err
}
