// Package otp issues and redeems single-use email codes. Each code carries a
// purpose-specific payload and is destroyed on its first successful
// redemption or once its deadline passes.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rohilsavliya09/smarty-dash/internal/otp/entity"
	"github.com/rohilsavliya09/smarty-dash/internal/store"
)

// CodeLength is the number of decimal digits in an issued code.
const CodeLength = 6

var (
	ErrCodeNotFound = errors.New("code not found")
	ErrCodeExpired  = errors.New("code expired")
)

// Repository is the persistence the service needs. CodeRepo and MemoryRepo
// in otp/repo both satisfy it.
type Repository interface {
	DeleteByEmail(ctx context.Context, email string) (int64, error)
	Insert(ctx context.Context, c entity.PendingCode) (*entity.PendingCode, error)
	Take(ctx context.Context, email, code string, purpose entity.Purpose) (*entity.PendingCode, error)
	FindLive(ctx context.Context, email string, now time.Time) (*entity.PendingCode, error)
	UpdateCode(ctx context.Context, email, code string, expiresAt, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	repo     Repository
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

type Option func(*Service)

// WithClock overrides the time source used for deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator overrides code generation.
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generate = gen }
}

func NewService(repo Repository, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		generate: GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is the lifetime given to issued and reissued codes.
func (s *Service) TTL() time.Duration { return s.ttl }

// NewCode returns a fresh code value without storing it.
func (s *Service) NewCode() (string, error) {
	return s.generate()
}

// Issue replaces any codes pending for email with a new one carrying payload.
func (s *Service) Issue(ctx context.Context, email string, payload entity.Payload) (*entity.PendingCode, error) {
	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	if _, err := s.repo.DeleteByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("clear pending codes: %w", err)
	}
	pc, err := s.repo.Insert(ctx, entity.PendingCode{
		Email:     email,
		Code:      code,
		Payload:   payload,
		ExpiresAt: s.now().Add(s.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("store pending code: %w", err)
	}
	return pc, nil
}

// Consume redeems a submitted code for email and purpose. The matching record
// is deleted whether it is still valid or already expired.
func (s *Service) Consume(ctx context.Context, email, submitted string, purpose entity.Purpose) (entity.Payload, error) {
	code, ok := NormalizeCode(submitted)
	if !ok {
		return nil, ErrCodeNotFound
	}
	pc, err := s.repo.Take(ctx, email, code, purpose)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if pc.Expired(s.now()) {
		return nil, ErrCodeExpired
	}
	return pc.Payload, nil
}

// Pending returns the live code for email, or ErrCodeNotFound.
func (s *Service) Pending(ctx context.Context, email string) (*entity.PendingCode, error) {
	pc, err := s.repo.FindLive(ctx, email, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return pc, nil
}

// Reissue swaps the value of the live code for email to code and restarts
// its deadline. The payload is kept.
func (s *Service) Reissue(ctx context.Context, email, code string) error {
	now := s.now()
	if err := s.repo.UpdateCode(ctx, email, code, now.Add(s.ttl), now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCodeNotFound
		}
		return err
	}
	return nil
}

// Purge deletes codes past their deadline and reports how many went.
func (s *Service) Purge(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}

// GenerateCode draws a uniformly random CodeLength-digit code.
func GenerateCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// NormalizeCode turns a human-entered code into its canonical digit string.
// Surrounding whitespace and spaces or dashes between digits are dropped, and a value
// that arrived as a number (e.g. "12345" for "012345", or "123456.0") is
// padded back to CodeLength digits.
func NormalizeCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if (r == ' ' || r == '-') && i > 0 && i < len(s)-1 && isDigit(s[i-1]) && isDigit(s[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()
	if s == "" {
		return "", false
	}
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 || f != float64(int64(f)) {
			return "", false
		}
		s = strconv.FormatInt(int64(f), 10)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if len(s) > CodeLength {
		return "", false
	}
	return strings.Repeat("0", CodeLength-len(s)) + s, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
