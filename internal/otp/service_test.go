package otp

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohilsavliya09/smarty-dash/internal/otp/entity"
	"github.com/rohilsavliya09/smarty-dash/internal/otp/repo"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func fixedCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func newTestService(codes ...string) (*Service, *repo.MemoryRepo, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	r := repo.NewMemoryRepo()
	s := NewService(r, 10*time.Minute, WithClock(clock.Now), WithGenerator(fixedCodes(codes...)))
	return s, r, clock
}

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, re, c)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123456", "123456", true},
		{"  123456\n", "123456", true},
		{"123 456", "123456", true},
		{"123-456", "123456", true},
		{"12345", "012345", true},
		{"123456.0", "123456", true},
		{"12a456", "", false},
		{"1234567", "", false},
		{"", "", false},
		{"12.5", "", false},
		{"-123456", "", false},
		{"123456-", "", false},
		{"12--3456", "", false},
		{"1 2 3 4 5 6", "123456", true},
	}
	for _, tc := range cases {
		got, ok := NormalizeCode(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestIssue_ReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	s, r, clock := newTestService("111111", "222222")

	first, err := s.Issue(ctx, "a@x.com", entity.ResetPayload{})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(10*time.Minute), first.ExpiresAt)

	_, err = s.Issue(ctx, "a@x.com", entity.ResetPayload{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	_, err = s.Consume(ctx, "a@x.com", "111111", entity.PurposeReset)
	assert.ErrorIs(t, err, ErrCodeNotFound)

	p, err := s.Consume(ctx, "a@x.com", "222222", entity.PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, entity.ResetPayload{}, p)
}

func TestConsume_SingleUse(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService("123456")
	_, err := s.Issue(ctx, "a@x.com", entity.RegistrationPayload{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	p, err := s.Consume(ctx, "a@x.com", " 123456 ", entity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, entity.RegistrationPayload{Username: "alice", PasswordHash: "h"}, p)

	_, err = s.Consume(ctx, "a@x.com", "123456", entity.PurposeRegistration)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestConsume_WrongPurposeLeavesCode(t *testing.T) {
	ctx := context.Background()
	s, r, _ := newTestService("123456")
	_, err := s.Issue(ctx, "a@x.com", entity.LoginPayload{Username: "alice"})
	require.NoError(t, err)

	_, err = s.Consume(ctx, "a@x.com", "123456", entity.PurposeReset)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Equal(t, 1, r.Len())
}

func TestConsume_ExpiredIsDeleted(t *testing.T) {
	ctx := context.Background()
	s, r, clock := newTestService("123456")
	_, err := s.Issue(ctx, "a@x.com", entity.ResetPayload{})
	require.NoError(t, err)

	clock.Advance(10*time.Minute + time.Second)
	_, err = s.Consume(ctx, "a@x.com", "123456", entity.PurposeReset)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, 0, r.Len())

	_, err = s.Pending(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestReissue(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestService("111111")
	_, err := s.Issue(ctx, "a@x.com", entity.RegistrationPayload{Username: "alice", PasswordHash: "h"})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.NoError(t, s.Reissue(ctx, "a@x.com", "999999"))

	pc, err := s.Pending(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "999999", pc.Code)
	assert.Equal(t, clock.Now().Add(10*time.Minute), pc.ExpiresAt)

	_, err = s.Consume(ctx, "a@x.com", "111111", entity.PurposeRegistration)
	assert.ErrorIs(t, err, ErrCodeNotFound)
	p, err := s.Consume(ctx, "a@x.com", "999999", entity.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.(entity.RegistrationPayload).Username)

	assert.ErrorIs(t, s.Reissue(ctx, "a@x.com", "000000"), ErrCodeNotFound)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, r, clock := newTestService("111111", "222222")
	_, _ = s.Issue(ctx, "a@x.com", entity.ResetPayload{})
	clock.Advance(11 * time.Minute)
	_, _ = s.Issue(ctx, "b@x.com", entity.ResetPayload{})

	n, err := s.Purge(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, r.Len())
}
