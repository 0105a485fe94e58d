package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rohilsavliya09/smarty-dash/internal/delivery"
	"github.com/rohilsavliya09/smarty-dash/internal/otp"
	otprepo "github.com/rohilsavliya09/smarty-dash/internal/otp/repo"
	"github.com/rohilsavliya09/smarty-dash/internal/user"
	"github.com/rohilsavliya09/smarty-dash/internal/user/entity"
	userrepo "github.com/rohilsavliya09/smarty-dash/internal/user/repo"
)

type sentCode struct {
	Email, Code, Subject string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCode
	fail bool
}

func (f *fakeSender) Send(_ context.Context, email, code, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return delivery.ErrUnavailable
	}
	f.sent = append(f.sent, sentCode{email, code, subject})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentCode {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc    *Service
	users  *userrepo.MemoryRepo
	codes  *otprepo.MemoryRepo
	sender *fakeSender
	clock  *clock
	tokens *TokenIssuer
}

func newFixture(t *testing.T, opts ...otp.Option) *fixture {
	t.Helper()
	f := &fixture{
		users:  userrepo.NewMemoryRepo(),
		codes:  otprepo.NewMemoryRepo(),
		sender: &fakeSender{},
		clock:  &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		tokens: NewTokenIssuer("test-secret", 24*time.Hour),
	}
	codeSvc := otp.NewService(f.codes, 10*time.Minute, append([]otp.Option{otp.WithClock(f.clock.Now)}, opts...)...)
	f.svc = NewService(f.users, codeSvc, f.sender, user.BcryptHasher{Cost: bcrypt.MinCost}, f.tokens, zap.NewNop().Sugar())
	return f
}

func TestRegisterDirectThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "A@X.com", Password: "Secr3t!"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.False(t, res.CodeSent)
	assert.True(t, res.Session.User.IsVerified)
	assert.Equal(t, "a@x.com", res.Session.User.Email)
	assert.Empty(t, f.sender.sent)

	sess, err := f.svc.Login(ctx, "a@x.com", "Secr3t!")
	require.NoError(t, err)
	id, err := f.tokens.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Session.User.ID, id)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []RegisterInput{
		{Username: "", Email: "a@x.com", Password: "secret1"},
		{Username: "ab", Email: "a@x.com", Password: "secret1"},
		{Username: "alice", Email: "not-an-email", Password: "secret1"},
		{Username: "alice", Email: "Alice <a@x.com>", Password: "secret1"},
		{Username: "alice", Email: "a@x.com", Password: "123"},
	}
	for _, in := range cases {
		_, err := f.svc.Register(ctx, in)
		assert.ErrorIs(t, err, ErrValidation, "%+v", in)
	}
}

func TestRegister_ConflictNamesField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "bob", Email: "a@x.com", Password: "secret1"})
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "email", ce.Field)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "b@x.com", Password: "secret1", WantsCode: true})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "username", ce.Field)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"alice", "alicia"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = f.svc.Register(ctx, RegisterInput{Username: name, Email: "a@x.com", Password: "secret1"})
		}(i, name)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
}

func TestCodeGatedRegistration_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	require.NoError(t, err)
	assert.True(t, res.CodeSent)
	assert.Nil(t, res.Session)

	sent := f.sender.last(t)
	assert.Equal(t, "a@x.com", sent.Email)
	assert.Equal(t, delivery.SubjectRegistration, sent.Subject)
	assert.Regexp(t, `^\d{6}$`, sent.Code)

	// nothing is created before verification
	_, err = f.users.FindByEmail(ctx, "a@x.com")
	require.Error(t, err)

	sess, err := f.svc.VerifyRegistration(ctx, "a@x.com", sent.Code)
	require.NoError(t, err)
	assert.True(t, sess.User.IsVerified)
	assert.Equal(t, "alice", sess.User.Username)
	assert.NotEmpty(t, sess.Token)

	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", sent.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, err = f.svc.Login(ctx, "a@x.com", "Secr3t!")
	require.NoError(t, err)
}

func TestCodeGatedRegistration_DeliveryFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sender.fail = true

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	assert.ErrorIs(t, err, ErrDeliveryUnavailable)
	assert.Equal(t, 1, f.codes.Len())
	_, err = f.users.FindByEmail(ctx, "a@x.com")
	require.Error(t, err)

	f.sender.fail = false
	require.NoError(t, f.svc.ResendCode(ctx, "a@x.com"))
	sent := f.sender.last(t)
	assert.Equal(t, delivery.SubjectResend, sent.Subject)

	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", sent.Code)
	require.NoError(t, err)
}

func TestVerifyRegistration_IdentityTakenMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	require.NoError(t, err)
	code := f.sender.last(t).Code

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "other@x.com", Password: "Secr3t!"})
	require.NoError(t, err)

	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", code)
	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "username", ce.Field)
}

func TestVerifyRegistration_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	require.NoError(t, err)
	code := f.sender.last(t).Code

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrExpiredCode)
	assert.Equal(t, 0, f.codes.Len())

	// the old code is gone and cannot be revived by resend
	assert.ErrorIs(t, f.svc.ResendCode(ctx, "a@x.com"), ErrNotFound)
	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestResend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.ResendCode(ctx, "a@x.com"), ErrNotFound)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	require.NoError(t, err)
	first := f.sender.last(t).Code

	f.sender.fail = true
	assert.ErrorIs(t, f.svc.ResendCode(ctx, "a@x.com"), ErrDeliveryUnavailable)
	f.sender.fail = false

	// failed resend leaves the first code valid
	sess, err := f.svc.VerifyRegistration(ctx, "a@x.com", first)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.User.Username)
}

func TestResend_ReplacesCodeValue(t *testing.T) {
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	f := newFixture(t, otp.WithGenerator(func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}))

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!", WantsCode: true})
	require.NoError(t, err)
	first := f.sender.last(t).Code
	require.NoError(t, f.svc.ResendCode(ctx, "a@x.com"))
	second := f.sender.last(t).Code
	require.Equal(t, "111111", first)
	require.Equal(t, "222222", second)

	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", first)
	assert.ErrorIs(t, err, ErrInvalidCode)
	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", second)
	require.NoError(t, err)
}

func TestLogin_Uniform(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)

	_, wrongPw := f.svc.Login(ctx, "a@x.com", "nope-nope")
	_, unknown := f.svc.Login(ctx, "ghost@x.com", "Secr3t!")
	require.ErrorIs(t, wrongPw, ErrUnauthorized)
	require.ErrorIs(t, unknown, ErrUnauthorized)
	assert.Equal(t, wrongPw.Error(), unknown.Error())
}

func newUnverified(username, email, hash string) *entity.User {
	return &entity.User{Username: username, Email: email, PasswordHash: hash}
}

func TestLogin_Unverified(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	hash, err := user.BcryptHasher{Cost: bcrypt.MinCost}.Hash("Secr3t!")
	require.NoError(t, err)
	_, err = f.users.Create(ctx, newUnverified("alice", "a@x.com", hash))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", "Secr3t!")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.RequestLoginCode(ctx, "a@x.com"), ErrNotFound)

	reg, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestLoginCode(ctx, "a@x.com"))
	first := f.sender.last(t)
	assert.Equal(t, delivery.SubjectLogin, first.Subject)
	require.NoError(t, f.svc.RequestLoginCode(ctx, "a@x.com"))
	second := f.sender.last(t)
	assert.Equal(t, 1, f.codes.Len())

	if first.Code != second.Code {
		_, err = f.svc.VerifyLoginCode(ctx, "a@x.com", first.Code)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	sess, err := f.svc.VerifyLoginCode(ctx, "a@x.com", second.Code)
	require.NoError(t, err)
	assert.Equal(t, reg.Session.User.ID, sess.User.ID)

	_, err = f.svc.VerifyLoginCode(ctx, "a@x.com", second.Code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestLoginCode_CannotCompleteRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestLoginCode(ctx, "a@x.com"))
	code := f.sender.last(t).Code

	_, err = f.svc.VerifyRegistration(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Equal(t, 1, f.codes.Len())
}

func TestForgotAndResetPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "a@x.com"), ErrNotFound)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	sent := f.sender.last(t)
	assert.Equal(t, delivery.SubjectReset, sent.Subject)

	// a short password is rejected without spending the code
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", sent.Code, "123"), ErrValidation)
	assert.Equal(t, 1, f.codes.Len())

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", sent.Code, "N3wPass!"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", sent.Code, "N3wPass!"), ErrInvalidCode)

	_, err = f.svc.Login(ctx, "a@x.com", "Secr3t!")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Login(ctx, "a@x.com", "N3wPass!")
	require.NoError(t, err)
}

func TestPassword_OverBcryptLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	long := strings.Repeat("a", 73)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: long})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: strings.Repeat("a", 72)})
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	code := f.sender.last(t).Code
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", code, long), ErrValidation)
	assert.Equal(t, 1, f.codes.Len())

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", code, "N3wPass!"))
}

func TestResetPassword_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)
	require.NoError(t, f.svc.ForgotPassword(ctx, "a@x.com"))
	code := f.sender.last(t).Code

	f.clock.Advance(10*time.Minute + time.Second)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", code, "N3wPass!"), ErrExpiredCode)
}

func TestForgotPassword_DeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)

	f.sender.fail = true
	assert.ErrorIs(t, f.svc.ForgotPassword(ctx, "a@x.com"), ErrDeliveryUnavailable)
	assert.ErrorIs(t, f.svc.RequestLoginCode(ctx, "a@x.com"), ErrDeliveryUnavailable)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!"})
	require.NoError(t, err)

	sum, err := f.svc.Profile(ctx, res.Session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", sum.Username)

	_, err = f.svc.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
