// Package auth runs the registration, login and password reset flows. It
// owns the credential and pending-code stores and hands out session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rohilsavliya09/smarty-dash/internal/delivery"
	"github.com/rohilsavliya09/smarty-dash/internal/otp"
	otpentity "github.com/rohilsavliya09/smarty-dash/internal/otp/entity"
	"github.com/rohilsavliya09/smarty-dash/internal/store"
	"github.com/rohilsavliya09/smarty-dash/internal/user"
	"github.com/rohilsavliya09/smarty-dash/internal/user/entity"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 40
	minPasswordLen = 6
	// bcrypt rejects longer input
	maxPasswordBytes = 72
)

// CredentialStore is the user persistence the flows need.
type CredentialStore interface {
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByIdentity(ctx context.Context, email, username string) (*entity.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

// CodeStore issues and redeems pending codes. *otp.Service satisfies it.
type CodeStore interface {
	Issue(ctx context.Context, email string, payload otpentity.Payload) (*otpentity.PendingCode, error)
	Consume(ctx context.Context, email, code string, purpose otpentity.Purpose) (otpentity.Payload, error)
	Pending(ctx context.Context, email string) (*otpentity.PendingCode, error)
	Reissue(ctx context.Context, email, code string) error
	NewCode() (string, error)
}

// Session is returned by every flow that ends authenticated.
type Session struct {
	User  entity.Summary `json:"user"`
	Token string         `json:"token"`
}

// RegisterInput carries a registration request. WantsCode selects the
// email-verified path.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	WantsCode bool
}

// RegisterResult holds a session for direct registration, or CodeSent for
// the code-gated path.
type RegisterResult struct {
	Session  *Session
	CodeSent bool
}

type Service struct {
	users           CredentialStore
	codes           CodeStore
	sender          delivery.Sender
	hasher          user.PasswordHasher
	tokens          *TokenIssuer
	logger          *zap.SugaredLogger
	deliveryTimeout time.Duration

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

// WithDeliveryTimeout bounds each call to the sender.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) { s.deliveryTimeout = d }
}

func NewService(users CredentialStore, codes CodeStore, sender delivery.Sender, hasher user.PasswordHasher, tokens *TokenIssuer, logger *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		users:           users,
		codes:           codes,
		sender:          sender,
		hasher:          hasher,
		tokens:          tokens,
		logger:          logger,
		deliveryTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account directly, or starts email verification when
// in.WantsCode is set. On the code path no user exists until
// VerifyRegistration succeeds.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword("password", in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, email, username); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internal("hash password", err)
	}

	if !in.WantsCode {
		sess, err := s.createVerified(ctx, username, email, hash)
		if err != nil {
			return nil, err
		}
		s.logger.Infow("user registered", "user_id", sess.User.ID)
		return &RegisterResult{Session: sess}, nil
	}

	pc, err := s.codes.Issue(ctx, email, otpentity.RegistrationPayload{Username: username, PasswordHash: hash})
	if err != nil {
		return nil, internal("issue code", err)
	}
	if err := s.deliver(ctx, email, pc.Code, delivery.SubjectRegistration); err != nil {
		return nil, err
	}
	return &RegisterResult{CodeSent: true}, nil
}

// VerifyRegistration redeems a registration code and creates the account.
func (s *Service) VerifyRegistration(ctx context.Context, email, code string) (*Session, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, invalid("otp", "is required")
	}
	payload, err := s.consume(ctx, email, code, otpentity.PurposeRegistration)
	if err != nil {
		return nil, err
	}
	reg, ok := payload.(otpentity.RegistrationPayload)
	if !ok || !user.IsHash(reg.PasswordHash) {
		return nil, internal("verify registration", fmt.Errorf("malformed payload %T", payload))
	}
	// the identity may have been taken while the code was outstanding
	if err := s.ensureAvailable(ctx, email, reg.Username); err != nil {
		return nil, err
	}
	sess, err := s.createVerified(ctx, reg.Username, email, reg.PasswordHash)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user verified", "user_id", sess.User.ID)
	return sess, nil
}

// ResendCode sends a new value for the code pending on email. The stored
// code is only replaced after the new one was delivered, so a failed send
// leaves the previous code usable.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.codes.Pending(ctx, email); err != nil {
		if errors.Is(err, otp.ErrCodeNotFound) {
			return notFound("no registration in progress")
		}
		return internal("find pending code", err)
	}
	code, err := s.codes.NewCode()
	if err != nil {
		return internal("generate code", err)
	}
	if err := s.deliver(ctx, email, code, delivery.SubjectResend); err != nil {
		return err
	}
	if err := s.codes.Reissue(ctx, email, code); err != nil {
		if errors.Is(err, otp.ErrCodeNotFound) {
			return notFound("no registration in progress")
		}
		return internal("reissue code", err)
	}
	return nil
}

// Login checks email and password. Unknown email, unverified account and
// wrong password all yield ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalid("password", "is required")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// keep timing close to the found case
			s.hasher.Verify(s.placeholderHash(), password)
			return nil, ErrUnauthorized
		}
		return nil, internal("find user", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) || !u.IsVerified {
		return nil, ErrUnauthorized
	}
	return s.session(u)
}

// RequestLoginCode sends a passwordless login code to an existing account.
func (s *Service) RequestLoginCode(ctx context.Context, email string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	u, err := s.findUser(ctx, email)
	if err != nil {
		return err
	}
	pc, err := s.codes.Issue(ctx, email, otpentity.LoginPayload{Username: u.Username})
	if err != nil {
		return internal("issue code", err)
	}
	return s.deliver(ctx, email, pc.Code, delivery.SubjectLogin)
}

// VerifyLoginCode redeems a login code and returns a session for the
// account. No user record is touched.
func (s *Service) VerifyLoginCode(ctx context.Context, email, code string) (*Session, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, invalid("otp", "is required")
	}
	if _, err := s.consume(ctx, email, code, otpentity.PurposeLogin); err != nil {
		return nil, err
	}
	u, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// ForgotPassword sends a reset code to an existing account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	if _, err := s.findUser(ctx, email); err != nil {
		return err
	}
	pc, err := s.codes.Issue(ctx, email, otpentity.ResetPayload{})
	if err != nil {
		return internal("issue code", err)
	}
	return s.deliver(ctx, email, pc.Code, delivery.SubjectReset)
}

// ResetPassword redeems a reset code and replaces the account password.
// The new password is checked before the code is spent.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return invalid("otp", "is required")
	}
	if err := checkPassword("newPassword", newPassword); err != nil {
		return err
	}
	if _, err := s.consume(ctx, email, code, otpentity.PurposeReset); err != nil {
		return err
	}
	u, err := s.findUser(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("user not found")
		}
		return internal("update password", err)
	}
	s.logger.Infow("password reset", "user_id", u.ID)
	return nil
}

// Profile returns the account behind a session token subject.
func (s *Service) Profile(ctx context.Context, userID string) (*entity.Summary, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("user not found")
		}
		return nil, internal("find user", err)
	}
	sum := u.Summary()
	return &sum, nil
}

// ensureAvailable fails with ConflictError naming the taken field.
func (s *Service) ensureAvailable(ctx context.Context, email, username string) error {
	existing, err := s.users.FindByIdentity(ctx, email, username)
	if err == nil {
		if existing.Email == email {
			return &ConflictError{Field: "email"}
		}
		return &ConflictError{Field: "username"}
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return internal("check identity", err)
}

func (s *Service) createVerified(ctx context.Context, username, email, hash string) (*Session, error) {
	u, err := s.users.Create(ctx, &entity.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
	})
	if err != nil {
		// a concurrent registration won the race
		var ce *store.ConflictError
		if errors.As(err, &ce) {
			return nil, &ConflictError{Field: ce.Field}
		}
		return nil, internal("create user", err)
	}
	return s.session(u)
}

func (s *Service) findUser(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("user not found")
		}
		return nil, internal("find user", err)
	}
	return u, nil
}

func (s *Service) consume(ctx context.Context, email, code string, purpose otpentity.Purpose) (otpentity.Payload, error) {
	payload, err := s.codes.Consume(ctx, email, code, purpose)
	switch {
	case err == nil:
		return payload, nil
	case errors.Is(err, otp.ErrCodeNotFound):
		return nil, ErrInvalidCode
	case errors.Is(err, otp.ErrCodeExpired):
		return nil, ErrExpiredCode
	default:
		return nil, internal("consume code", err)
	}
}

func (s *Service) deliver(ctx context.Context, email, code, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	if err := s.sender.Send(ctx, email, code, subject); err != nil {
		s.logger.Warnw("code delivery failed", "subject", subject, "err", err)
		return ErrDeliveryUnavailable
	}
	return nil
}

func (s *Service) session(u *entity.User) (*Session, error) {
	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, internal("issue token", err)
	}
	return &Session{User: u.Summary(), Token: tok}, nil
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("placeholder-password")
	})
	return s.dummyHash
}

func normalizeEmail(raw string) (string, error) {
	email, err := requireEmail(raw)
	if err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

func requireEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "is required")
	}
	return email, nil
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(username)
	if n == 0 {
		return "", invalid("username", "is required")
	}
	if n < minUsernameLen || n > maxUsernameLen {
		return "", invalid("username", fmt.Sprintf("must be %d-%d characters", minUsernameLen, maxUsernameLen))
	}
	return username, nil
}

func checkPassword(field, pw string) error {
	if pw == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return invalid(field, fmt.Sprintf("must be at least %d characters", minPasswordLen))
	}
	if len(pw) > maxPasswordBytes {
		return invalid(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
