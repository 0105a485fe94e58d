package entity

import "time"

// Purpose keys the payload variant carried by a pending code.
type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeLogin        Purpose = "login"
	PurposeReset        Purpose = "reset"
)

// Payload is the purpose-specific data bound to a pending code. The set of
// implementations is closed: RegistrationPayload, LoginPayload, ResetPayload.
type Payload interface {
	Purpose() Purpose
	sealed()
}

// RegistrationPayload carries the account waiting for email verification.
// PasswordHash is already hashed; plaintext never reaches the code store.
type RegistrationPayload struct {
	Username     string
	PasswordHash string
}

// LoginPayload marks a passwordless login for an existing account.
type LoginPayload struct {
	Username string
}

// ResetPayload marks a password reset.
type ResetPayload struct{}

func (RegistrationPayload) Purpose() Purpose { return PurposeRegistration }
func (LoginPayload) Purpose() Purpose        { return PurposeLogin }
func (ResetPayload) Purpose() Purpose        { return PurposeReset }

func (RegistrationPayload) sealed() {}
func (LoginPayload) sealed()        {}
func (ResetPayload) sealed()        {}

// PendingCode is a single-use code bound to an email address.
type PendingCode struct {
	ID        int64
	Email     string
	Code      string
	Payload   Payload
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code's deadline has passed at now.
func (p *PendingCode) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
