package otp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mareye-api/internal/hashing"
)

type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeLogin        Purpose = "login"
)

func (p Purpose) Valid() bool {
	return p == PurposeRegistration || p == PurposeLogin
}

var (
	ErrNotFound        = errors.New("otp not found or expired")
	ErrExpired         = errors.New("otp has expired")
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new otp")
	ErrMismatch        = errors.New("invalid otp")
	ErrRateLimited     = errors.New("too many otp requests, try again later")
	ErrDelivery        = errors.New("failed to send otp email")
)

// Record is the state kept for one email between issue and verify.
// Payload is opaque to this package; callers decide its shape.
type Record struct {
	Email     string             `json:"email"`
	Code      hashing.HashResult `json:"code"`
	Purpose   Purpose            `json:"purpose"`
	Payload   json.RawMessage    `json:"payload,omitempty"`
	Attempts  int                `json:"attempts"`
	ExpiresAt time.Time          `json:"expires_at"`
	CreatedAt time.Time          `json:"created_at"`
}

func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// SameIssue reports whether r and other come from the same Issue call.
func (r *Record) SameIssue(other *Record) bool {
	return r.Code.Hash == other.Code.Hash && r.Code.Salt == other.Code.Salt && r.CreatedAt.Equal(other.CreatedAt)
}

// Store persists OTP records keyed by normalized email.
type Store interface {
	// Put replaces any existing record for rec.Email.
	Put(ctx context.Context, rec *Record) error
	// Get returns ErrNotFound when there is no record.
	Get(ctx context.Context, email string) (*Record, error)
	Delete(ctx context.Context, email string) error
	// ReserveAttempt counts one verification attempt before the code is compared.
	// In a single atomic step it returns ErrNotFound for a missing record, removes the
	// record and returns ErrExpired or ErrTooManyAttempts when it can no longer be used,
	// or increments Attempts and returns the updated record.
	ReserveAttempt(ctx context.Context, email string, now time.Time, max int) (*Record, error)
	// Consume deletes rec only while the stored record is still the same issuance.
	// It reports whether this call removed it.
	Consume(ctx context.Context, rec *Record) (bool, error)
	// DeleteExpired removes every record whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Limiter throttles issuance per key. Allow reports whether another send is permitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Sender delivers a code to the user. name may be empty.
type Sender interface {
	SendOTP(ctx context.Context, to, code, name string) error
}
