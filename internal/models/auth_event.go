package models

import "time"

const (
	EventUserRegistered = "user.registered"
	EventUserLogin      = "user.login"
	EventOTPIssued      = "otp.issued"
	EventLoginFailed    = "user.login_failed"
)

// AuthEvent is published to the auth event stream for auditing.
type AuthEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"userId,omitempty"`
	Email     string            `json:"email,omitempty"`
	Method    string            `json:"method,omitempty"`
	IPAddress string            `json:"ipAddress,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
