package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrNotConfigured      = errors.New("feature not configured")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrDeliveryFailed     = errors.New("failed to send email")
	ErrUpstream           = errors.New("upstream service failed")
	ErrOAuthState         = errors.New("oauth state mismatch")
)
