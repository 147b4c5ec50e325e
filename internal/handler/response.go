package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mareye-api/internal/otp"
	"mareye-api/internal/service"
	"mareye-api/internal/util"
)

const maxJSONBody = 1 << 20

// Response is the error envelope. Success bodies use the field names the frontend reads.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type base struct {
	logger *zap.Logger
}

func (b base) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		b.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError writes message in both error and message so either frontend convention finds it.
func (b base) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	fields := []zap.Field{
		util.Int("status_code", statusCode),
		util.String("message", message),
	}
	if err != nil {
		fields = append(fields, util.ErrorField(err))
	}
	if statusCode >= http.StatusInternalServerError {
		b.logger.Error("HTTP error response", fields...)
	} else {
		b.logger.Warn("HTTP error response", fields...)
	}
	b.respondWithJSON(w, statusCode, Response{Success: false, Error: message, Message: message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return decodeBody(r, v)
}

// decodeBody decodes r.Body as is; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUserAlreadyExists),
		errors.Is(err, service.ErrOAuthState),
		errors.Is(err, otp.ErrNotFound),
		errors.Is(err, otp.ErrExpired),
		errors.Is(err, otp.ErrTooManyAttempts),
		errors.Is(err, otp.ErrMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the user-facing text for an error; server faults fall back to fallback.
func clientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, otp.ErrNotFound):
		return "OTP not found or expired"
	case errors.Is(err, otp.ErrExpired):
		return "OTP has expired"
	case errors.Is(err, otp.ErrTooManyAttempts):
		return "Too many failed attempts. Please request a new OTP"
	case errors.Is(err, otp.ErrMismatch):
		return "Invalid OTP"
	case errors.Is(err, service.ErrTooManyRequests):
		return "Too many OTP requests. Please try again later"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, service.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, service.ErrInvalidInput):
		return inputMessage(err)
	}
	return fallback
}

// inputMessage turns "invalid input: user data not found" into "User data not found".
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": ")
	if msg == "" {
		return "Invalid input"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
