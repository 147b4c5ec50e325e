package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"mareye-api/internal/hashing"
	"mareye-api/internal/metrics"
	"mareye-api/internal/util"
)

const (
	DefaultTTL           = 10 * time.Minute
	DefaultMaxAttempts   = 3
	DefaultSweepInterval = 5 * time.Minute

	codeDigits = 6
)

type Options struct {
	TTL           time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
	// Limiter is optional; nil disables send throttling.
	Limiter Limiter
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// Generate returns a fresh code; nil means a crypto-random 6 digit code.
	Generate func() (string, error)
}

type IssueRequest struct {
	Email         string
	Purpose       Purpose
	Payload       json.RawMessage
	RecipientName string
}

type Verified struct {
	Email   string
	Purpose Purpose
	Payload json.RawMessage
}

// Service issues and verifies one-time codes sent by email.
type Service struct {
	store    Store
	sender   Sender
	hasher   *hashing.Hasher
	limiter  Limiter
	ttl      time.Duration
	max      int
	interval time.Duration
	now      func() time.Time
	generate func() (string, error)
	logger   *zap.Logger
}

func NewService(store Store, sender Sender, hasher *hashing.Hasher, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		store:    store,
		sender:   sender,
		hasher:   hasher,
		limiter:  opts.Limiter,
		ttl:      opts.TTL,
		max:      opts.MaxAttempts,
		interval: opts.SweepInterval,
		now:      opts.Now,
		generate: opts.Generate,
		logger:   logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.max <= 0 {
		s.max = DefaultMaxAttempts
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.generate == nil {
		s.generate = GenerateCode
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// GenerateCode returns a uniformly random code in [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()+100000), nil
}

// Issue stores a new record for req.Email, replacing any previous one, and mails the code.
// When delivery fails the record stays in place and ErrDelivery is returned.
func (s *Service) Issue(ctx context.Context, req IssueRequest) error {
	email := util.NormalizeEmail(req.Email)
	if email == "" || !req.Purpose.Valid() {
		return fmt.Errorf("otp: invalid issue request for purpose %q", req.Purpose)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, email)
		if err != nil {
			s.logger.Warn("OTP send limiter unavailable, allowing request", util.Email("email", email), util.ErrorField(err))
		} else if !allowed {
			metrics.OTPIssuedTotal.WithLabelValues(string(req.Purpose), "rate_limited").Inc()
			return ErrRateLimited
		}
	}

	code, err := s.generate()
	if err != nil {
		return err
	}
	hash, err := s.hasher.HashOTP(code)
	if err != nil {
		return fmt.Errorf("failed to hash otp: %w", err)
	}

	now := s.now()
	rec := &Record{
		Email:     email,
		Code:      *hash,
		Purpose:   req.Purpose,
		Payload:   req.Payload,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		metrics.OTPIssuedTotal.WithLabelValues(string(req.Purpose), "store_error").Inc()
		return fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.sender.SendOTP(ctx, email, code, req.RecipientName); err != nil {
		metrics.OTPIssuedTotal.WithLabelValues(string(req.Purpose), "delivery_error").Inc()
		s.logger.Error("Failed to deliver OTP", util.Email("email", email), util.ErrorField(err))
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	metrics.OTPIssuedTotal.WithLabelValues(string(req.Purpose), "sent").Inc()
	s.logger.Info("OTP issued",
		util.Email("email", email),
		util.String("purpose", string(req.Purpose)),
		util.Duration("ttl", s.ttl),
	)
	return nil
}

// Verify checks candidate against the stored code. Every call spends one attempt before
// the comparison, so concurrent guesses cannot exceed the budget. A successful match
// consumes the record; the wrong guess that exhausts the budget removes it.
func (s *Service) Verify(ctx context.Context, email, candidate string) (*Verified, error) {
	email = util.NormalizeEmail(email)

	rec, err := s.store.ReserveAttempt(ctx, email, s.now(), s.max)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, s.fail("not_found", ErrNotFound)
		case errors.Is(err, ErrExpired):
			return nil, s.fail("expired", ErrExpired)
		case errors.Is(err, ErrTooManyAttempts):
			return nil, s.fail("too_many_attempts", ErrTooManyAttempts)
		}
		return nil, fmt.Errorf("failed to load otp: %w", err)
	}

	ok, err := s.hasher.VerifyOTP(candidate, &rec.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to compare otp: %w", err)
	}
	if !ok {
		if rec.Attempts >= s.max {
			s.discard(ctx, rec)
			return nil, s.fail("too_many_attempts", ErrTooManyAttempts)
		}
		return nil, s.fail("mismatch", ErrMismatch)
	}

	consumed, err := s.store.Consume(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}
	if !consumed {
		// removed or reissued after the reservation
		return nil, s.fail("not_found", ErrNotFound)
	}

	metrics.OTPVerificationsTotal.WithLabelValues("verified").Inc()
	s.logger.Info("OTP verified", util.Email("email", email), util.String("purpose", string(rec.Purpose)))

	return &Verified{Email: email, Purpose: rec.Purpose, Payload: rec.Payload}, nil
}

// Sweep deletes expired records once.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

// StartSweeper runs Sweep on the configured interval until ctx is cancelled.
func (s *Service) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Warn("OTP sweep failed", util.ErrorField(err))
					continue
				}
				if removed > 0 {
					s.logger.Debug("Expired OTPs removed", util.Int("count", removed))
				}
			}
		}
	}()
}

func (s *Service) discard(ctx context.Context, rec *Record) {
	if _, err := s.store.Consume(ctx, rec); err != nil {
		s.logger.Warn("Failed to delete OTP record", util.Email("email", rec.Email), util.ErrorField(err))
	}
}

func (s *Service) fail(result string, err error) error {
	metrics.OTPVerificationsTotal.WithLabelValues(result).Inc()
	return err
}
