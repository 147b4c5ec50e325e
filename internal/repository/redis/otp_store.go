package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mareye-api/internal/client"
	"mareye-api/internal/otp"
	"mareye-api/internal/util"
)

const (
	otpPrefix  = "otp:"
	opTimeout  = 5 * time.Second
	scanBatch  = 200
	minKeyLife = time.Second
)

// OTPStore keeps OTP records as JSON strings whose Redis TTL tracks the record expiry,
// so abandoned codes disappear without the sweeper and every instance sees the same state.
type OTPStore struct {
	client *client.RedisClient
	now    func() time.Time
}

func NewOTPStore(c *client.RedisClient) *OTPStore {
	return &OTPStore{client: c, now: time.Now}
}

func (s *OTPStore) Put(ctx context.Context, rec *otp.Record) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode OTP record: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < minKeyLife {
		ttl = minKeyLife
	}

	if err := s.client.Set(ctx, otpPrefix+rec.Email, data, ttl); err != nil {
		util.Error("Failed to store OTP", util.Email("email", rec.Email), zap.Duration("ttl", ttl), zap.Error(err))
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	util.Debug("OTP stored", util.Email("email", rec.Email), zap.Duration("ttl", ttl))
	return nil
}

func (s *OTPStore) Get(ctx context.Context, email string) (*otp.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, otpPrefix+email)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, otp.ErrNotFound
		}
		util.Error("Failed to get OTP", util.Email("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}
	return decodeRecord(raw)
}

func (s *OTPStore) Delete(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, otpPrefix+email); err != nil {
		util.Error("Failed to delete OTP", util.Email("email", email), zap.Error(err))
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}

// ReserveAttempt checks expiry and the attempt budget and rewrites the counter inside one
// WATCH transaction, so concurrent guesses each spend a distinct attempt.
func (s *OTPStore) ReserveAttempt(ctx context.Context, email string, now time.Time, max int) (*otp.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := otpPrefix + email
	var reserved *otp.Record

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return otp.ErrNotFound
			}
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return err
		}

		var verdict error
		switch {
		case rec.Expired(now):
			verdict = otp.ErrExpired
		case rec.Attempts >= max:
			verdict = otp.ErrTooManyAttempts
		}
		if verdict != nil {
			if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}
			return verdict
		}

		rec.Attempts++
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, goredis.KeepTTL)
			return nil
		}); err != nil {
			return err
		}
		reserved = rec
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) || errors.Is(err, otp.ErrExpired) || errors.Is(err, otp.ErrTooManyAttempts) {
			return nil, err
		}
		util.Error("Failed to reserve OTP attempt", util.Email("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to reserve OTP attempt: %w", err)
	}

	util.Debug("OTP attempt reserved", util.Email("email", email), zap.Int("attempts", reserved.Attempts))
	return reserved, nil
}

// Consume deletes the key only if it still holds the issuance rec came from.
func (s *OTPStore) Consume(ctx context.Context, rec *otp.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	key := otpPrefix + rec.Email
	consumed := false

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return nil
			}
			return err
		}
		cur, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		if !cur.SameIssue(rec) {
			return nil
		}
		if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		consumed = true
		return nil
	}, key)
	if err != nil {
		util.Error("Failed to consume OTP", util.Email("email", rec.Email), zap.Error(err))
		return false, fmt.Errorf("failed to consume OTP: %w", err)
	}
	return consumed, nil
}

// DeleteExpired only finds records whose key TTL outlived the embedded expiry,
// which happens after clock skew between instances.
func (s *OTPStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.client.ScanAll(ctx, otpPrefix+"*", scanBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to scan OTP keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key)
		if err != nil {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil || rec.Expired(now) {
			if err := s.client.Del(ctx, key); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func decodeRecord(raw string) (*otp.Record, error) {
	var rec otp.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode OTP record: %w", err)
	}
	return &rec, nil
}
