package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const algorithmArgon2ID = "argon2id-v1"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible hash algorithm")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP argon2id baseline (19 MiB, 2 passes).
var DefaultParams = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type HashResult struct {
	Hash      string `json:"hash"`
	Salt      string `json:"salt"`
	Algorithm string `json:"algorithm"`
}

// Hasher hashes short-lived secrets (OTP codes) with argon2id and a server-side pepper.
type Hasher struct {
	params Argon2Params
	pepper string
}

func NewHasher(pepper string, params Argon2Params) *Hasher {
	return &Hasher{params: params, pepper: pepper}
}

func (h *Hasher) HashOTP(otp string) (*HashResult, error) {
	return h.hashWithPepper(otp, "otp")
}

func (h *Hasher) VerifyOTP(otp string, result *HashResult) (bool, error) {
	return h.verifyWithPepper(otp, result, "otp")
}

func (h *Hasher) hashWithPepper(data, context string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := h.derive(data, context, salt, h.params.KeyLength)

	return &HashResult{
		Hash:      base64.RawURLEncoding.EncodeToString(hash),
		Salt:      base64.RawURLEncoding.EncodeToString(salt),
		Algorithm: algorithmArgon2ID,
	}, nil
}

func (h *Hasher) verifyWithPepper(data string, result *HashResult, context string) (bool, error) {
	if result == nil {
		return false, ErrInvalidHash
	}
	if result.Algorithm != algorithmArgon2ID {
		return false, ErrIncompatibleVersion
	}

	salt, err := base64.RawURLEncoding.DecodeString(result.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(result.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := h.derive(data, context, salt, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// derive binds the purpose string into the input so a hash for one context never verifies in another.
func (h *Hasher) derive(data, context string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey(
		[]byte(data+h.pepper+context),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		keyLen,
	)
}
