// Package integrity makes emitted signals tamper-evident with a SHA-256 hash over a versioned
// canonical field set.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"SignalGuard/internal/domain/models"
	"SignalGuard/internal/domain/repository"
	"SignalGuard/pkg/metrics"
)

var (
	ErrUnsupportedVersion = errors.New("integrity: unsupported hash version")
	ErrNonFinite          = errors.New("integrity: non-finite numeric field")
	ErrMissingTimestamp   = errors.New("integrity: timestamp must be set before hashing")
)

// Reasons reported in VerificationResult.Error.
const (
	ReasonMismatch           = "hash mismatch"
	ReasonMissingHash        = "missing hash"
	ReasonUnsupportedVersion = "unsupported hash version"
	ReasonInvalidFields      = "invalid fields"
)

type Option func(*Verifier)

func WithMetrics(m repository.Metrics) Option {
	return func(v *Verifier) {
		if m != nil {
			v.metrics = m
		}
	}
}

func WithVersion(version int) Option {
	return func(v *Verifier) { v.version = version }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// Verifier is stateless apart from its configuration and safe for concurrent use.
type Verifier struct {
	version int
	metrics repository.Metrics
	now     func() time.Time
}

func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{version: CurrentVersion, metrics: metrics.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Version is the canonical version used by Seal.
func (v *Verifier) Version() int { return v.version }

// GenerateHash returns the hex SHA-256 of the signal's canonical fields. The version is taken
// from s.HashVersion, or the verifier's version when unset. The stored hash is never an input.
func (v *Verifier) GenerateHash(s models.Signal) (string, error) {
	return Hash(s, v.VersionOf(s))
}

// VersionOf is the canonical version a signal is hashed and verified under: its own, or the
// verifier's when the signal carries none.
func (v *Verifier) VersionOf(s models.Signal) int {
	if s.HashVersion == 0 {
		return v.version
	}
	return s.HashVersion
}

// Hash computes the digest for an explicit canonical version.
func Hash(s models.Signal, version int) (string, error) {
	for _, f := range []float64{s.EntryPrice, s.StopLoss, s.TakeProfit, s.Confidence} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", ErrNonFinite
		}
	}
	if s.Timestamp.IsZero() {
		return "", ErrMissingTimestamp
	}
	b, err := Canonical(s, version)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Seal returns a copy of s stamped with the verifier's version and its hash.
func (v *Verifier) Seal(s models.Signal) (models.Signal, error) {
	s.HashVersion = v.version
	s.IntegrityHash = ""
	h, err := Hash(s, s.HashVersion)
	if err != nil {
		return models.Signal{}, err
	}
	s.IntegrityHash = h
	return s, nil
}

// Verify recomputes the hash from the signal's own fields and compares it with the stored one.
// A mismatch is reported in the result, never corrected.
func (v *Verifier) Verify(s models.Signal) models.VerificationResult {
	res := models.VerificationResult{SignalID: s.ID, VerifiedAt: v.now().UTC()}

	version := v.VersionOf(s)
	switch {
	case s.IntegrityHash == "":
		res.Error = ReasonMissingHash
	case Fields(version) == nil:
		res.Error = ReasonUnsupportedVersion
	default:
		h, err := Hash(s, version)
		switch {
		case err != nil:
			res.Error = ReasonInvalidFields
		case subtle.ConstantTimeCompare([]byte(h), []byte(s.IntegrityHash)) != 1:
			res.Error = ReasonMismatch
		default:
			res.IsValid = true
		}
	}

	v.metrics.RecordVerification(res.IsValid)
	return res
}

// VerifyMany verifies every signal; result i belongs to signals[i].
func (v *Verifier) VerifyMany(signals []models.Signal) []models.VerificationResult {
	out := make([]models.VerificationResult, len(signals))
	for i := range signals {
		out[i] = v.Verify(signals[i])
	}
	return out
}
