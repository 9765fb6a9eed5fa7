package integrity

import (
	"fmt"
	"testing"
	"time"

	"SignalGuard/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSignal() models.Signal {
	return models.Signal{
		ID:          "01HZX3J8Q4W9K2M7N5P6R0S1T2",
		Symbol:      "AAPL",
		Action:      models.ActionBuy,
		EntryPrice:  105.25,
		StopLoss:    101.1,
		TakeProfit:  112,
		Confidence:  72.5,
		Timestamp:   time.Date(2026, 1, 15, 14, 30, 0, 123000000, time.UTC),
		HashVersion: 1,
	}
}

func TestCanonicalEncoding(t *testing.T) {
	b, err := Canonical(sampleSignal(), 1)
	require.NoError(t, err)
	assert.Equal(t,
		`{"action":"BUY","confidence":"72.5","entry_price":"105.25","hash_version":"1","id":"01HZX3J8Q4W9K2M7N5P6R0S1T2","stop_loss":"101.1","symbol":"AAPL","take_profit":"112","timestamp":"2026-01-15T14:30:00.123Z"}`,
		string(b))
}

func TestCanonicalNormalizesTimezone(t *testing.T) {
	s := sampleSignal()
	local := s
	local.Timestamp = s.Timestamp.In(time.FixedZone("EST", -5*3600))

	a, err := Canonical(s, 1)
	require.NoError(t, err)
	b, err := Canonical(local, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalDoesNotEscapeHTML(t *testing.T) {
	s := sampleSignal()
	s.Symbol = "S&P<500>"
	b, err := Canonical(s, 1)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"symbol":"S&P<500>"`)
}

func TestGenerateHashIsStable(t *testing.T) {
	v := NewVerifier()
	h1, err := v.GenerateHash(sampleSignal())
	require.NoError(t, err)
	h2, err := v.GenerateHash(sampleSignal())
	require.NoError(t, err)

	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
	// pinned so a change in encoding shows up as a failing test, not silent drift
	assert.Equal(t, "0aad218baad7d7b660f435581fe5dc55801a390ba4cac43ae604ac8560cad98e", h1)
}

func TestGenerateHashIgnoresStoredHash(t *testing.T) {
	v := NewVerifier()
	s := sampleSignal()
	h1, err := v.GenerateHash(s)
	require.NoError(t, err)
	s.IntegrityHash = "deadbeef"
	h2, err := v.GenerateHash(s)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestEveryCanonicalFieldChangesHash(t *testing.T) {
	v := NewVerifier()
	base, err := v.GenerateHash(sampleSignal())
	require.NoError(t, err)

	mutations := map[string]func(*models.Signal){
		"id":          func(s *models.Signal) { s.ID = "other" },
		"symbol":      func(s *models.Signal) { s.Symbol = "MSFT" },
		"action":      func(s *models.Signal) { s.Action = models.ActionSell },
		"entry_price": func(s *models.Signal) { s.EntryPrice = 105.26 },
		"stop_loss":   func(s *models.Signal) { s.StopLoss = 101 },
		"take_profit": func(s *models.Signal) { s.TakeProfit = 112.01 },
		"confidence":  func(s *models.Signal) { s.Confidence = 72.4 },
		"timestamp":   func(s *models.Signal) { s.Timestamp = s.Timestamp.Add(time.Nanosecond) },
	}
	require.Len(t, mutations, len(Fields(1))-1, "every field but hash_version is mutated")

	for field, mutate := range mutations {
		s := sampleSignal()
		mutate(&s)
		h, err := v.GenerateHash(s)
		require.NoError(t, err)
		assert.NotEqual(t, base, h, field)
	}
}

func TestGenerateHashRejectsUnhashableSignals(t *testing.T) {
	v := NewVerifier()

	s := sampleSignal()
	s.Timestamp = time.Time{}
	_, err := v.GenerateHash(s)
	assert.ErrorIs(t, err, ErrMissingTimestamp)

	s = sampleSignal()
	s.HashVersion = 9
	_, err = v.GenerateHash(s)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestVerifyUntouchedSignal(t *testing.T) {
	v := NewVerifier()
	sealed, err := v.Seal(sampleSignal())
	require.NoError(t, err)

	res := v.Verify(sealed)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Error)
	assert.Equal(t, sealed.ID, res.SignalID)
	assert.False(t, res.VerifiedAt.IsZero())
}

func TestVerifyAcceptsGeneratedHashWithoutVersion(t *testing.T) {
	v := NewVerifier()
	s := sampleSignal()
	s.HashVersion = 0

	h, err := v.GenerateHash(s)
	require.NoError(t, err)
	s.IntegrityHash = h

	res := v.Verify(s)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Error)

	s.TakeProfit = 113
	res = v.Verify(s)
	assert.False(t, res.IsValid)
	assert.Equal(t, ReasonMismatch, res.Error)
}

func TestVerifyDetectsStopLossTampering(t *testing.T) {
	v := NewVerifier()
	sealed, err := v.Seal(sampleSignal())
	require.NoError(t, err)

	sealed.StopLoss = 95.0
	res := v.Verify(sealed)
	assert.False(t, res.IsValid)
	assert.Equal(t, "hash mismatch", res.Error)
}

func TestVerifyReportsMissingHashAndUnknownVersion(t *testing.T) {
	v := NewVerifier()

	res := v.Verify(sampleSignal())
	assert.False(t, res.IsValid)
	assert.Equal(t, ReasonMissingHash, res.Error)

	sealed, err := v.Seal(sampleSignal())
	require.NoError(t, err)
	sealed.HashVersion = 2
	res = v.Verify(sealed)
	assert.False(t, res.IsValid)
	assert.Equal(t, ReasonUnsupportedVersion, res.Error)
}

func TestSealDoesNotMutateInput(t *testing.T) {
	v := NewVerifier()
	in := sampleSignal()
	in.HashVersion = 0
	sealed, err := v.Seal(in)
	require.NoError(t, err)

	assert.Empty(t, in.IntegrityHash)
	assert.Zero(t, in.HashVersion)
	assert.Equal(t, 1, sealed.HashVersion)
	assert.Len(t, sealed.IntegrityHash, 64)
}

func TestVerifyManyReportsEachSignalAtItsIndex(t *testing.T) {
	v := NewVerifier()
	signals := make([]models.Signal, 10)
	for i := range signals {
		s := sampleSignal()
		s.ID = fmt.Sprintf("sig-%d", i)
		sealed, err := v.Seal(s)
		require.NoError(t, err)
		signals[i] = sealed
	}
	signals[4].TakeProfit = 500

	results := v.VerifyMany(signals)
	require.Len(t, results, 10)

	invalid := 0
	for i, r := range results {
		assert.Equal(t, signals[i].ID, r.SignalID)
		if !r.IsValid {
			invalid++
			assert.Equal(t, 4, i)
			assert.Equal(t, ReasonMismatch, r.Error)
		}
	}
	assert.Equal(t, 1, invalid)
}
