package signer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memNonces is a map-backed nonce store for tests.
type memNonces struct {
	mu      sync.Mutex
	seen    map[string]bool
	sweeps  int
	claimFn func(string) (bool, error)
}

func newMemNonces() *memNonces {
	return &memNonces{seen: make(map[string]bool)}
}

func (m *memNonces) Claim(_ context.Context, n string) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[n] {
		return false, nil
	}
	m.seen[n] = true
	return true, nil
}

func (m *memNonces) Sweep(context.Context, time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
	return 0, nil
}

func (m *memNonces) sweepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSigner(nonces *memNonces, now time.Time) *Signer {
	s := New("test_secret", DefaultTTL, nonces, testLogger)
	s.now = func() time.Time { return now }
	s.chance = func() float64 { return 1 }
	return s
}

func TestSign_Deterministic(t *testing.T) {
	s := newTestSigner(newMemNonces(), time.Unix(1700000000, 0))

	a := s.Sign("ord-1", "Report", 4900, 1700000000, "abcd")
	b := s.Sign("ord-1", "Report", 4900, 1700000000, "abcd")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, s.Sign("ord-1", "Report", 4901, 1700000000, "abcd"))
}

func TestVerify_AcceptsOnce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := newTestSigner(newMemNonces(), now)

	tok, err := s.Issue("ord-1", "Report", 4900)
	require.NoError(t, err)
	assert.Equal(t, now.Unix(), tok.TS)
	assert.Len(t, tok.Nonce, 16)

	require.NoError(t, s.Verify(context.Background(), tok))
	assert.ErrorIs(t, s.Verify(context.Background(), tok), ErrReplay)
}

func TestVerify_TTLBoundary(t *testing.T) {
	base := time.Unix(1700000000, 0)
	ttl := int64(DefaultTTL / time.Second)

	tests := []struct {
		name    string
		offset  int64
		wantErr error
	}{
		{"one second inside", ttl - 1, nil},
		{"exactly at ttl", ttl, nil},
		{"one second past", ttl + 1, ErrExpired},
		{"future within ttl", -ttl, nil},
		{"future past ttl", -(ttl + 1), ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSigner(newMemNonces(), base.Add(time.Duration(tt.offset)*time.Second))
			tok := Token{OrderID: "ord-1", ItemName: "Report", Amount: 4900, TS: base.Unix(), Nonce: "00ff"}
			tok.Sig = s.Sign(tok.OrderID, tok.ItemName, tok.Amount, tok.TS, tok.Nonce)

			err := s.Verify(context.Background(), tok)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerify_ExtremeTimestampExpires(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := newTestSigner(newMemNonces(), now)

	// large enough to wrap when scaled to nanoseconds
	for _, age := range []int64{18446744074, 1 << 40} {
		tok := Token{OrderID: "ord-1", ItemName: "Report", Amount: 4900, TS: now.Unix() - age, Nonce: "00ff"}
		tok.Sig = s.Sign(tok.OrderID, tok.ItemName, tok.Amount, tok.TS, tok.Nonce)

		assert.ErrorIs(t, s.Verify(context.Background(), tok), ErrExpired)
	}
}

func TestVerify_MissingFields(t *testing.T) {
	s := newTestSigner(newMemNonces(), time.Unix(1700000000, 0))
	valid, err := s.Issue("ord-1", "Report", 4900)
	require.NoError(t, err)

	noTS := valid
	noTS.TS = 0
	noNonce := valid
	noNonce.Nonce = ""
	noSig := valid
	noSig.Sig = ""

	for _, tok := range []Token{noTS, noNonce, noSig} {
		assert.ErrorIs(t, s.Verify(context.Background(), tok), ErrMissingFields)
	}
}

func TestVerify_TamperedFields(t *testing.T) {
	s := newTestSigner(newMemNonces(), time.Unix(1700000000, 0))
	valid, err := s.Issue("ord-1", "Report", 4900)
	require.NoError(t, err)

	amount := valid
	amount.Amount = 100
	item := valid
	item.ItemName = "Premium"
	order := valid
	order.OrderID = "ord-2"

	for _, tok := range []Token{amount, item, order} {
		assert.ErrorIs(t, s.Verify(context.Background(), tok), ErrSignatureMismatch)
	}

	// the untampered token still verifies: failed checks never claim the nonce
	assert.NoError(t, s.Verify(context.Background(), valid))
}

func TestVerify_MalformedNonce(t *testing.T) {
	s := newTestSigner(newMemNonces(), time.Unix(1700000000, 0))
	tok := Token{OrderID: "ord-1", ItemName: "Report", Amount: 4900, TS: 1700000000, Nonce: "../../etc/passwd"}
	tok.Sig = s.Sign(tok.OrderID, tok.ItemName, tok.Amount, tok.TS, tok.Nonce)

	assert.ErrorIs(t, s.Verify(context.Background(), tok), ErrMalformedNonce)
}

func TestVerify_StoreErrorTreatedAsFresh(t *testing.T) {
	nonces := newMemNonces()
	nonces.claimFn = func(string) (bool, error) { return false, errors.New("disk full") }
	s := newTestSigner(nonces, time.Unix(1700000000, 0))

	tok, err := s.Issue("ord-1", "Report", 4900)
	require.NoError(t, err)
	assert.NoError(t, s.Verify(context.Background(), tok))
}

func TestVerify_TriggersSweep(t *testing.T) {
	nonces := newMemNonces()
	s := newTestSigner(nonces, time.Unix(1700000000, 0))
	s.chance = func() float64 { return 0 }

	tok, err := s.Issue("ord-1", "Report", 4900)
	require.NoError(t, err)
	require.NoError(t, s.Verify(context.Background(), tok))

	assert.Eventually(t, func() bool { return nonces.sweepCount() == 1 }, time.Second, 10*time.Millisecond)
}
