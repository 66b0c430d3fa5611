package nonce

import (
	"context"
	"errors"
	"time"
)

// Store records which nonces have already been used.
type Store interface {
	// Claim marks nonce as used. It reports false when the nonce was claimed
	// before; the first caller to claim a nonce wins.
	Claim(ctx context.Context, nonce string) (bool, error)

	// Sweep forgets claims older than the given age and returns how many were removed.
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// Retention is how long a claim is kept before sweeping.
const Retention = time.Hour

var ErrInvalidNonce = errors.New("nonce must be 1-64 lowercase hex characters")

// Valid reports whether n is safe to use as a storage key.
func Valid(n string) bool {
	if len(n) == 0 || len(n) > 64 {
		return false
	}
	for i := 0; i < len(n); i++ {
		c := n[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
