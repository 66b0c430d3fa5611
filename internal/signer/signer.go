package signer

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"github.com/fjod/mindquiz/internal/nonce"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMissingFields     = errors.New("ts, nonce and sig are required")
	ErrMalformedNonce    = errors.New("malformed nonce")
	ErrExpired           = errors.New("order signature expired")
	ErrSignatureMismatch = errors.New("order signature mismatch")
	ErrReplay            = errors.New("nonce already used")
)

const (
	DefaultTTL = 300 * time.Second

	// SweepProbability is the chance that a successful verification
	// triggers a background sweep of old nonces.
	SweepProbability = 0.01

	sigLen = 32
)

// Token binds an order to a timestamp and a single-use nonce.
type Token struct {
	OrderID  string `json:"orderId"`
	ItemName string `json:"itemName"`
	Amount   int64  `json:"amount"`
	TS       int64  `json:"ts"`
	Nonce    string `json:"nonce"`
	Sig      string `json:"sig"`
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	nonces nonce.Store
	logger *slog.Logger

	now    func() time.Time
	chance func() float64
	sfg    singleflight.Group
}

func New(secret string, ttl time.Duration, nonces nonce.Store, logger *slog.Logger) *Signer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		nonces: nonces,
		logger: logger,
		now:    time.Now,
		chance: mrand.Float64,
	}
}

// Sign returns the first 32 hex characters of the HMAC-SHA256 over
// "orderId|itemName|amount|ts|nonce".
func (s *Signer) Sign(orderID, itemName string, amount, ts int64, nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d|%d|%s", orderID, itemName, amount, ts, nonce)
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}

// Issue signs an order with the current time and a fresh random nonce.
func (s *Signer) Issue(orderID, itemName string, amount int64) (Token, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("generate nonce: %w", err)
	}
	t := Token{
		OrderID:  orderID,
		ItemName: itemName,
		Amount:   amount,
		TS:       s.now().Unix(),
		Nonce:    hex.EncodeToString(buf),
	}
	t.Sig = s.Sign(t.OrderID, t.ItemName, t.Amount, t.TS, t.Nonce)
	return t, nil
}

// Verify checks freshness and the signature, then claims the nonce. A token
// verifies at most once.
func (s *Signer) Verify(ctx context.Context, t Token) error {
	if t.TS == 0 || t.Nonce == "" || t.Sig == "" {
		return ErrMissingFields
	}
	if !nonce.Valid(t.Nonce) {
		return ErrMalformedNonce
	}

	age := s.now().Unix() - t.TS
	if age < 0 {
		age = -age
	}
	if age > int64(s.ttl/time.Second) {
		return ErrExpired
	}

	expected := s.Sign(t.OrderID, t.ItemName, t.Amount, t.TS, t.Nonce)
	if !hmac.Equal([]byte(expected), []byte(t.Sig)) {
		return ErrSignatureMismatch
	}

	fresh, err := s.nonces.Claim(ctx, t.Nonce)
	if err != nil {
		s.logger.Error("nonce write error", "error", err)
		fresh = true
	}
	if !fresh {
		return ErrReplay
	}

	if s.chance() < SweepProbability {
		go s.sweep()
	}
	return nil
}

func (s *Signer) sweep() {
	_, _, _ = s.sfg.Do("sweep", func() (interface{}, error) {
		n, err := s.nonces.Sweep(context.Background(), nonce.Retention)
		if err != nil {
			s.logger.Error("nonce cleanup error", "error", err)
			return nil, err
		}
		if n > 0 {
			s.logger.Info("cleaned old nonces", "count", n)
		}
		return nil, nil
	})
}
