package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/mindquiz/domain"
)

// Provider talks to one payment gateway.
type Provider interface {
	Name() domain.Provider
	Ready(ctx context.Context, req ReadyRequest) (*ReadyResult, error)
	Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error)
}

type ReadyRequest struct {
	OrderID  string
	ItemName string
	Amount   int64
	// ApproveURL is where the provider returns the buyer after payment.
	ApproveURL string
	CancelURL  string
	FailURL    string
}

type ReadyResult struct {
	// Handle is the provider's id for the payment: a Kakao tid or a Naver reserveId.
	Handle      string
	RedirectURL string
}

type ApproveRequest struct {
	OrderID   string
	Handle    string
	PGToken   string
	PaymentID string
}

type ApproveResult struct {
	Receipt json.RawMessage
	// Amount as reported by the provider, zero when absent.
	Amount int64
}

type CancelRequest struct {
	OrderID string
	Handle  string
	Amount  int64
	Reason  string
}

type CancelResult struct {
	Payload json.RawMessage
}

var (
	ErrProviderNotFound = errors.New("payment provider not found")
	ErrNotConfigured    = errors.New("payment provider not configured")
)

// Error is a non-2xx provider response. Body is passed through to callers
// unchanged.
type Error struct {
	Provider   domain.Provider
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s gateway returned %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Payload returns the body as JSON, wrapping non-JSON text as {"raw": body}.
func (e *Error) Payload() json.RawMessage {
	return asJSON([]byte(e.Body))
}

type Manager struct {
	providers map[domain.Provider]Provider
}

func NewManager(providers ...Provider) *Manager {
	m := &Manager{providers: make(map[domain.Provider]Provider)}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

func (m *Manager) Get(name domain.Provider) (Provider, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

func asJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(b)})
	return wrapped
}
