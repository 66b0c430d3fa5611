package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/mindquiz/domain"
	"github.com/google/uuid"
)

type NaverConfig struct {
	// APIBaseURL is scheme and host, e.g. https://dev.apis.naver.com.
	APIBaseURL    string
	ServiceDomain string
	PartnerID     string
	ClientID      string
	ClientSecret  string
	ChainID       string
	// CancelURL differs per environment and has no default.
	CancelURL string
}

type Naver struct {
	cfg    NaverConfig
	client *http.Client
	newKey func() string
}

func NewNaver(cfg NaverConfig, client *http.Client) *Naver {
	return &Naver{
		cfg:    cfg,
		client: client,
		newKey: uuid.NewString,
	}
}

func (n *Naver) Name() domain.Provider {
	return domain.ProviderNaver
}

func (n *Naver) paymentsURL(path string) string {
	return fmt.Sprintf("%s/%s/naverpay/payments/v2/%s", n.cfg.APIBaseURL, n.cfg.PartnerID, path)
}

func (n *Naver) headers(contentType string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	h.Set("X-Naver-Client-Id", n.cfg.ClientID)
	h.Set("X-Naver-Client-Secret", n.cfg.ClientSecret)
	h.Set("X-NaverPay-Chain-Id", n.cfg.ChainID)
	h.Set("X-NaverPay-Idempotency-Key", n.newKey())
	return h
}

type naverReserveResponse struct {
	Body struct {
		ReserveID string `json:"reserveId"`
	} `json:"body"`
}

func (n *Naver) Ready(ctx context.Context, req ReadyRequest) (*ReadyResult, error) {
	payload, err := json.Marshal(map[string]any{
		"merchantPayKey":   req.OrderID,
		"merchantUserKey":  req.OrderID,
		"productName":      req.ItemName,
		"totalPayAmount":   req.Amount,
		"taxScopeAmount":   req.Amount,
		"taxExScopeAmount": 0,
		"returnUrl":        req.ApproveURL,
	})
	if err != nil {
		return nil, fmt.Errorf("encode naver reserve: %w", err)
	}

	data, err := post(ctx, n.client, domain.ProviderNaver, n.paymentsURL("reserve"), n.headers("application/json"), payload)
	if err != nil {
		return nil, err
	}

	var resp naverReserveResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode naver reserve response: %w", err)
	}
	return &ReadyResult{
		Handle:      resp.Body.ReserveID,
		RedirectURL: fmt.Sprintf("https://%s/payments/%s", n.cfg.ServiceDomain, resp.Body.ReserveID),
	}, nil
}

type naverApplyResponse struct {
	PaymentInfo struct {
		CardAmount int64 `json:"cardAmount"`
	} `json:"paymentInfo"`
}

func (n *Naver) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	form := url.Values{"paymentId": {req.PaymentID}}

	data, err := post(ctx, n.client, domain.ProviderNaver, n.paymentsURL("apply/payment"),
		n.headers("application/x-www-form-urlencoded"), []byte(form.Encode()))
	if err != nil {
		return nil, err
	}

	var resp naverApplyResponse
	_ = json.Unmarshal(data, &resp)
	return &ApproveResult{Receipt: asJSON(data), Amount: resp.PaymentInfo.CardAmount}, nil
}

func (n *Naver) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if n.cfg.CancelURL == "" {
		return nil, fmt.Errorf("%w: NAVERPAY_CANCEL_URL missing", ErrNotConfigured)
	}

	payload, err := json.Marshal(map[string]any{
		"orderId": req.OrderID,
		"tid":     req.Handle,
		"amount":  req.Amount,
		"reason":  req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("encode naver cancel: %w", err)
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Naver-Client-Id", n.cfg.ClientID)
	h.Set("X-Naver-Client-Secret", n.cfg.ClientSecret)

	data, err := post(ctx, n.client, domain.ProviderNaver, n.cfg.CancelURL, h, payload)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Payload: asJSON(data)}, nil
}
