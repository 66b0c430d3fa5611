package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fjod/mindquiz/domain"
)

type KakaoConfig struct {
	BaseURL   string
	CID       string
	SecretKey string
}

type Kakao struct {
	cfg    KakaoConfig
	client *http.Client
}

func NewKakao(cfg KakaoConfig, client *http.Client) *Kakao {
	return &Kakao{cfg: cfg, client: client}
}

func (k *Kakao) Name() domain.Provider {
	return domain.ProviderKakao
}

type kakaoReadyResponse struct {
	TID                   string `json:"tid"`
	NextRedirectMobileURL string `json:"next_redirect_mobile_url"`
	NextRedirectPCURL     string `json:"next_redirect_pc_url"`
	NextRedirectAppURL    string `json:"next_redirect_app_url"`
}

func (k *Kakao) Ready(ctx context.Context, req ReadyRequest) (*ReadyResult, error) {
	payload := map[string]any{
		"cid":              k.cfg.CID,
		"partner_order_id": req.OrderID,
		"partner_user_id":  req.OrderID,
		"item_name":        req.ItemName,
		"quantity":         1,
		"total_amount":     req.Amount,
		"tax_free_amount":  0,
		"approval_url":     req.ApproveURL,
		"cancel_url":       req.CancelURL,
		"fail_url":         req.FailURL,
	}

	data, err := k.call(ctx, "ready", payload)
	if err != nil {
		return nil, err
	}

	var resp kakaoReadyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode kakao ready response: %w", err)
	}

	redirect := resp.NextRedirectMobileURL
	if redirect == "" {
		redirect = resp.NextRedirectPCURL
	}
	if redirect == "" {
		redirect = resp.NextRedirectAppURL
	}
	return &ReadyResult{Handle: resp.TID, RedirectURL: redirect}, nil
}

type kakaoApproveResponse struct {
	Amount struct {
		Total int64 `json:"total"`
	} `json:"amount"`
}

func (k *Kakao) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	payload := map[string]any{
		"cid":              k.cfg.CID,
		"tid":              req.Handle,
		"partner_order_id": req.OrderID,
		"partner_user_id":  req.OrderID,
		"pg_token":         req.PGToken,
	}

	data, err := k.call(ctx, "approve", payload)
	if err != nil {
		return nil, err
	}

	var resp kakaoApproveResponse
	// receipt is kept even if the amount block is missing
	_ = json.Unmarshal(data, &resp)
	return &ApproveResult{Receipt: asJSON(data), Amount: resp.Amount.Total}, nil
}

func (k *Kakao) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	payload := map[string]any{
		"cid":                    k.cfg.CID,
		"tid":                    req.Handle,
		"cancel_amount":          req.Amount,
		"cancel_tax_free_amount": 0,
		"cancel_vat_amount":      0,
		"payload": map[string]string{
			"orderId": req.OrderID,
			"reason":  req.Reason,
		},
	}

	data, err := k.call(ctx, "cancel", payload)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Payload: asJSON(data)}, nil
}

func (k *Kakao) call(ctx context.Context, op string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode kakao %s: %w", op, err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "SECRET_KEY "+k.cfg.SecretKey)
	headers.Set("Content-Type", "application/json")

	return post(ctx, k.client, domain.ProviderKakao, k.cfg.BaseURL+"/online/v1/payment/"+op, headers, body)
}
