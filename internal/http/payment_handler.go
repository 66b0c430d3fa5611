package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/service"
	"github.com/fjod/mindquiz/internal/signer"
)

// RefCookie carries the referrer id from a shared result page to checkout.
const RefCookie = "mq_ref"

// Payments is the part of the payment service the handlers call.
type Payments interface {
	SignOrder(ctx context.Context, orderID, itemName string, amount int64) (signer.Token, error)
	Ready(ctx context.Context, provider domain.Provider, in service.ReadyInput) (*service.ReadyOutput, error)
	Approve(ctx context.Context, provider domain.Provider, in service.ApproveInput) (string, error)
	ReleaseForOrder(ctx context.Context, orderID, fallbackCode string) error
	AdminCancel(ctx context.Context, provider domain.Provider, in service.AdminCancelInput) (*service.AdminCancelResult, error)
	IssueCoupon(ctx context.Context, orderID, exp string) (*service.IssuedCoupon, error)
}

type PaymentHandler struct {
	payments Payments
	timeout  time.Duration
}

func NewPaymentHandler(payments Payments, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		timeout:  timeout,
	}
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if v, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*n = flexInt(v)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*n = flexInt(f)
	return nil
}

// flexBool accepts true, 1, "1" and "true".
type flexBool bool

func (v *flexBool) UnmarshalJSON(b []byte) error {
	switch string(bytes.Trim(b, `"`)) {
	case "1", "true":
		*v = true
	default:
		*v = false
	}
	return nil
}

type SignRequestDTO struct {
	OrderID  string  `json:"orderId"`
	ItemName string  `json:"itemName"`
	Amount   flexInt `json:"amount"`
}

type SignResponseDTO struct {
	Sig   string `json:"sig"`
	TS    int64  `json:"ts"`
	Nonce string `json:"nonce"`
}

type ReadyRequestDTO struct {
	OrderID    string  `json:"orderId"`
	ItemName   string  `json:"itemName"`
	Amount     flexInt `json:"amount"`
	TS         flexInt `json:"ts"`
	Nonce      string  `json:"nonce"`
	Sig        string  `json:"sig"`
	CouponCode string  `json:"couponCode"`
	SKUType    string  `json:"skuType"`
}

type AdminCancelRequestDTO struct {
	OrderID string   `json:"orderId"`
	Reason  string   `json:"reason"`
	Reissue flexBool `json:"reissue"`
}

func (h *PaymentHandler) SignOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_FIELDS")
		return
	}

	tok, err := h.payments.SignOrder(ctx, req.OrderID, req.ItemName, int64(req.Amount))
	if errors.Is(err, service.ErrMissingFields) {
		respondError(w, http.StatusBadRequest, "MISSING_FIELDS")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, SignResponseDTO{Sig: tok.Sig, TS: tok.TS, Nonce: tok.Nonce})
}

func (h *PaymentHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	provider, ok := domain.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	var req ReadyRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := h.payments.Ready(ctx, provider, service.ReadyInput{
		Token: signer.Token{
			OrderID:  req.OrderID,
			ItemName: req.ItemName,
			Amount:   int64(req.Amount),
			TS:       int64(req.TS),
			Nonce:    req.Nonce,
			Sig:      req.Sig,
		},
		CouponCode: req.CouponCode,
		SKUType:    req.SKUType,
	})
	if err != nil {
		handleReadyError(w, err)
		return
	}

	handleKey := "tid"
	if provider == domain.ProviderNaver {
		handleKey = "reserveId"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"redirect_url": out.RedirectURL,
		handleKey:      out.Handle,
	})
}

// Approve is the provider redirect target. It always answers with a redirect
// unless local storage fails.
func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	provider, ok := domain.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown provider")
		return
	}

	q := r.URL.Query()
	in := service.ApproveInput{
		OrderID:    q.Get("orderId"),
		PGToken:    q.Get("pg_token"),
		PaymentID:  q.Get("paymentId"),
		ResultCode: q.Get("resultCode"),
		CouponCode: q.Get("coupon"),
	}
	if c, err := r.Cookie(RefCookie); err == nil {
		in.Referral = c.Value
	}

	target, err := h.payments.Approve(ctx, provider, in)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *PaymentHandler) IssueCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	issued, err := h.payments.IssueCoupon(ctx, q.Get("orderId"), q.Get("exp"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, issued)
}

func (h *PaymentHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AdminCancelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	provider, ok := domain.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		handleCancelError(w, service.ErrUnknownProvider)
		return
	}

	res, err := h.payments.AdminCancel(ctx, provider, service.AdminCancelInput{
		OrderID: req.OrderID,
		Reason:  req.Reason,
		Reissue: bool(req.Reissue),
	})
	if err != nil {
		handleCancelError(w, err)
		return
	}

	body := map[string]any{
		"ok":       true,
		"provider": res.Provider.String(),
		"orderId":  res.OrderID,
		"payload":  json.RawMessage(res.Payload),
	}
	if res.ReissuedCode != "" {
		body["reissuedCode"] = res.ReissuedCode
	}
	if res.ReissueError != "" {
		body["reissueError"] = res.ReissueError
	}
	respondJSON(w, http.StatusOK, body)
}

// CheckoutFailed and CheckoutCanceled release whatever coupon the order
// still holds before rendering the page.
func (h *PaymentHandler) CheckoutFailed(w http.ResponseWriter, r *http.Request) {
	h.checkoutPage(w, r, failedPage, r.URL.Query().Get("msg"))
}

func (h *PaymentHandler) CheckoutCanceled(w http.ResponseWriter, r *http.Request) {
	h.checkoutPage(w, r, canceledPage, r.URL.Query().Get("code"))
}

func (h *PaymentHandler) checkoutPage(w http.ResponseWriter, r *http.Request, page pageKind, detail string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	orderID := q.Get("orderId")
	if err := h.payments.ReleaseForOrder(ctx, orderID, q.Get("coupon")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	renderPage(w, page, pageData{OrderID: orderID, Detail: detail})
}

func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	renderPage(w, completePage, pageData{OrderID: r.URL.Query().Get("orderId")})
}
