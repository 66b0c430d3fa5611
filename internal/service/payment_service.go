package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/alerts"
	"github.com/fjod/mindquiz/internal/gateway"
	"github.com/fjod/mindquiz/internal/metrics"
	"github.com/fjod/mindquiz/internal/pricing"
	"github.com/fjod/mindquiz/internal/repository"
	"github.com/fjod/mindquiz/internal/signer"
)

// OrderSigner issues and checks order tokens.
type OrderSigner interface {
	Issue(orderID, itemName string, amount int64) (signer.Token, error)
	Verify(ctx context.Context, t signer.Token) error
}

type Config struct {
	// SiteURL is the public origin used in provider callback URLs.
	SiteURL         string
	PaymentsEnabled bool
	// RefundReissue makes every admin cancel reissue the coupon.
	RefundReissue    bool
	ApprovalRedirect map[domain.Provider]string
}

type PaymentService struct {
	cfg      Config
	signer   OrderSigner
	coupons  repository.CouponRepoInterface
	orders   repository.OrderRepoInterface
	events   repository.EventLogInterface
	catalog  *pricing.Catalog
	gateways *gateway.Manager
	metrics  *metrics.Metrics
	notifier alerts.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewPaymentService(
	cfg Config,
	signer OrderSigner,
	coupons repository.CouponRepoInterface,
	orders repository.OrderRepoInterface,
	events repository.EventLogInterface,
	catalog *pricing.Catalog,
	gateways *gateway.Manager,
	m *metrics.Metrics,
	notifier alerts.Notifier,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		signer:   signer,
		coupons:  coupons,
		orders:   orders,
		events:   events,
		catalog:  catalog,
		gateways: gateways,
		metrics:  m,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

var displayName = map[domain.Provider]string{
	domain.ProviderKakao: "KakaoPay",
	domain.ProviderNaver: "NaverPay",
}

func (s *PaymentService) SignOrder(_ context.Context, orderID, itemName string, amount int64) (signer.Token, error) {
	if orderID == "" || itemName == "" || amount == 0 {
		return signer.Token{}, ErrMissingFields
	}
	tok, err := s.signer.Issue(orderID, itemName, amount)
	if err != nil {
		return signer.Token{}, err
	}
	s.metrics.Inc(metrics.OrderSignCalls)
	return tok, nil
}

type ReadyInput struct {
	Token      signer.Token
	CouponCode string
	SKUType    string
}

type ReadyOutput struct {
	RedirectURL string
	Handle      string
}

// Ready verifies the order token, prices the order on the server, holds the
// coupon and opens a payment session with the provider.
func (s *PaymentService) Ready(ctx context.Context, provider domain.Provider, in ReadyInput) (*ReadyOutput, error) {
	if !s.cfg.PaymentsEnabled {
		return nil, ErrPaymentsDisabled
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}

	if err := s.signer.Verify(ctx, in.Token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	s.metrics.Inc(metrics.ReadyCalls)

	orderID := in.Token.OrderID
	var coupon *domain.Coupon
	if in.CouponCode != "" {
		coupon, err = s.coupons.Get(ctx, in.CouponCode)
		if err != nil {
			return nil, err
		}
		if coupon == nil {
			return nil, fmt.Errorf("%w: NOT_FOUND", ErrInvalidCoupon)
		}
	}

	amount := s.catalog.ComputeFinalAmount(in.SKUType, coupon)

	if coupon != nil {
		if err := s.coupons.Hold(ctx, coupon.Code, orderID); err != nil {
			if reason := repository.Reason(err); reason != "" {
				return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, reason)
			}
			return nil, err
		}
	}

	res, err := gw.Ready(ctx, gateway.ReadyRequest{
		OrderID:    orderID,
		ItemName:   in.Token.ItemName,
		Amount:     amount,
		ApproveURL: s.siteURL("/api/payment/"+provider.String()+"/approve", orderID, in.CouponCode),
		CancelURL:  s.siteURL("/checkout/canceled", orderID, in.CouponCode),
		FailURL:    s.siteURL("/checkout/failed", orderID, in.CouponCode),
	})
	if err != nil {
		s.releaseCoupon(ctx, in.CouponCode)
		return nil, err
	}

	rec := domain.OrderRecord{
		OrderID:    orderID,
		Provider:   provider,
		Amount:     amount,
		SKUType:    in.SKUType,
		ItemName:   in.Token.ItemName,
		CouponCode: in.CouponCode,
	}
	if provider == domain.ProviderNaver {
		rec.Stage = domain.StageReserved
		rec.ReserveID = res.Handle
	} else {
		rec.Stage = domain.StageReady
		rec.TID = res.Handle
	}
	if err := s.orders.Save(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Info("payment ready", "provider", provider, "orderId", orderID, "amount", amount)
	return &ReadyOutput{RedirectURL: res.RedirectURL, Handle: res.Handle}, nil
}

type ApproveInput struct {
	OrderID    string
	PGToken    string
	PaymentID  string
	ResultCode string
	// CouponCode from the callback URL, used only when the order is unknown.
	CouponCode string
	// Referral is the mq_ref cookie value, empty when absent.
	Referral string
}

// Approve handles the provider redirect and returns where to send the buyer.
// Provider failures end in a redirect; only local storage errors are returned.
func (s *PaymentService) Approve(ctx context.Context, provider domain.Provider, in ApproveInput) (string, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return "", ErrUnknownProvider
	}

	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return "", err
	}
	couponCode := in.CouponCode
	if order != nil {
		couponCode = order.CouponCode
	}

	if provider == domain.ProviderNaver && in.ResultCode != "" && in.ResultCode != "Success" {
		s.releaseCoupon(ctx, couponCode)
		s.metrics.Inc(metrics.Cancels)
		return pageURL("/checkout/canceled", url.Values{"orderId": {in.OrderID}, "code": {in.ResultCode}}), nil
	}

	if order == nil || order.Provider != provider {
		s.approvalFailed(ctx, provider, in.OrderID, in.CouponCode, "ORDER_NOT_FOUND")
		return pageURL("/checkout/failed", url.Values{"orderId": {in.OrderID}, "msg": {"ORDER_NOT_FOUND"}}), nil
	}

	if order.Stage == domain.StagePaid {
		return s.completeURL(provider, order.OrderID), nil
	}

	handle := order.TID
	if provider == domain.ProviderNaver {
		handle = order.ReserveID
	}
	res, err := gw.Approve(ctx, gateway.ApproveRequest{
		OrderID:   order.OrderID,
		Handle:    handle,
		PGToken:   in.PGToken,
		PaymentID: in.PaymentID,
	})
	if err != nil {
		msg := err.Error()
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			msg = gwErr.Body
		}
		s.approvalFailed(ctx, provider, order.OrderID, couponCode, msg)
		return pageURL("/checkout/failed", url.Values{"orderId": {order.OrderID}, "msg": {msg}}), nil
	}

	err = s.orders.Update(ctx, order.OrderID, domain.OrderRecord{
		Provider:  provider,
		Stage:     domain.StagePaid,
		PaymentID: in.PaymentID,
		Receipt:   res.Receipt,
	})
	if err != nil {
		return "", err
	}

	if couponCode != "" {
		if err := s.coupons.Redeem(ctx, couponCode, order.OrderID); err != nil {
			s.logger.Error("coupon redeem failed", "code", couponCode, "orderId", order.OrderID, "error", err)
		}
	}

	s.metrics.Inc(metrics.Approvals)
	revenue := order.Amount
	if revenue == 0 {
		revenue = res.Amount
	}
	s.metrics.AddRevenue(revenue, provider)

	s.logEvent(ctx, repository.EventGA4, map[string]any{
		"name":     "purchase_complete",
		"orderId":  order.OrderID,
		"value":    order.Amount,
		"coupon":   nullable(couponCode),
		"provider": provider,
	})

	if in.Referral != "" {
		s.rewardReferral(ctx, order.OrderID, in.Referral)
	}

	s.logger.Info("payment approved", "provider", provider, "orderId", order.OrderID, "amount", revenue)
	return s.completeURL(provider, order.OrderID), nil
}

func (s *PaymentService) approvalFailed(ctx context.Context, provider domain.Provider, orderID, couponCode, msg string) {
	s.releaseCoupon(ctx, couponCode)
	s.metrics.Inc(metrics.Failures)
	s.logger.Warn("payment approval failed", "provider", provider, "orderId", orderID, "error", msg)

	coupon := couponCode
	if coupon == "" {
		coupon = "none"
	}
	s.notifier.Notify(ctx, displayName[provider]+" approval failed",
		alerts.Field{Key: "orderId", Value: orderID},
		alerts.Field{Key: "error", Value: msg},
		alerts.Field{Key: "coupon", Value: coupon},
	)
}

func (s *PaymentService) rewardReferral(ctx context.Context, orderID, ref string) {
	s.logEvent(ctx, repository.EventReferralConversion, map[string]any{"orderId": orderID, "ref": ref})

	code, err := s.coupons.Issue(ctx, domain.CouponDiscount10, "")
	if err != nil {
		s.logger.Error("referral reward issue failed", "orderId", orderID, "error", err)
		return
	}
	s.logEvent(ctx, repository.EventReferralReward, map[string]any{"orderId": orderID, "ref": ref, "code": code})
	s.metrics.Inc(metrics.ReferralRewards)
	s.notifier.Notify(ctx, "Referral reward issued",
		alerts.Field{Key: "orderId", Value: orderID},
		alerts.Field{Key: "ref", Value: ref},
		alerts.Field{Key: "code", Value: code},
	)
}

// ReleaseForOrder returns the coupon held by orderID to ISSUED. When the
// order is unknown, fallbackCode is released instead.
func (s *PaymentService) ReleaseForOrder(ctx context.Context, orderID, fallbackCode string) error {
	code := fallbackCode
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order != nil {
		code = order.CouponCode
	}
	s.releaseCoupon(ctx, code)
	return nil
}

type AdminCancelInput struct {
	OrderID string
	Reason  string
	Reissue bool
}

type AdminCancelResult struct {
	Provider     domain.Provider
	OrderID      string
	Payload      []byte
	ReissuedCode string
	// ReissueError is set when the refund succeeded but no new coupon
	// could be issued.
	ReissueError string
}

// AdminCancel refunds a payment. A provider failure returns the provider
// error and leaves the ledgers untouched.
func (s *PaymentService) AdminCancel(ctx context.Context, provider domain.Provider, in AdminCancelInput) (*AdminCancelResult, error) {
	if in.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, ErrUnknownProvider
	}
	if in.Reason == "" {
		in.Reason = "admin_cancel"
	}

	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Provider != provider {
		return nil, fmt.Errorf("%w: %s", ErrProviderMismatch, order.Provider)
	}

	handle := order.TID
	if provider == domain.ProviderNaver {
		handle = order.PaymentID
		if handle == "" {
			handle = order.ReserveID
		}
	}

	res, err := gw.Cancel(ctx, gateway.CancelRequest{
		OrderID: order.OrderID,
		Handle:  handle,
		Amount:  order.Amount,
		Reason:  in.Reason,
	})
	if err != nil {
		return nil, err
	}

	err = s.orders.Update(ctx, order.OrderID, domain.OrderRecord{
		Provider: provider,
		Stage:    domain.StageCanceled,
		Cancel:   &domain.CancelInfo{Reason: in.Reason, Payload: res.Payload},
	})
	if err != nil {
		return nil, err
	}

	reissue := in.Reissue || s.cfg.RefundReissue
	result := &AdminCancelResult{Provider: provider, OrderID: order.OrderID, Payload: res.Payload}

	if order.CouponCode != "" {
		if reissue {
			code, err := s.reissue(ctx, order.CouponCode)
			if err != nil {
				// the refund already went through; report the missing coupon
				s.logger.Error("coupon reissue failed", "orderId", order.OrderID, "code", order.CouponCode, "error", err)
				result.ReissueError = err.Error()
				s.notifier.Notify(ctx, "Coupon reissue failed",
					alerts.Field{Key: "orderId", Value: order.OrderID},
					alerts.Field{Key: "code", Value: order.CouponCode},
					alerts.Field{Key: "error", Value: err.Error()},
				)
			} else {
				result.ReissuedCode = code
				s.logEvent(ctx, repository.EventCouponReissued, map[string]any{"orderId": order.OrderID, "from": order.CouponCode, "to": code})
			}
		} else {
			s.releaseCoupon(ctx, order.CouponCode)
			s.logEvent(ctx, repository.EventCouponReleased, map[string]any{"orderId": order.OrderID, "code": order.CouponCode})
		}
	}

	reissued := "no"
	if result.ReissuedCode != "" {
		reissued = "yes"
	}
	s.notifier.Notify(ctx, "Payment canceled",
		alerts.Field{Key: "provider", Value: provider.String()},
		alerts.Field{Key: "orderId", Value: order.OrderID},
		alerts.Field{Key: "reason", Value: in.Reason},
		alerts.Field{Key: "amount", Value: strconv.FormatInt(order.Amount, 10)},
		alerts.Field{Key: "reissued", Value: reissued},
	)
	s.logger.Info("payment canceled", "provider", provider, "orderId", order.OrderID, "reissued", reissue)
	return result, nil
}

// reissue issues a fresh coupon of the same type as code.
func (s *PaymentService) reissue(ctx context.Context, code string) (string, error) {
	couponType := domain.CouponDiscount10
	c, err := s.coupons.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if c != nil && c.Type != "" {
		couponType = c.Type
	}
	return s.coupons.Issue(ctx, couponType, "")
}

type IssuedCoupon struct {
	Code     string            `json:"code"`
	Type     domain.CouponType `json:"type"`
	OrderID  string            `json:"orderId"`
	IssuedAt time.Time         `json:"issuedAt"`
}

// IssueCoupon grants an EXPANSION_PACK coupon for experiment arm "B" and a
// DISCOUNT_10 coupon otherwise.
func (s *PaymentService) IssueCoupon(ctx context.Context, orderID, exp string) (*IssuedCoupon, error) {
	couponType := domain.CouponDiscount10
	if exp == "B" {
		couponType = domain.CouponExpansionPack
	}
	code, err := s.coupons.Issue(ctx, couponType, orderID)
	if err != nil {
		return nil, err
	}
	return &IssuedCoupon{Code: code, Type: couponType, OrderID: orderID, IssuedAt: s.now().UTC()}, nil
}

func (s *PaymentService) releaseCoupon(ctx context.Context, code string) {
	if code == "" {
		return
	}
	if err := s.coupons.Release(ctx, code); err != nil {
		s.logger.Warn("coupon release failed", "code", code, "error", err)
	}
}

func (s *PaymentService) logEvent(ctx context.Context, kind string, fields map[string]any) {
	if err := s.events.Append(ctx, kind, fields); err != nil {
		s.logger.Error("event log append failed", "kind", kind, "error", err)
	}
}

func (s *PaymentService) siteURL(path, orderID, couponCode string) string {
	q := url.Values{"orderId": {orderID}}
	if couponCode != "" {
		q.Set("coupon", couponCode)
	}
	return s.cfg.SiteURL + pageURL(path, q)
}

func (s *PaymentService) completeURL(provider domain.Provider, orderID string) string {
	target := s.cfg.ApprovalRedirect[provider]
	if target == "" {
		target = "/payment/complete"
	}
	return pageURL(target, url.Values{"orderId": {orderID}})
}

func pageURL(path string, q url.Values) string {
	return path + "?" + q.Encode()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
