package domain

import (
	"encoding/json"
	"time"
)

type Provider string

const (
	ProviderKakao Provider = "kakao"
	ProviderNaver Provider = "naver"
)

// ParseProvider maps a path segment to a known provider.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderKakao, ProviderNaver:
		return Provider(s), true
	default:
		return "", false
	}
}

func (p Provider) String() string {
	return string(p)
}

type OrderStage string

const (
	StageReady    OrderStage = "READY"
	StageReserved OrderStage = "RESERVED"
	StagePaid     OrderStage = "PAID"
	StageCanceled OrderStage = "CANCELED"
)

func (s OrderStage) IsTerminal() bool {
	return s == StagePaid || s == StageCanceled
}

// String representation (for logging)
func (s OrderStage) String() string {
	return string(s)
}

const (
	KindOrder       = "order"
	KindOrderUpdate = "order_update"
)

type CancelInfo struct {
	Reason  string          `json:"reason"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OrderRecord is one immutable line of the order ledger. A record of kind
// "order" opens the order, "order_update" records carry only the fields that
// changed.
type OrderRecord struct {
	TS         int64           `json:"ts"`
	Kind       string          `json:"kind"`
	OrderID    string          `json:"orderId"`
	Provider   Provider        `json:"provider,omitempty"`
	Stage      OrderStage      `json:"stage,omitempty"`
	Amount     int64           `json:"amount,omitempty"`
	SKUType    string          `json:"skuType,omitempty"`
	ItemName   string          `json:"itemName,omitempty"`
	CouponCode string          `json:"couponCode,omitempty"`
	TID        string          `json:"tid,omitempty"`
	ReserveID  string          `json:"reserveId,omitempty"`
	PaymentID  string          `json:"paymentId,omitempty"`
	Receipt    json.RawMessage `json:"receipt,omitempty"`
	Cancel     *CancelInfo     `json:"cancel,omitempty"`
}

// Order is the current state of one checkout attempt, derived from its records.
type Order struct {
	OrderID    string          `json:"orderId"`
	Provider   Provider        `json:"provider"`
	Stage      OrderStage      `json:"stage"`
	Amount     int64           `json:"amount"`
	SKUType    string          `json:"skuType,omitempty"`
	ItemName   string          `json:"itemName,omitempty"`
	CouponCode string          `json:"couponCode,omitempty"`
	TID        string          `json:"tid,omitempty"`
	ReserveID  string          `json:"reserveId,omitempty"`
	PaymentID  string          `json:"paymentId,omitempty"`
	Receipt    json.RawMessage `json:"receipt,omitempty"`
	Cancel     *CancelInfo     `json:"cancel,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Apply folds rec into o. An order record starts a new attempt and
// replaces the state; an order_update record overlays its non-empty fields.
func (o *Order) Apply(rec OrderRecord) {
	if rec.Kind == KindOrder {
		*o = Order{}
	}
	at := time.UnixMilli(rec.TS)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = at
	}
	o.UpdatedAt = at
	o.OrderID = rec.OrderID
	if rec.Provider != "" {
		o.Provider = rec.Provider
	}
	if rec.Stage != "" {
		o.Stage = rec.Stage
	}
	if rec.Amount != 0 {
		o.Amount = rec.Amount
	}
	if rec.SKUType != "" {
		o.SKUType = rec.SKUType
	}
	if rec.ItemName != "" {
		o.ItemName = rec.ItemName
	}
	if rec.CouponCode != "" {
		o.CouponCode = rec.CouponCode
	}
	if rec.TID != "" {
		o.TID = rec.TID
	}
	if rec.ReserveID != "" {
		o.ReserveID = rec.ReserveID
	}
	if rec.PaymentID != "" {
		o.PaymentID = rec.PaymentID
	}
	if len(rec.Receipt) > 0 {
		o.Receipt = rec.Receipt
	}
	if rec.Cancel != nil {
		o.Cancel = rec.Cancel
	}
}

// FoldOrder replays records in log order. Records for other orders are
// skipped; nil means no record matched.
func FoldOrder(orderID string, records []OrderRecord) *Order {
	var o *Order
	for _, rec := range records {
		if rec.OrderID != orderID {
			continue
		}
		if o == nil {
			o = &Order{}
		}
		o.Apply(rec)
	}
	return o
}
