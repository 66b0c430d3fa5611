package domain

import "time"

type CouponType string

const (
	CouponDiscount10    CouponType = "DISCOUNT_10"
	CouponExpansionPack CouponType = "EXPANSION_PACK"
	CouponFixed1000     CouponType = "FIXED_1000"
)

type CouponState string

const (
	CouponIssued   CouponState = "ISSUED"
	CouponHeld     CouponState = "HELD"
	CouponRedeemed CouponState = "REDEEMED"
)

func (s CouponState) IsTerminal() bool {
	return s == CouponRedeemed
}

const (
	KindCouponIssue   = "coupon_issue"
	KindCouponHold    = "coupon_hold"
	KindCouponRelease = "coupon_release"
	KindCouponRedeem  = "coupon_redeem"
)

// CouponRecord is one immutable line of the coupon ledger.
type CouponRecord struct {
	TS      int64       `json:"ts"`
	Kind    string      `json:"kind"`
	Code    string      `json:"code"`
	Type    CouponType  `json:"type,omitempty"`
	OrderID string      `json:"orderId,omitempty"`
	State   CouponState `json:"state"`
}

type Coupon struct {
	Code  string      `json:"code"`
	Type  CouponType  `json:"type"`
	State CouponState `json:"state"`
	// OrderID is the order currently holding or having redeemed the coupon.
	OrderID string `json:"orderId,omitempty"`
	// SourceOrderID is the order the coupon was issued for, if any.
	SourceOrderID string    `json:"sourceOrderId,omitempty"`
	IssuedAt      time.Time `json:"issuedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Apply folds rec into c. The record's state always wins; the owner binding
// follows hold, redeem and release.
func (c *Coupon) Apply(rec CouponRecord) {
	at := time.UnixMilli(rec.TS)
	c.Code = rec.Code
	c.State = rec.State
	c.UpdatedAt = at
	if rec.Type != "" {
		c.Type = rec.Type
	}
	switch rec.Kind {
	case KindCouponIssue:
		c.IssuedAt = at
		c.SourceOrderID = rec.OrderID
	case KindCouponHold, KindCouponRedeem:
		c.OrderID = rec.OrderID
	case KindCouponRelease:
		c.OrderID = ""
	}
}

func FoldCoupon(code string, records []CouponRecord) *Coupon {
	var c *Coupon
	for _, rec := range records {
		if rec.Code != code {
			continue
		}
		if c == nil {
			c = &Coupon{}
		}
		c.Apply(rec)
	}
	return c
}
