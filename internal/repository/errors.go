package repository

import "errors"

var (
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrCouponAlreadyUsed = errors.New("coupon already used")
)

// Reason returns the short code reported for a coupon failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrCouponNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrCouponAlreadyUsed):
		return "ALREADY_USED"
	default:
		return ""
	}
}
