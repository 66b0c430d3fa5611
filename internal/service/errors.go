package service

import "errors"

var (
	ErrMissingFields    = errors.New("orderId, itemName and amount are required")
	ErrPaymentsDisabled = errors.New("payments disabled")
	ErrInvalidSignature = errors.New("invalid order signature")
	ErrInvalidCoupon    = errors.New("invalid coupon")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrMissingOrderID   = errors.New("orderId required")
	ErrOrderNotFound    = errors.New("order not found")
	ErrProviderMismatch = errors.New("order belongs to another provider")
)
