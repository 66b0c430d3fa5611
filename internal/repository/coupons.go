package repository

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/ledger"
)

type CouponRepoInterface interface {
	Issue(ctx context.Context, couponType domain.CouponType, orderID string) (string, error)
	Get(ctx context.Context, code string) (*domain.Coupon, error)
	Hold(ctx context.Context, code, orderID string) error
	Release(ctx context.Context, code string) error
	Redeem(ctx context.Context, code, orderID string) error
}

// CouponLedger derives coupon state from the coupons stream. Holds are not
// locked; two concurrent holds both succeed and the later one owns the coupon.
type CouponLedger struct {
	store ledger.Store
	now   func() time.Time
}

func NewCouponLedger(store ledger.Store) *CouponLedger {
	return &CouponLedger{store: store, now: time.Now}
}

func (l *CouponLedger) Issue(ctx context.Context, couponType domain.CouponType, orderID string) (string, error) {
	now := l.now()
	suffix, err := randomBase36(4)
	if err != nil {
		return "", err
	}
	code := strings.ToUpper("MQ" + strconv.FormatInt(now.UnixMilli(), 36) + suffix)

	err = l.append(ctx, domain.CouponRecord{
		TS:      now.UnixMilli(),
		Kind:    domain.KindCouponIssue,
		Code:    code,
		Type:    couponType,
		OrderID: orderID,
		State:   domain.CouponIssued,
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Get returns nil, nil for a code that was never issued.
func (l *CouponLedger) Get(ctx context.Context, code string) (*domain.Coupon, error) {
	if code == "" {
		return nil, nil
	}
	var records []domain.CouponRecord
	err := l.store.Replay(ctx, ledger.StreamCoupons, func(line []byte) error {
		var rec domain.CouponRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode coupon record: %w", err)
		}
		if rec.Code == code {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.FoldCoupon(code, records), nil
}

func (l *CouponLedger) Hold(ctx context.Context, code, orderID string) error {
	c, err := l.Get(ctx, code)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCouponNotFound
	}
	if c.State.IsTerminal() {
		return ErrCouponAlreadyUsed
	}
	return l.append(ctx, domain.CouponRecord{
		TS:      l.now().UnixMilli(),
		Kind:    domain.KindCouponHold,
		Code:    code,
		OrderID: orderID,
		State:   domain.CouponHeld,
	})
}

// Release returns a held coupon to ISSUED. Any other state is left alone.
func (l *CouponLedger) Release(ctx context.Context, code string) error {
	c, err := l.Get(ctx, code)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCouponNotFound
	}
	if c.State != domain.CouponHeld {
		return nil
	}
	return l.append(ctx, domain.CouponRecord{
		TS:    l.now().UnixMilli(),
		Kind:  domain.KindCouponRelease,
		Code:  code,
		State: domain.CouponIssued,
	})
}

// Redeem does not require a prior hold.
func (l *CouponLedger) Redeem(ctx context.Context, code, orderID string) error {
	c, err := l.Get(ctx, code)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCouponNotFound
	}
	return l.append(ctx, domain.CouponRecord{
		TS:      l.now().UnixMilli(),
		Kind:    domain.KindCouponRedeem,
		Code:    code,
		OrderID: orderID,
		State:   domain.CouponRedeemed,
	})
}

func (l *CouponLedger) append(ctx context.Context, rec domain.CouponRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode coupon record: %w", err)
	}
	if err := l.store.Append(ctx, ledger.StreamCoupons, line); err != nil {
		return fmt.Errorf("append coupon record: %w", err)
	}
	return nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate coupon code: %w", err)
		}
		sb.WriteByte(base36[idx.Int64()])
	}
	return sb.String(), nil
}
