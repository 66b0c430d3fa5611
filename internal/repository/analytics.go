package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/ledger"
)

type ReferralStats struct {
	TotalReferrals       int    `json:"totalReferrals"`
	TotalConversions     int    `json:"totalConversions"`
	ConversionRate       string `json:"conversionRate"`
	RevenueFromReferrals int64  `json:"revenueFromReferrals"`
	CouponsIssued        int    `json:"couponsIssued"`
	CouponsRedeemed      int    `json:"couponsRedeemed"`
	RecentEvents         []Row  `json:"recentEvents"`
}

const recentEventLimit = 10

// Referrals summarizes referral performance for records with from <= ts <= to.
// Conversions are opened orders whose id appears in a referral or purchase event.
func (r *Records) Referrals(ctx context.Context, from, to time.Time) (*ReferralStats, error) {
	inWindow := func(row Row) bool {
		ts := row.Int("ts")
		return ts >= from.UnixMilli() && ts <= to.UnixMilli()
	}

	events, err := r.List(ctx, ledger.StreamEvents, func(row Row) bool {
		kind := row.String("kind")
		return inWindow(row) && (kind == EventReferralConversion || kind == EventGA4)
	})
	if err != nil {
		return nil, err
	}
	coupons, err := r.List(ctx, ledger.StreamCoupons, inWindow)
	if err != nil {
		return nil, err
	}
	orders, err := r.List(ctx, ledger.StreamOrders, func(row Row) bool {
		return inWindow(row) && row.String("kind") == domain.KindOrder
	})
	if err != nil {
		return nil, err
	}

	referred := make(map[string]bool)
	stats := &ReferralStats{RecentEvents: []Row{}}
	for _, ev := range events {
		if ev.String("kind") == EventReferralConversion {
			stats.TotalReferrals++
		}
		if id := ev.String("orderId"); id != "" {
			referred[id] = true
		}
	}

	for _, o := range orders {
		id := o.String("orderId")
		if id == "" || !referred[id] {
			continue
		}
		stats.TotalConversions++
		stats.RevenueFromReferrals += o.Int("amount")
	}

	if stats.TotalReferrals > 0 {
		rate := float64(stats.TotalConversions) / float64(stats.TotalReferrals) * 100
		stats.ConversionRate = fmt.Sprintf("%.2f%%", rate)
	} else {
		stats.ConversionRate = "0%"
	}

	for _, c := range coupons {
		switch c.String("kind") {
		case domain.KindCouponIssue:
			stats.CouponsIssued++
		case domain.KindCouponRedeem:
			stats.CouponsRedeemed++
		}
	}

	if len(events) > recentEventLimit {
		events = events[len(events)-recentEventLimit:]
	}
	stats.RecentEvents = append(stats.RecentEvents, events...)
	return stats, nil
}
