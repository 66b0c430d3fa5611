package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldCoupon_KeepsTypeAcrossStates(t *testing.T) {
	records := []CouponRecord{
		{TS: 1, Kind: KindCouponIssue, Code: "MQ1", Type: CouponDiscount10, OrderID: "src", State: CouponIssued},
		{TS: 2, Kind: KindCouponHold, Code: "MQ1", OrderID: "o1", State: CouponHeld},
		{TS: 3, Kind: KindCouponRelease, Code: "MQ1", State: CouponIssued},
		{TS: 4, Kind: KindCouponRedeem, Code: "MQ1", OrderID: "o2", State: CouponRedeemed},
	}

	c := FoldCoupon("MQ1", records)
	require.NotNil(t, c)
	assert.Equal(t, CouponDiscount10, c.Type)
	assert.Equal(t, CouponRedeemed, c.State)
	assert.Equal(t, "o2", c.OrderID)
	assert.Equal(t, "src", c.SourceOrderID)
	assert.True(t, c.State.IsTerminal())

	assert.Equal(t, c, FoldCoupon("MQ1", records))
}

func TestFoldCoupon_ReleaseClearsOwner(t *testing.T) {
	c := FoldCoupon("MQ1", []CouponRecord{
		{TS: 1, Kind: KindCouponIssue, Code: "MQ1", Type: CouponFixed1000, State: CouponIssued},
		{TS: 2, Kind: KindCouponHold, Code: "MQ1", OrderID: "o1", State: CouponHeld},
		{TS: 3, Kind: KindCouponRelease, Code: "MQ1", State: CouponIssued},
	})

	require.NotNil(t, c)
	assert.Equal(t, CouponIssued, c.State)
	assert.Empty(t, c.OrderID)
}

func TestFoldCoupon_Unknown(t *testing.T) {
	assert.Nil(t, FoldCoupon("MQ1", []CouponRecord{{Code: "MQ2", State: CouponIssued}}))
}
