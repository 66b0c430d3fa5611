package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldOrder_OverlaysPatches(t *testing.T) {
	records := []OrderRecord{
		{TS: 1000, Kind: KindOrder, OrderID: "o1", Provider: ProviderNaver, Stage: StageReserved, ReserveID: "R1", Amount: 4410},
		{TS: 2000, Kind: KindOrder, OrderID: "other", Stage: StageReady},
		{TS: 3000, Kind: KindOrderUpdate, OrderID: "o1", Provider: ProviderNaver, Stage: StagePaid},
	}

	o := FoldOrder("o1", records)
	require.NotNil(t, o)
	assert.Equal(t, StagePaid, o.Stage)
	assert.Equal(t, "R1", o.ReserveID)
	assert.Equal(t, int64(4410), o.Amount)
	assert.Equal(t, int64(1000), o.CreatedAt.UnixMilli())
	assert.Equal(t, int64(3000), o.UpdatedAt.UnixMilli())
}

func TestFoldOrder_NewAttemptReplacesState(t *testing.T) {
	records := []OrderRecord{
		{TS: 1000, Kind: KindOrder, OrderID: "o1", Provider: ProviderKakao, Stage: StageReady, TID: "T1", Amount: 4410, CouponCode: "MQ1"},
		{TS: 2000, Kind: KindOrderUpdate, OrderID: "o1", Provider: ProviderKakao, Stage: StageCanceled, Cancel: &CancelInfo{Reason: "user"}},
		{TS: 3000, Kind: KindOrder, OrderID: "o1", Provider: ProviderNaver, Stage: StageReserved, ReserveID: "R2", Amount: 4900},
	}

	o := FoldOrder("o1", records)
	require.NotNil(t, o)
	assert.Equal(t, StageReserved, o.Stage)
	assert.Equal(t, ProviderNaver, o.Provider)
	assert.Empty(t, o.CouponCode)
	assert.Empty(t, o.TID)
	assert.Nil(t, o.Cancel)
	assert.Equal(t, int64(4900), o.Amount)
	assert.Equal(t, int64(3000), o.CreatedAt.UnixMilli())
}

func TestFoldOrder_Idempotent(t *testing.T) {
	records := []OrderRecord{
		{TS: 1, Kind: KindOrder, OrderID: "o1", Stage: StageReady, Amount: 4900},
		{TS: 2, Kind: KindOrderUpdate, OrderID: "o1", Stage: StageCanceled, Cancel: &CancelInfo{Reason: "admin_cancel"}},
	}

	assert.Equal(t, FoldOrder("o1", records), FoldOrder("o1", records))
}

func TestFoldOrder_NoRecords(t *testing.T) {
	assert.Nil(t, FoldOrder("o1", nil))
	assert.Nil(t, FoldOrder("o1", []OrderRecord{{OrderID: "o2"}}))
}

func TestOrderStage_IsTerminal(t *testing.T) {
	assert.False(t, StageReady.IsTerminal())
	assert.False(t, StageReserved.IsTerminal())
	assert.True(t, StagePaid.IsTerminal())
	assert.True(t, StageCanceled.IsTerminal())
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("kakao")
	assert.True(t, ok)
	assert.Equal(t, ProviderKakao, p)

	_, ok = ParseProvider("toss")
	assert.False(t, ok)
}
