package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fjod/mindquiz/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLedger_SaveAndUpdate(t *testing.T) {
	l := NewOrderLedger(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, l.Save(ctx, domain.OrderRecord{
		OrderID:    "ord-1",
		Provider:   domain.ProviderKakao,
		Stage:      domain.StageReady,
		TID:        "T123",
		Amount:     4410,
		CouponCode: "MQABC",
	}))
	require.NoError(t, l.Update(ctx, "ord-1", domain.OrderRecord{
		Provider: domain.ProviderKakao,
		Stage:    domain.StagePaid,
		Receipt:  json.RawMessage(`{"aid":"A1"}`),
	}))

	o, err := l.Get(ctx, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.Equal(t, domain.StagePaid, o.Stage)
	assert.Equal(t, int64(4410), o.Amount)
	assert.Equal(t, "T123", o.TID)
	assert.Equal(t, "MQABC", o.CouponCode)
	assert.JSONEq(t, `{"aid":"A1"}`, string(o.Receipt))
}

func TestOrderLedger_GetUnknown(t *testing.T) {
	l := NewOrderLedger(newTestStore(t))

	o, err := l.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestOrderLedger_OrdersAreIsolated(t *testing.T) {
	l := NewOrderLedger(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, l.Save(ctx, domain.OrderRecord{OrderID: "a", Stage: domain.StageReady, Amount: 4900}))
	require.NoError(t, l.Save(ctx, domain.OrderRecord{OrderID: "b", Stage: domain.StageReserved, Amount: 3900}))
	require.NoError(t, l.Update(ctx, "b", domain.OrderRecord{Stage: domain.StageCanceled}))

	a, err := l.Get(ctx, "a")
	require.NoError(t, err)
	b, err := l.Get(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, domain.StageReady, a.Stage)
	assert.Equal(t, domain.StageCanceled, b.Stage)
	assert.Equal(t, int64(3900), b.Amount)
}
