package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockPublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, key string, value []byte) error {
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return m.err
}

func TestEventLog_AppendAndPublish(t *testing.T) {
	store := newTestStore(t)
	pub := &mockPublisher{}
	log := NewEventLog(store, pub, testLogger)

	require.NoError(t, log.Append(context.Background(), EventGA4, map[string]any{
		"name":    "purchase_complete",
		"orderId": "ord-1",
		"value":   4410,
	}))

	rows, err := NewRecords(store).List(context.Background(), ledger.StreamEvents, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, EventGA4, rows[0].String("kind"))
	assert.Equal(t, int64(4410), rows[0].Int("value"))
	assert.NotZero(t, rows[0].Int("ts"))

	require.Len(t, pub.keys, 1)
	assert.Equal(t, "ord-1", pub.keys[0])
	var published map[string]any
	require.NoError(t, json.Unmarshal(pub.values[0], &published))
	assert.Equal(t, "purchase_complete", published["name"])
}

func TestEventLog_PublishFailureIsIgnored(t *testing.T) {
	log := NewEventLog(newTestStore(t), &mockPublisher{err: errors.New("broker down")}, testLogger)

	assert.NoError(t, log.Append(context.Background(), EventWebVitals, map[string]any{"name": "LCP"}))
}

func TestRecords_Referrals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	events := NewEventLog(store, nil, testLogger)
	orders := NewOrderLedger(store)
	coupons := NewCouponLedger(store)

	require.NoError(t, orders.Save(ctx, domain.OrderRecord{OrderID: "ref-1", Stage: domain.StageReady, Amount: 4410}))
	require.NoError(t, orders.Save(ctx, domain.OrderRecord{OrderID: "plain", Stage: domain.StageReady, Amount: 4900}))
	require.NoError(t, events.Append(ctx, EventReferralConversion, map[string]any{"orderId": "ref-1", "ref": "friend"}))
	require.NoError(t, events.Append(ctx, EventReferralConversion, map[string]any{"orderId": "ref-2", "ref": "friend"}))
	require.NoError(t, events.Append(ctx, EventWebVitals, map[string]any{"name": "CLS"}))

	code, err := coupons.Issue(ctx, domain.CouponDiscount10, "")
	require.NoError(t, err)
	require.NoError(t, coupons.Redeem(ctx, code, "ref-1"))

	now := time.Now()
	stats, err := NewRecords(store).Referrals(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalReferrals)
	assert.Equal(t, 1, stats.TotalConversions)
	assert.Equal(t, "50.00%", stats.ConversionRate)
	assert.Equal(t, int64(4410), stats.RevenueFromReferrals)
	assert.Equal(t, 1, stats.CouponsIssued)
	assert.Equal(t, 1, stats.CouponsRedeemed)
	assert.Len(t, stats.RecentEvents, 2)
}

func TestRecords_ReferralsOutsideWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, NewEventLog(store, nil, testLogger).Append(ctx, EventReferralConversion, map[string]any{"orderId": "x"}))

	past := time.Now().Add(-48 * time.Hour)
	stats, err := NewRecords(store).Referrals(ctx, past.Add(-time.Hour), past)
	require.NoError(t, err)

	assert.Zero(t, stats.TotalReferrals)
	assert.Equal(t, "0%", stats.ConversionRate)
	assert.Empty(t, stats.RecentEvents)
}
