package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/mindquiz/internal/ledger"
)

const (
	EventGA4                = "ga4_event"
	EventReferralReward     = "referral_reward"
	EventReferralConversion = "referral_conversion"
	EventCouponReissued     = "coupon_reissued"
	EventCouponReleased     = "coupon_released_on_refund"
	EventWebVitals          = "web_vitals"
)

// Publisher forwards appended events to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type EventLogInterface interface {
	Append(ctx context.Context, kind string, fields map[string]any) error
}

type EventLog struct {
	store     ledger.Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEventLog builds an event log. publisher may be nil.
func NewEventLog(store ledger.Store, publisher Publisher, logger *slog.Logger) *EventLog {
	return &EventLog{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Append writes {ts, kind, ...fields} to the events stream. Publishing is
// best-effort and never fails the append.
func (l *EventLog) Append(ctx context.Context, kind string, fields map[string]any) error {
	ev := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		ev[k] = v
	}
	ev["ts"] = l.now().UnixMilli()
	ev["kind"] = kind

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := l.store.Append(ctx, ledger.StreamEvents, line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if l.publisher != nil {
		key, _ := fields["orderId"].(string)
		if err := l.publisher.Publish(ctx, key, line); err != nil {
			l.logger.Warn("event publish failed", "kind", kind, "error", err)
		}
	}
	return nil
}
