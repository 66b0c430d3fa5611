package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/mindquiz/domain"
	"github.com/fjod/mindquiz/internal/ledger"
)

type OrderRepoInterface interface {
	Save(ctx context.Context, rec domain.OrderRecord) error
	Update(ctx context.Context, orderID string, patch domain.OrderRecord) error
	Get(ctx context.Context, orderID string) (*domain.Order, error)
}

// OrderLedger is the only record of orders; nothing is kept in memory.
type OrderLedger struct {
	store ledger.Store
	now   func() time.Time
}

func NewOrderLedger(store ledger.Store) *OrderLedger {
	return &OrderLedger{store: store, now: time.Now}
}

// Save opens an order.
func (l *OrderLedger) Save(ctx context.Context, rec domain.OrderRecord) error {
	rec.Kind = domain.KindOrder
	return l.append(ctx, rec)
}

// Update appends a patch carrying only the changed fields.
func (l *OrderLedger) Update(ctx context.Context, orderID string, patch domain.OrderRecord) error {
	patch.Kind = domain.KindOrderUpdate
	patch.OrderID = orderID
	return l.append(ctx, patch)
}

// Get returns nil, nil when no record mentions orderID.
func (l *OrderLedger) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, nil
	}
	var records []domain.OrderRecord
	err := l.store.Replay(ctx, ledger.StreamOrders, func(line []byte) error {
		var rec domain.OrderRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode order record: %w", err)
		}
		if rec.OrderID == orderID {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return domain.FoldOrder(orderID, records), nil
}

func (l *OrderLedger) append(ctx context.Context, rec domain.OrderRecord) error {
	if rec.TS == 0 {
		rec.TS = l.now().UnixMilli()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode order record: %w", err)
	}
	if err := l.store.Append(ctx, ledger.StreamOrders, line); err != nil {
		return fmt.Errorf("append order record: %w", err)
	}
	return nil
}
