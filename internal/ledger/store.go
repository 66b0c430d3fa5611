package ledger

import (
	"context"
	"errors"
)

const (
	StreamOrders  = "orders"
	StreamCoupons = "coupons"
	StreamEvents  = "events"
)

// Streams lists every stream in backup order.
var Streams = []string{StreamOrders, StreamCoupons, StreamEvents}

var ErrUnknownStream = errors.New("unknown ledger stream")

// Store is an append-only log of JSON lines, one log per stream.
type Store interface {
	Append(ctx context.Context, stream string, line []byte) error
	// Replay calls fn for every line of stream in insertion order and stops
	// at the first error fn returns.
	Replay(ctx context.Context, stream string, fn func(line []byte) error) error
	Truncate(ctx context.Context, stream string) error
	Close() error
}

func checkStream(stream string) error {
	for _, s := range Streams {
		if s == stream {
			return nil
		}
	}
	return ErrUnknownStream
}
