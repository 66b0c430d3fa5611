package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/mindquiz/internal/ledger"
)

// Row is one raw ledger line with numbers kept as written.
type Row map[string]any

func (r Row) String(key string) string {
	s, _ := r[key].(string)
	return s
}

func (r Row) Int(key string) int64 {
	switch v := r[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	}
	return 0
}

// Records reads raw rows for admin views and analytics.
type Records struct {
	store ledger.Store
}

func NewRecords(store ledger.Store) *Records {
	return &Records{store: store}
}

// List returns every row of stream that passes filter. A nil filter keeps all rows.
func (r *Records) List(ctx context.Context, stream string, filter func(Row) bool) ([]Row, error) {
	var rows []Row
	err := r.store.Replay(ctx, stream, func(line []byte) error {
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			return fmt.Errorf("decode %s row: %w", stream, err)
		}
		if filter == nil || filter(row) {
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
