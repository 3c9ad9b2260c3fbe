package store

import (
	"context"
	"encoding/json"
	"time"
)

type RecordID string

// Record is a serialized snapshot of an accepted order.
type Record struct {
	ID        RecordID        `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is append-only. Records are never read back by the order service.
type Store interface {
	Append(ctx context.Context, record Record) (RecordID, error)
	Ping(ctx context.Context) error
}
