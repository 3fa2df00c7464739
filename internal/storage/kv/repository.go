package kv

import (
	"context"
)

// Repository is a scoped key-value store. Writes are last-write-wins, there are no transactions.
type Repository interface {
	// Get shall return nil value and nil error for an absent key
	Get(ctx context.Context, scope, key string) ([]byte, error)
	Set(ctx context.Context, scope, key string, value []byte) error
}
