package license

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("license not found")

// State is the mutable view handed to a Mutate callback: the full license
// collection plus the stats record, forming one consistency domain. A
// callback may read and modify both; the repository persists the whole pair
// atomically after the callback returns nil, or discards the mutation when
// it returns an error.
type State struct {
	Licenses map[string]*License
	Stats    *Stats
}

type Repository interface {
	// FindByKey returns a copy of the license, or ErrNotFound.
	FindByKey(ctx context.Context, key string) (*License, error)
	// FindByPaymentRef returns the license whose payment reference matches,
	// or ErrNotFound.
	FindByPaymentRef(ctx context.Context, ref string) (*License, error)
	List(ctx context.Context) ([]*License, error)
	Stats(ctx context.Context) (Stats, error)

	// Mutate runs fn as a single critical section over the license
	// collection and the stats record. No two mutations interleave; readers
	// never observe a half-applied callback. Success is reported only after
	// the new state is durable.
	Mutate(ctx context.Context, fn func(*State) error) error
}
