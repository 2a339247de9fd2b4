package audit

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import "context"

// Store is the durable backend of the trail. Implementations must enforce the
// retention cap synchronously inside Append and return Snapshot in insertion
// order (oldest first) as a copy the caller may keep.
type Store interface {
	// Init ensures the backing storage exists. It must be idempotent.
	Init(ctx context.Context) error

	// Append persists one finalized event and trims the retained set to the cap.
	Append(ctx context.Context, event Event) error

	// Snapshot returns the retained events, oldest first.
	Snapshot(ctx context.Context) ([]Event, error)

	// Close releases resources held by the store.
	Close() error
}

// Querier is implemented by stores that evaluate filters natively.
// Results must follow the same ordering as Query.
type Querier interface {
	Query(ctx context.Context, filter Filter) ([]Event, error)
}
