package interfaces

import (
	"context"

	domaintypes "wellnest/internal/domain/types"
)

// DocumentStore is the realtime document store the chat layer runs on.
type DocumentStore interface {
	// Get returns the document at path, or a NotFound error.
	Get(ctx context.Context, path string) (domaintypes.Document, error)
	// Set writes data at path. With opts.Merge nested maps merge into the
	// existing document; otherwise the document is replaced.
	Set(ctx context.Context, path string, data domaintypes.Data, opts domaintypes.SetOptions) error
	// Create writes data only if nothing exists at path yet; otherwise it
	// fails with an AlreadyExists error and leaves the document untouched.
	Create(ctx context.Context, path string, data domaintypes.Data) error
	// Query runs a one-shot query.
	Query(ctx context.Context, q domaintypes.Query) ([]domaintypes.Document, error)
	// Subscribe delivers the current snapshot of target and one more after
	// every change, until the returned function is called.
	Subscribe(
		target domaintypes.WatchTarget,
		onSnapshot func(domaintypes.Snapshot),
		onError func(error),
	) (unsubscribe func(), err error)

	Ping(ctx context.Context) error
	Close() error
}

// KeyringStore persists exported session keys encrypted under a passphrase.
type KeyringStore interface {
	SaveKeyring(passphrase string, keys map[string]string) error
	LoadKeyring(passphrase string) (map[string]string, error)
}
