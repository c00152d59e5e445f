package subscription

import "wellnest/internal/domain"

// Factory starts one underlying subscription. It is called again for every
// retry and reconnect.
type Factory func(onSnapshot func(domain.Snapshot), onError func(error)) (unsubscribe func(), err error)

// Document subscribes to a single document.
func Document(store domain.DocumentStore, path string) Factory {
	return Target(store, domain.DocumentTarget(path))
}

// Query subscribes to a query.
func Query(store domain.DocumentStore, q domain.Query) Factory {
	return Target(store, domain.QueryTarget(q))
}

// Target subscribes to an arbitrary watch target.
func Target(store domain.DocumentStore, target domain.WatchTarget) Factory {
	return func(onSnapshot func(domain.Snapshot), onError func(error)) (func(), error) {
		return store.Subscribe(target, onSnapshot, onError)
	}
}
