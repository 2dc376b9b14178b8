// Package chain holds ChainState: the immutable binding of an upstream
// URL, its probed chain id, a cache backend, and a policy registry, keyed
// by chain name. ChainState is built once at startup and never mutated,
// so it may be shared across concurrently-served requests without
// synchronization.
package chain

import (
	"github.com/rpccache/gateway/internal/cache"
	"github.com/rpccache/gateway/internal/cachepolicy"
	"golang.org/x/time/rate"
)

// State binds everything the dispatcher needs to serve one named chain.
type State struct {
	Name        string
	UpstreamURL string
	ChainID     string
	Backend     cache.Backend
	Policies    cachepolicy.Registry

	// Limiter paces every request routed to this chain: the server waits
	// on it before dispatch, so cache hits are paced as well. Nil means
	// unlimited.
	Limiter *rate.Limiter

	// OnWrite, if set, is called after every successful cache write so a
	// size-bounded backend's cleanup manager can re-check its budget. Nil
	// for backends with no size bound.
	OnWrite func()
}
