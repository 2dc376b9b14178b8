// Package cachepolicy holds the per-method cache policy registry: the
// pluggable pair of pure functions, one per supported JSON-RPC method,
// that decide what constitutes a stable cache key from call parameters
// and a cacheable value from a call's result.
package cachepolicy

import "encoding/json"

// Policy is the per-method pair of extractKey/extractValue functions,
// named for the registry key (Method) under which it is registered. A
// table of function pairs is used instead of a per-method class
// hierarchy: it is cheaper to construct, trivial to look up, and there is
// no need for dynamic dispatch beyond a map lookup.
type Policy struct {
	Method string

	// ExtractKey normalizes params into a stable cache key. skip is true
	// when the call's result depends on chain head (e.g. an unresolved
	// block tag) and must never be cached; err is non-nil when params
	// could not be interpreted at all (treated the same as skip by
	// callers, but logged with more detail).
	ExtractKey func(params json.RawMessage) (key string, skip bool, err error)

	// ExtractValue decides whether a call's result is a stable value safe
	// to persist. cacheable is false for results representing "unknown"
	// upstream state (e.g. a still-pending transaction) so a transient
	// null never poisons the cache.
	ExtractValue func(result json.RawMessage) (value json.RawMessage, cacheable bool, err error)
}

// Registry is the static method -> Policy mapping. A method absent from
// the registry is uncacheable: its calls pass straight through and their
// results are never written back.
type Registry map[string]Policy

// NewRegistry builds the registry from the fixed policy set in methods.go.
func NewRegistry() Registry {
	reg := make(Registry, len(allPolicies))
	for _, p := range allPolicies {
		reg[p.Method] = p
	}
	return reg
}

// Lookup returns the policy for method, if any is registered.
func (r Registry) Lookup(method string) (Policy, bool) {
	p, ok := r[method]
	return p, ok
}
