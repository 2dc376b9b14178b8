// Package dispatcher implements the batch dispatch and correlation
// engine: the pipeline that multiplexes a client batch across the cache
// plane and a single upstream round-trip while preserving JSON-RPC
// ordering and id correspondence.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rpccache/gateway/internal/cache"
	"github.com/rpccache/gateway/internal/chain"
	"github.com/rpccache/gateway/internal/jsonrpc"
	"github.com/rpccache/gateway/internal/upstream"
	"go.uber.org/zap"
)

// slotState tracks a batch entry's lifecycle: New -> {Resolved |
// PendingUncacheable | PendingCacheable} -> Resolved, with the one
// exception that a PendingCacheable slot's Resolved state may be
// overwritten once more by an ExtractValue failure.
type slotState int

const (
	stateNew slotState = iota
	stateResolved
	statePendingUncacheable
	statePendingCacheable
)

// slot is the internal per-entry record the dispatcher owns for the
// duration of one request.
type slot struct {
	index    int
	id       jsonrpc.ID
	method   string
	params   json.RawMessage
	key      string
	state    slotState
	resolved jsonrpc.Response
}

// Dispatcher glues the request-id domain, the envelope, the cache policy
// registry, the cache backend, and the upstream client into the
// classify/fetch/correlate/write-back/assemble pipeline.
type Dispatcher struct {
	upstream *upstream.Client
	logger   *zap.Logger
}

// New builds a Dispatcher. logger may be zap.NewNop() in tests.
func New(client *upstream.Client, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{upstream: client, logger: logger}
}

// Hits/misses and upstream round-trip outcomes are reported to the caller
// via the optional Observer so the HTTP layer can feed Prometheus
// instruments without the dispatcher itself depending on the metrics
// package.
type Observer interface {
	ObserveHit(chain, method string)
	ObserveMiss(chain, method string)
	ObserveUpstream(chain string, duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveHit(string, string)                    {}
func (noopObserver) ObserveMiss(string, string)                   {}
func (noopObserver) ObserveUpstream(string, time.Duration, error) {}

// Dispatch runs one HTTP request's worth of work: parse body against the
// JSON-RPC envelope, classify each entry against cs's cache, forward the
// pending residue upstream in one batch, correlate results back by id,
// write eligible results back to the cache, and assemble the final body.
func (d *Dispatcher) Dispatch(ctx context.Context, cs *chain.State, body []byte, obs Observer) (json.RawMessage, error) {
	if obs == nil {
		obs = noopObserver{}
	}

	entries, isSingle, topFailure := jsonrpc.ParseIncoming(body)
	if topFailure != nil {
		return jsonrpc.Assemble(true, []jsonrpc.Response{*topFailure})
	}

	slots := make([]*slot, len(entries))
	for i, e := range entries {
		s := &slot{index: i, id: e.ID}
		if e.Fail != nil {
			s.state = stateResolved
			s.resolved = *e.Fail
		} else {
			s.method = e.Method
			s.params = e.Params
		}
		slots[i] = s
	}

	if err := d.classify(ctx, cs, slots, obs); err != nil {
		// Classification could not even acquire a cache handle: every
		// unresolved slot fails InternalError and we return early.
		reason := fmt.Sprintf("fail to get cache backend: %v", err)
		for _, s := range slots {
			if s.state != stateResolved {
				s.resolved = jsonrpc.InternalErrorResponse(s.id, reason)
				s.state = stateResolved
			}
		}
		return assemble(isSingle, slots)
	}

	pending := pendingSlots(slots)
	if len(pending) == 0 {
		return assemble(isSingle, slots)
	}

	outgoing := make([]jsonrpc.OutgoingRequest, len(pending))
	for i, s := range pending {
		outgoing[i] = jsonrpc.OutgoingRequest{ID: s.id, Method: s.method, Params: s.params}
	}

	start := time.Now()
	responses, err := d.upstream.Send(ctx, cs.UpstreamURL, outgoing)
	obs.ObserveUpstream(cs.Name, time.Since(start), err)
	if err != nil {
		d.logger.Error("fail to make rpc request", zap.String("chain", cs.Name), zap.Error(err))
		for _, s := range pending {
			s.resolved = jsonrpc.InternalErrorResponse(s.id, err.Error())
			s.state = stateResolved
		}
		return assemble(isSingle, slots)
	}

	d.correlateAndResolve(ctx, cs, pending, responses)

	return assemble(isSingle, slots)
}

// classify implements spec step 2: acquire one handle, classify every
// unresolved entry against the method's cache policy and the backend,
// then release the handle. Only a failure to acquire the handle itself
// is returned as an error; per-entry lookup failures degrade silently to
// pending-uncacheable.
func (d *Dispatcher) classify(ctx context.Context, cs *chain.State, slots []*slot, obs Observer) error {
	handle, err := cs.Backend.Instance(ctx)
	if err != nil {
		return err
	}
	defer handle.Close()

	for _, s := range slots {
		if s.state == stateResolved {
			continue
		}

		policy, ok := cs.Policies.Lookup(s.method)
		if !ok {
			s.state = statePendingUncacheable
			continue
		}

		key, skip, err := policy.ExtractKey(s.params)
		if skip || err != nil {
			if err != nil {
				d.logger.Error("fail to extract cache key",
					zap.String("chain", cs.Name), zap.String("method", s.method), zap.Error(err))
			}
			s.state = statePendingUncacheable
			continue
		}

		read, err := handle.Read(ctx, s.method, key)
		if err != nil {
			d.logger.Error("fail to read cache", zap.String("chain", cs.Name), zap.String("method", s.method), zap.Error(err))
			s.state = statePendingUncacheable
			continue
		}

		if read.Hit {
			obs.ObserveHit(cs.Name, s.method)
			s.resolved = jsonrpc.ResultResponse(s.id, read.Value)
			s.state = stateResolved
			continue
		}

		obs.ObserveMiss(cs.Name, s.method)
		s.key = key
		s.state = statePendingCacheable
	}

	return nil
}

func pendingSlots(slots []*slot) []*slot {
	pending := make([]*slot, 0, len(slots))
	for _, s := range slots {
		if s.state != stateResolved {
			pending = append(pending, s)
		}
	}
	return pending
}

// responseEnvelope is the minimal shape read out of each upstream
// response element: enough to correlate by id and to tell an error apart
// from a result.
type responseEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// correlatedMatch pairs a pending slot with the upstream response element
// bound to it.
type correlatedMatch struct {
	target *slot
	env    responseEnvelope
}

// correlateAndResolve implements spec steps 5-6: correlate the upstream
// array back to pending slots by id (falling back to position, then
// dropping), resolve each slot's response, and for cacheable slots run
// extractValue and best-effort write-back.
func (d *Dispatcher) correlateAndResolve(ctx context.Context, cs *chain.State, pending []*slot, responses []json.RawMessage) {
	if len(responses) != len(pending) {
		d.logger.Warn("upstream response length mismatch",
			zap.String("chain", cs.Name), zap.Int("expected", len(pending)), zap.Int("got", len(responses)))
	}

	byID := make(map[jsonrpc.ID]*slot, len(pending))
	for _, s := range pending {
		byID[s.id] = s
	}

	matches := make([]correlatedMatch, 0, len(responses))

	for i, raw := range responses {
		var env responseEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			d.logger.Warn("upstream response element is not a valid object; dropped", zap.Error(err))
			continue
		}

		var target *slot
		if id, err := jsonrpc.ParseID(env.ID); err == nil {
			target = byID[id]
		}
		if target == nil {
			if i < len(pending) {
				d.logger.Warn("upstream response has unmatched id; falling back to positional binding",
					zap.String("chain", cs.Name), zap.Int("position", i))
				target = pending[i]
			} else {
				d.logger.Warn("upstream response has unmatched id and no positional slot; dropped",
					zap.String("chain", cs.Name), zap.Int("position", i))
				continue
			}
		}

		matches = append(matches, correlatedMatch{target: target, env: env})
	}

	// Write-back is detached from the inbound request's cancellation: a
	// client that disconnects right after the upstream responds should
	// not stop an otherwise-successful result from being cached.
	writeCtx := context.WithoutCancel(ctx)

	// A write-back acquisition failure is a cache-layer problem, not an
	// upstream one: every match still resolves from its (successful)
	// upstream result and only the caching step degrades to a no-op, per
	// the "read/write errors against the cache are recovered locally"
	// propagation rule.
	var writeHandle cache.Handle
	if hasCacheableMatches(matches, pending) {
		h, err := cs.Backend.Instance(writeCtx)
		if err != nil {
			d.logger.Warn("fail to get cache backend for write-back; results will not be cached",
				zap.String("chain", cs.Name), zap.Error(err))
		} else {
			writeHandle = h
			defer writeHandle.Close()
		}
	}

	for _, m := range matches {
		resolveFromUpstream(m.target, m.env)
		if m.target.resolved.Err != nil {
			// A custom upstream error: nothing to extract or cache.
			continue
		}
		if m.target.key == "" || writeHandle == nil {
			continue
		}

		policy, ok := cs.Policies.Lookup(m.target.method)
		if !ok {
			continue
		}

		value, cacheable, err := policy.ExtractValue(m.target.resolved.Result)
		if err != nil {
			d.logger.Error("fail to extract cache value",
				zap.String("chain", cs.Name), zap.String("method", m.target.method), zap.Error(err))
			m.target.resolved = jsonrpc.InternalErrorResponse(m.target.id, "fail to extract cache value: "+err.Error())
			continue
		}
		if !cacheable {
			continue
		}

		if err := writeHandle.Write(writeCtx, m.target.method, m.target.key, value); err != nil {
			d.logger.Warn("fail to write cache", zap.String("chain", cs.Name), zap.String("method", m.target.method), zap.Error(err))
		} else if cs.OnWrite != nil {
			cs.OnWrite()
		}
	}
}

func hasCacheableMatches(matches []correlatedMatch, pending []*slot) bool {
	for _, m := range matches {
		if m.target.key != "" {
			return true
		}
	}
	return false
}

func resolveFromUpstream(s *slot, env responseEnvelope) {
	if len(env.Error) > 0 && string(env.Error) != "null" {
		s.resolved = jsonrpc.CustomErrorResponse(s.id, env.Error)
	} else {
		s.resolved = jsonrpc.ResultResponse(s.id, env.Result)
	}
	s.state = stateResolved
}

func assemble(isSingle bool, slots []*slot) (json.RawMessage, error) {
	responses := make([]jsonrpc.Response, len(slots))
	for i, s := range slots {
		responses[i] = s.resolved
	}
	return jsonrpc.Assemble(isSingle, responses)
}
