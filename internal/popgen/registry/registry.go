package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/G-Research/popgen/internal/popgen/request"
)

// DefaultTombstoneTTL is how long the terminal state of a deregistered request is remembered.
const DefaultTombstoneTTL = time.Hour

// Registry maps request ids to live requests. When a terminal request is removed its final state is kept
// as a tombstone, so that late transitions can still be answered with that state.
type Registry struct {
	lock       sync.RWMutex
	requests   map[string]*request.Request
	tombstones *cache.Cache
	onChange   func(size int)
}

func New(tombstoneTTL time.Duration) *Registry {
	if tombstoneTTL <= 0 {
		tombstoneTTL = DefaultTombstoneTTL
	}
	return &Registry{
		requests:   map[string]*request.Request{},
		tombstones: cache.New(tombstoneTTL, tombstoneTTL),
	}
}

// OnChange registers a callback invoked with the new size after every addition or removal.
func (r *Registry) OnChange(f func(size int)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.onChange = f
}

func (r *Registry) Add(req *request.Request) {
	r.lock.Lock()
	r.requests[req.Id()] = req
	size := len(r.requests)
	onChange := r.onChange
	r.lock.Unlock()
	r.tombstones.Delete(req.Id())
	if onChange != nil {
		onChange(size)
	}
}

func (r *Registry) Get(id string) (*request.Request, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	req, ok := r.requests[id]
	return req, ok
}

// Remove deregisters id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.lock.Lock()
	req, ok := r.requests[id]
	if ok {
		delete(r.requests, id)
	}
	size := len(r.requests)
	onChange := r.onChange
	r.lock.Unlock()
	if !ok {
		return
	}
	if state := req.State(); state.IsTerminal() {
		r.tombstones.SetDefault(id, state)
	}
	if onChange != nil {
		onChange(size)
	}
}

// Tombstone returns the terminal state of a recently removed request.
func (r *Registry) Tombstone(id string) (request.State, bool) {
	v, ok := r.tombstones.Get(id)
	if !ok {
		return 0, false
	}
	return v.(request.State), true
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.requests)
}

// List returns the registered requests ordered by creation time.
func (r *Registry) List() []*request.Request {
	r.lock.RLock()
	result := make([]*request.Request, 0, len(r.requests))
	for _, req := range r.requests {
		result = append(result, req)
	}
	r.lock.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result
}

// Reap removes requests Finished for longer than finishedRetention and abandons requests that have sat in
// Created for longer than idleTimeout. A zero duration disables that rule. Returns the removed ids.
func (r *Registry) Reap(now time.Time, finishedRetention time.Duration, idleTimeout time.Duration) []string {
	var reaped []string
	for _, req := range r.List() {
		switch req.State() {
		case request.Finished:
			if finishedRetention > 0 && now.Sub(req.TerminatedAt()) > finishedRetention {
				r.Remove(req.Id())
				reaped = append(reaped, req.Id())
			}
		case request.Created:
			if idleTimeout > 0 && now.Sub(req.CreatedAt()) > idleTimeout && req.Abandon() {
				r.Remove(req.Id())
				reaped = append(reaped, req.Id())
			}
		}
	}
	return reaped
}
