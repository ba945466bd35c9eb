package console

import (
	"context"
	"sync"
	"time"

	"gwconsole/internal/utils"
)

// PollObserver is told about every refresh outcome. The console wires it
// to Prometheus.
type PollObserver interface {
	ObserveRefresh(resource string, ok bool)
	ObserveStale(resource string)
}

// Resource owns one view's copy of a data source. Each Refresh takes a
// sequence number before fetching; a response older than the last applied
// one is discarded.
type Resource[T any] struct {
	name     string
	fetch    func(context.Context) (T, error)
	logger   *utils.Logger
	observer PollObserver

	mu        sync.RWMutex
	state     State[T]
	issued    uint64
	applied   uint64
	stale     uint64
	listeners map[int]func(State[T])
	nextID    int
}

// NewResource creates an idle resource named name.
func NewResource[T any](name string, fetch func(context.Context) (T, error), logger *utils.Logger, observer PollObserver) *Resource[T] {
	return &Resource[T]{
		name:      name,
		fetch:     fetch,
		logger:    logger,
		observer:  observer,
		state:     State[T]{Status: StatusIdle},
		listeners: make(map[int]func(State[T])),
	}
}

// Name returns the resource name used in logs and metrics.
func (r *Resource[T]) Name() string { return r.name }

// State returns the current snapshot.
func (r *Resource[T]) State() State[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Data returns the last successfully applied value.
func (r *Resource[T]) Data() T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Data
}

// Stale returns how many responses were discarded as out of order.
func (r *Resource[T]) Stale() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale
}

// Refresh fetches the source and applies the result unless a newer
// refresh has already been applied. The fetch error is returned either way.
func (r *Resource[T]) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.issued++
	seq := r.issued
	r.state.Status = StatusLoading
	loading := r.state
	r.mu.Unlock()
	r.notify(loading)

	data, err := r.fetch(ctx)

	r.mu.Lock()
	if seq <= r.applied {
		r.stale++
		r.mu.Unlock()
		if r.observer != nil {
			r.observer.ObserveStale(r.name)
		}
		return err
	}
	r.applied = seq
	if err != nil {
		r.state.Status = StatusFailure
		r.state.Error = err.Error()
	} else {
		r.state = State[T]{Status: StatusSuccess, Data: data, UpdatedAt: time.Now().UTC()}
	}
	snapshot := r.state
	r.mu.Unlock()

	if err != nil {
		r.logger.Writef("refresh %s failed: %v", r.name, err)
	}
	if r.observer != nil {
		r.observer.ObserveRefresh(r.name, err == nil)
	}
	r.notify(snapshot)
	return err
}

// Subscribe registers fn for every state change and returns a cancel func.
func (r *Resource[T]) Subscribe(fn func(State[T])) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Reset drops the data and returns to idle.
func (r *Resource[T]) Reset() {
	r.mu.Lock()
	r.state = State[T]{Status: StatusIdle}
	r.applied = r.issued
	snapshot := r.state
	r.mu.Unlock()
	r.notify(snapshot)
}

func (r *Resource[T]) notify(st State[T]) {
	r.mu.RLock()
	fns := make([]func(State[T]), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(st)
	}
}
