package supervisor

import (
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default reconnect delays.
const (
	DefaultRetryBase = time.Second
	DefaultRetryMax  = 10 * time.Second
)

// Registry is the table of running jobs plus its per-key side tables:
// reconnect delay, manually-stopped flag and pending reconnect.
//
// Registry does no locking of its own; the Supervisor guards every call
// with its mutex.
type Registry struct {
	workers map[StreamKey]*WorkerState
	retry   map[StreamKey]*backoff.ExponentialBackOff
	stopped map[StreamKey]struct{}
	pending map[StreamKey]*pendingReconnect

	retryBase time.Duration
	retryMax  time.Duration
}

// pendingReconnect is a scheduled restart. Its pointer identity is the
// token a firing timer checks against.
type pendingReconnect struct {
	from  string // id of the handle whose failure scheduled it
	timer Timer
}

// NewRegistry returns an empty registry whose reconnect delay starts at
// base and doubles up to ceiling. Non-positive values use the defaults.
func NewRegistry(base, ceiling time.Duration) *Registry {
	if base <= 0 {
		base = DefaultRetryBase
	}
	if ceiling <= 0 {
		ceiling = DefaultRetryMax
	}
	return &Registry{
		workers:   make(map[StreamKey]*WorkerState),
		retry:     make(map[StreamKey]*backoff.ExponentialBackOff),
		stopped:   make(map[StreamKey]struct{}),
		pending:   make(map[StreamKey]*pendingReconnect),
		retryBase: base,
		retryMax:  ceiling,
	}
}

// Has reports whether a job is registered under key.
func (r *Registry) Has(key StreamKey) bool {
	_, ok := r.workers[key]
	return ok
}

// Get returns the job registered under key.
func (r *Registry) Get(key StreamKey) (*WorkerState, bool) {
	w, ok := r.workers[key]
	return w, ok
}

// Put registers w under w.Key, replacing any previous entry.
func (r *Registry) Put(w *WorkerState) {
	r.workers[w.Key] = w
}

// Remove deletes and returns the job registered under key.
func (r *Registry) Remove(key StreamKey) (*WorkerState, bool) {
	w, ok := r.workers[key]
	if ok {
		delete(r.workers, key)
	}
	return w, ok
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	return len(r.workers)
}

// Snapshot returns the registered jobs ordered by key.
func (r *Registry) Snapshot() []StreamInfo {
	out := make([]StreamInfo, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DrainAll removes and returns every registered job.
func (r *Registry) DrainAll() []*WorkerState {
	out := make([]*WorkerState, 0, len(r.workers))
	for key, w := range r.workers {
		out = append(out, w)
		delete(r.workers, key)
	}
	return out
}

// NextRetryDelay returns the delay to wait before the next reconnect of
// key and doubles the stored delay, capped at the maximum. A key without
// history starts at the base delay.
func (r *Registry) NextRetryDelay(key StreamKey) time.Duration {
	b, ok := r.retry[key]
	if !ok {
		b = backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(r.retryBase),
			backoff.WithRandomizationFactor(0),
			backoff.WithMultiplier(2),
			backoff.WithMaxInterval(r.retryMax),
			backoff.WithMaxElapsedTime(0),
		)
		r.retry[key] = b
	}
	return b.NextBackOff()
}

// ResetRetryDelay puts key's reconnect delay back to the base value.
func (r *Registry) ResetRetryDelay(key StreamKey) {
	if b, ok := r.retry[key]; ok {
		b.Reset()
	}
}

// MarkStopped flags key as manually stopped.
func (r *Registry) MarkStopped(key StreamKey) {
	r.stopped[key] = struct{}{}
}

// ClearStopped removes the manually-stopped flag of key.
func (r *Registry) ClearStopped(key StreamKey) {
	delete(r.stopped, key)
}

// IsStopped reports whether key is manually stopped.
func (r *Registry) IsStopped(key StreamKey) bool {
	_, ok := r.stopped[key]
	return ok
}

// SetPending records p as the scheduled reconnect of key.
func (r *Registry) SetPending(key StreamKey, p *pendingReconnect) {
	r.pending[key] = p
}

// HasPending reports whether a reconnect is scheduled for key.
func (r *Registry) HasPending(key StreamKey) bool {
	_, ok := r.pending[key]
	return ok
}

// TakePending clears the scheduled reconnect of key if it is still p.
// It reports whether p was current.
func (r *Registry) TakePending(key StreamKey, p *pendingReconnect) bool {
	if cur, ok := r.pending[key]; !ok || cur != p {
		return false
	}
	delete(r.pending, key)
	return true
}

// PendingKeys returns the keys with a scheduled reconnect.
func (r *Registry) PendingKeys() []StreamKey {
	out := make([]StreamKey, 0, len(r.pending))
	for key := range r.pending {
		out = append(out, key)
	}
	return out
}

// CancelPending stops and clears any scheduled reconnect of key.
func (r *Registry) CancelPending(key StreamKey) {
	p, ok := r.pending[key]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(r.pending, key)
}
