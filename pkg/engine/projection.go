package engine

import (
	"sync"
)

// ViewProjection holds the most recently applied View. Writers with an
// older sequence number than the current one are refused.
//
// A View is never modified after BuildView. Readers share its slices and
// maps and must treat it as read-only; Apply replaces the whole value, so a
// View handed out earlier stays consistent.
type ViewProjection struct {
	mu      sync.RWMutex
	current View
}

// NewViewProjection creates an empty projection.
func NewViewProjection() *ViewProjection {
	return &ViewProjection{}
}

// Apply publishes v unless a newer (or the same) sequence is already
// applied. It reports whether v was accepted.
func (p *ViewProjection) Apply(v View) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.current.IsZero() && v.Seq <= p.current.Seq {
		return false
	}
	p.current = v
	return true
}

// Restore seeds the projection from a persisted View, e.g. at startup.
// It never overrides a View applied by a live poll. The restored View gets
// sequence zero so the first live poll of this process replaces it.
func (p *ViewProjection) Restore(v View) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.current.IsZero() || v.SnapshotID == "" {
		return false
	}
	v.Seq = 0
	p.current = v
	return true
}

// Latest returns the current View and whether one has been applied. The
// View shares memory with the projection and must not be modified.
func (p *ViewProjection) Latest() (View, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, !p.current.IsZero()
}

// Seq returns the sequence number of the current View.
func (p *ViewProjection) Seq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Seq
}
