package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/rentops/rentops/internal/session"
)

// RegionState is the render decision for a guarded subtree.
type RegionState int

const (
	// RegionPending renders a loading placeholder: neither the protected
	// content nor a denial.
	RegionPending RegionState = iota
	// RegionVisible renders the protected content.
	RegionVisible
	// RegionHidden renders nothing. Used for role-bound denials so a
	// forbidden feature does not advertise its own existence.
	RegionHidden
	// RegionBlocked renders an explicit access-denied notice, optionally as
	// a blocking overlay. Used when the session itself is absent or broken.
	RegionBlocked
)

// Region guards a whole subtree. It checks on mount and then on its own
// cadence while mounted, independent of the session-wide revalidation
// scheduler, so sensitive views can notice a demotion sooner.
type Region struct {
	source   Source
	module   string
	required string
	interval time.Duration
	overlay  bool
	notifier Notifier

	mu    sync.Mutex
	state RegionState
	stop  chan struct{}
}

// RegionConfig configures a region guard.
type RegionConfig struct {
	Source   Source
	Module   string
	Required string
	// Recheck cadence while mounted; defaults to 5 minutes.
	Interval time.Duration
	// Overlay requests the blocking-overlay presentation for RegionBlocked.
	Overlay  bool
	Notifier Notifier
}

// NewRegion constructs an unmounted region guard in the pending state.
func NewRegion(cfg RegionConfig) *Region {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Region{
		source:   cfg.Source,
		module:   cfg.Module,
		required: cfg.Required,
		interval: interval,
		overlay:  cfg.Overlay,
		notifier: cfg.Notifier,
		state:    RegionPending,
	}
}

// Mount runs the initial authorization check and starts the recheck timer.
func (r *Region) Mount() RegionState {
	r.mu.Lock()
	if r.stop == nil {
		stop := make(chan struct{})
		r.stop = stop
		go r.loop(stop)
	}
	r.mu.Unlock()
	return r.refresh()
}

// Unmount stops the recheck timer.
func (r *Region) Unmount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// State returns the current render decision.
func (r *Region) State() RegionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Overlay reports whether a blocked region should present as an overlay.
func (r *Region) Overlay() bool { return r.overlay }

func (r *Region) loop(stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *Region) refresh() RegionState {
	next := r.evaluate()

	r.mu.Lock()
	prev := r.state
	r.state = next
	notifier := r.notifier
	r.mu.Unlock()

	// Only the broken-session case is announced; a role-bound denial stays
	// silent so the feature's existence is not leaked.
	if next == RegionBlocked && prev != RegionBlocked && notifier != nil {
		notifier.Denied(r.module, r.required,
			fmt.Sprintf("access denied for %s:%s", r.module, r.required))
	}
	return next
}

func (r *Region) evaluate() RegionState {
	if r.source == nil || !r.source.Active() {
		return RegionBlocked
	}
	if r.source.HasGrant(r.module, r.required) {
		return RegionVisible
	}
	if kind, ok := r.source.Kind(); ok && kind == session.KindRoleBound {
		return RegionHidden
	}
	return RegionBlocked
}
