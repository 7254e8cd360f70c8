package anim

import "time"

// TickFunc advances an animation by the elapsed frame time and reports
// whether the animation has completed.
type TickFunc func(dt time.Duration) bool

// Handle is the tracker's unit of ownership: one named animation bound to
// one owner. Callers and completion callbacks share the handle instead of
// capturing the owning entity.
type Handle struct {
	owner string
	name  string

	tick     TickFunc
	onDone   func()
	onCancel func()
}

// NewHandle wraps a raw tick function. onDone fires when the tick reports
// completion, onCancel when the tracker replaces or tears the handle down.
func NewHandle(tick TickFunc, onDone, onCancel func()) *Handle {
	return &Handle{tick: tick, onDone: onDone, onCancel: onCancel}
}

// Owner returns the owning entity id once the handle is registered.
func (h *Handle) Owner() string {
	if h == nil {
		return ""
	}
	return h.owner
}

// Name returns the animation id once the handle is registered.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// Tween describes a time-bounded eased property mutation.
type Tween struct {
	Delay    time.Duration
	Duration time.Duration
	Ease     EaseFunc
	// Apply receives eased progress in [0,1].
	Apply  func(t float64)
	OnDone func()
	// OnCancel fires if the tween is replaced or torn down before it
	// completes.
	OnCancel func()
}

// NewTween builds a Handle that drives the tween from 0 to 1 over its
// duration, honoring the start delay.
func NewTween(tw Tween) *Handle {
	ease := tw.Ease
	if ease == nil {
		ease = Linear
	}
	var elapsed time.Duration
	tick := func(dt time.Duration) bool {
		elapsed += dt
		if elapsed < tw.Delay {
			return false
		}
		if tw.Duration <= 0 {
			if tw.Apply != nil {
				tw.Apply(1)
			}
			return true
		}
		progress := float64(elapsed-tw.Delay) / float64(tw.Duration)
		if progress >= 1 {
			progress = 1
		}
		if tw.Apply != nil {
			tw.Apply(ease(progress))
		}
		return progress >= 1
	}
	return NewHandle(tick, tw.OnDone, tw.OnCancel)
}
