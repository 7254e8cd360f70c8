package anim

import (
	"context"
	"sync"
	"time"

	"footlights/stage/logging"
	renderlog "footlights/stage/logging/render"
)

// Tracker registers every running animation keyed by (owner, animation id)
// and maintains the global active count that gates the render loop.
type Tracker struct {
	mu     sync.Mutex
	owners map[string]map[string]*Handle
	active int
	frame  uint64
	wake   func()
	pub    logging.Publisher
}

func NewTracker(pub logging.Publisher) *Tracker {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Tracker{
		owners: make(map[string]map[string]*Handle),
		pub:    pub,
	}
}

// SetWake registers the render loop's wake callback, invoked on every
// 0 -> 1 active-count transition.
func (t *Tracker) SetWake(wake func()) {
	t.mu.Lock()
	t.wake = wake
	t.mu.Unlock()
}

// Add registers handle under (ownerID, animationID). An existing animation
// under the same pair is cancelled and replaced without touching the active
// count.
func (t *Tracker) Add(ownerID, animationID string, handle *Handle) {
	if t == nil || handle == nil {
		return
	}
	var cancelled *Handle
	var wake func()

	t.mu.Lock()
	handle.owner = ownerID
	handle.name = animationID
	anims, ok := t.owners[ownerID]
	if !ok {
		anims = make(map[string]*Handle)
		t.owners[ownerID] = anims
	}
	if existing, ok := anims[animationID]; ok {
		cancelled = existing
	} else {
		t.active++
		if t.active == 1 {
			wake = t.wake
		}
	}
	anims[animationID] = handle
	t.mu.Unlock()

	if cancelled != nil && cancelled.onCancel != nil {
		cancelled.onCancel()
	}
	if wake != nil {
		wake()
	}
}

// Remove cancels the animation under (ownerID, animationID) and decrements
// the active count. Removing a pair that is not registered would drive the
// count negative; that is surfaced as a diagnostic and clamped.
func (t *Tracker) Remove(ownerID, animationID string) {
	if t == nil {
		return
	}
	var cancelled *Handle
	underflow := false

	t.mu.Lock()
	frame := t.frame
	if anims, ok := t.owners[ownerID]; ok {
		if existing, ok := anims[animationID]; ok {
			cancelled = existing
			delete(anims, animationID)
			if len(anims) == 0 {
				delete(t.owners, ownerID)
			}
			t.active--
		}
	}
	if cancelled == nil {
		underflow = true
	}
	t.mu.Unlock()

	if underflow {
		renderlog.CountUnderflow(context.Background(), t.pub, frame, renderlog.UnderflowPayload{
			Owner:     ownerID,
			Animation: animationID,
		})
		return
	}
	if cancelled.onCancel != nil {
		cancelled.onCancel()
	}
}

// RemoveAll tears down every animation for an owner. Used on insert
// destruction; missing owners are a no-op, not an underflow.
func (t *Tracker) RemoveAll(ownerID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	anims := t.owners[ownerID]
	delete(t.owners, ownerID)
	cancelled := make([]*Handle, 0, len(anims))
	for _, handle := range anims {
		cancelled = append(cancelled, handle)
		t.active--
	}
	t.mu.Unlock()

	for _, handle := range cancelled {
		if handle.onCancel != nil {
			handle.onCancel()
		}
	}
}

// ActiveCount reports how many animations are currently registered.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Frame reports how many advance passes have run.
func (t *Tracker) Frame() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

// Advance ticks every registered animation by dt. Completed animations are
// unregistered before their completion callbacks run, so a callback that
// re-adds under the same id (standing animations re-chain this way) counts
// as a fresh registration.
func (t *Tracker) Advance(dt time.Duration) {
	t.mu.Lock()
	t.frame++
	handles := make([]*Handle, 0, t.active)
	for _, anims := range t.owners {
		for _, handle := range anims {
			handles = append(handles, handle)
		}
	}
	t.mu.Unlock()

	var finished []*Handle
	for _, handle := range handles {
		if !t.isLive(handle) {
			continue
		}
		if handle.tick != nil && handle.tick(dt) {
			finished = append(finished, handle)
		}
	}
	for _, handle := range finished {
		t.finish(handle)
	}
}

func (t *Tracker) isLive(handle *Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	anims, ok := t.owners[handle.owner]
	if !ok {
		return false
	}
	return anims[handle.name] == handle
}

func (t *Tracker) finish(handle *Handle) {
	t.mu.Lock()
	live := false
	if anims, ok := t.owners[handle.owner]; ok && anims[handle.name] == handle {
		delete(anims, handle.name)
		if len(anims) == 0 {
			delete(t.owners, handle.owner)
		}
		t.active--
		live = true
	}
	t.mu.Unlock()

	if live && handle.onDone != nil {
		handle.onDone()
	}
}
