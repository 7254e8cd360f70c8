// Package stage implements the replicated theatre: the insert registry,
// its scene graph, and the animation-gated render loop. A Session is one
// client's authoritative local copy; the peersync package replays its
// broadcasts onto every other client.
package stage

import (
	"context"
	"sort"
	"sync"
	"time"

	"footlights/stage/internal/anim"
	"footlights/stage/internal/dock"
	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/render"
	"footlights/stage/internal/scene"
	"footlights/stage/internal/telemetry"
	"footlights/stage/logging"
	"footlights/stage/logging/lifecycle"
)

// Deps are the host collaborators a Session needs. Nil fields degrade to
// no-ops so tests can supply only what they assert on.
type Deps struct {
	Actors    host.Directory
	Identity  host.Identity
	Notifier  host.Notifier
	Settings  host.SettingsStore
	Loader    host.AssetLoader
	Renderer  scene.Renderer
	Clock     logging.Clock
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
}

// Broadcaster receives the session's outbound replication traffic. The sync
// protocol implements it; a nil broadcaster makes the session standalone.
type Broadcaster interface {
	SceneChanged(ev proto.SceneEvent)
	TypingChanged(t proto.Typing)
}

// Session is one client's stage. All mutations funnel through its mutex, so
// operations, animation ticks, and deferred timers never interleave.
type Session struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	inserts   map[string]*Insert
	staged    map[string]bool
	typing    map[string]*typingState
	narrator  bool
	renderSeq int
	caster    Broadcaster
	onChange  func()
	clearWait *clearWaiter
	closed    bool

	tracker *anim.Tracker
	loop    *render.Loop
	bar     *dock.Manager
}

func NewSession(cfg Config, deps Deps) *Session {
	if cfg.RemoveDelay <= 0 {
		cfg = DefaultConfig()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	s := &Session{
		cfg:     cfg,
		deps:    deps,
		inserts: make(map[string]*Insert),
		staged:  make(map[string]bool),
		typing:  make(map[string]*typingState),
	}
	s.tracker = anim.NewTracker(deps.Publisher)
	s.bar = dock.NewManager(cfg.Dock, s.tracker, s.applyPlacements)
	s.loop = render.NewLoop(cfg.Render, s, s, deps.Clock, deps.Publisher)
	s.tracker.SetWake(s.loop.Wake)
	return s
}

// SetBroadcaster wires the outbound replication sink.
func (s *Session) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.caster = b
	s.mu.Unlock()
}

// OnStageChanged registers a callback fired after any layout-visible
// mutation settles. Host UIs repaint from it.
func (s *Session) OnStageChanged(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Tracker exposes the animation tracker for host-driven effects.
func (s *Session) Tracker() *anim.Tracker { return s.tracker }

// Loop exposes the render loop, mainly for tests and shutdown.
func (s *Session) Loop() *render.Loop { return s.loop }

// Dock exposes the layout manager for read-side queries.
func (s *Session) Dock() *dock.Manager { return s.bar }

// Close tears the session down: the loop parks, timers are cancelled, and
// remaining inserts are destroyed without exit animations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id := range s.inserts {
		s.destroyLocked(id, "shutdown")
	}
	for userID := range s.typing {
		s.clearTypingLocked(userID)
	}
	s.mu.Unlock()
	s.bar.Close()
	s.loop.Close()
}

// Advance implements render.Source. Ticks run under the session lock so
// tween apply closures are serialized with every other mutation.
func (s *Session) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.Advance(dt)
}

func (s *Session) ActiveCount() int { return s.tracker.ActiveCount() }
func (s *Session) Frame() uint64    { return s.tracker.Frame() }

// RenderFrame implements render.FrameScene: renders every insert's subtree
// in render order and hot-ejects any whose subtree has gone invalid, so one
// corrupt insert cannot take the whole stage down.
func (s *Session) RenderFrame() {
	s.mu.Lock()
	var ejected []string
	live := make([]*Insert, 0, len(s.inserts))
	for id, ins := range s.inserts {
		if !ins.valid() {
			ejected = append(ejected, id)
			continue
		}
		live = append(live, ins)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].RenderOrder < live[j].RenderOrder })
	for _, ins := range live {
		if s.deps.Renderer != nil {
			if err := s.deps.Renderer.Render(ins.root); err != nil {
				s.logf("render %s: %v", ins.ID, err)
				ejected = append(ejected, ins.ID)
			}
		}
	}
	for _, id := range ejected {
		lifecycle.InsertEjected(context.Background(), s.deps.Publisher, s.tracker.Frame(),
			logging.EntityRef{ID: id, Kind: logging.EntityKindInsert}, "invalid_subtree")
		s.deps.Metrics.Add("stage.inserts_ejected", 1)
		s.destroyLocked(id, "ejected")
	}
	changed := len(ejected) > 0
	s.mu.Unlock()
	if changed {
		s.stageChanged()
	}
}

// applyPlacements is the dock manager's reorder callback: it moves each
// insert to its new bar slot and refreshes orientation and font hints.
func (s *Session) applyPlacements(placements []dock.Placement) {
	s.mu.Lock()
	for i, p := range placements {
		ins, ok := s.inserts[p.InsertID]
		if !ok {
			continue
		}
		ins.Order = i
		ins.ExitOrientation = p.ExitOrientation
		ins.NameOrientation = p.NameOrientation
		if ins.root != nil {
			s.slideTo(ins, p.X)
			if label := ins.root.Child(nodeLabel); label != nil {
				label.FontSize = p.FontSize
				if p.NameOrientation == dock.OrientRight {
					label.X = p.Width
				} else {
					label.X = 0
				}
			}
		}
	}
	s.mu.Unlock()
	s.stageChanged()
}

// slideTo animates an insert's root toward a new bar position. Repeated
// reorders replace the in-flight slide.
func (s *Session) slideTo(ins *Insert, x float64) {
	root := ins.root
	from := root.X
	if from == x {
		return
	}
	s.tracker.Add(ins.ID, "dockslide", anim.NewTween(anim.Tween{
		Duration: s.cfg.Dock.ReorderDelay * 4,
		Ease:     anim.EaseOutCubic,
		Apply: func(t float64) {
			root.X = from + (x-from)*t
		},
	}))
}

// emit broadcasts a scene event to peers. Called off the session lock.
func (s *Session) emit(ev proto.SceneEvent) {
	s.mu.Lock()
	caster := s.caster
	s.mu.Unlock()
	if caster != nil {
		caster.SceneChanged(ev)
	}
}

func (s *Session) stageChanged() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.deps.Logger != nil {
		s.deps.Logger.Printf(format, args...)
	}
}

func (s *Session) warn(msg string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Warn(msg)
	}
}

// canControl reports whether the local user may act on the actor. GMs may
// act on anything.
func (s *Session) canControl(actor host.Actor) bool {
	if s.deps.Identity == nil {
		return true
	}
	if s.deps.Identity.IsGM() {
		return true
	}
	return actor.OwnedBy(s.deps.Identity.UserID())
}

func (s *Session) localUser() string {
	if s.deps.Identity == nil {
		return ""
	}
	return s.deps.Identity.UserID()
}

// destroyLocked is the single teardown path: animations first, then the
// dock box, then the subtree, then the registry entry. Caller holds s.mu.
func (s *Session) destroyLocked(id string, reason string) {
	ins, ok := s.inserts[id]
	if !ok {
		return
	}
	for userID, state := range s.typing {
		if state.insertID == id {
			s.clearTypingLocked(userID)
		}
	}
	s.tracker.RemoveAll(id)
	s.tracker.RemoveAll(textOwner(id))
	s.bar.RemoveBox(id)
	if ins.root != nil {
		ins.root.Destroy()
		ins.root = nil
	}
	delete(s.inserts, id)
	lifecycle.InsertRemoved(context.Background(), s.deps.Publisher, s.tracker.Frame(),
		logging.EntityRef{ID: id, Kind: logging.EntityKindInsert},
		lifecycle.InsertRemovedPayload{Reason: reason})
	if s.clearWait != nil {
		s.clearWait.remaining--
		if s.clearWait.remaining <= 0 {
			done := s.clearWait.done
			s.clearWait = nil
			if done != nil {
				go done()
			}
		}
	}
}
