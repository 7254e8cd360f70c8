package render

import (
	"context"
	"sync"
	"time"

	"footlights/stage/logging"
	renderlog "footlights/stage/logging/render"
)

// Source is the animation tracker as seen by the loop: something that can
// be advanced each frame and reports how many animations remain.
type Source interface {
	Advance(dt time.Duration)
	ActiveCount() int
	Frame() uint64
}

// FrameScene renders every live insert's subtree for one frame. Implemented
// by the stage session, which also hot-ejects inserts whose subtree has
// gone missing.
type FrameScene interface {
	RenderFrame()
}

type Config struct {
	FrameInterval time.Duration
}

func DefaultConfig() Config {
	return Config{FrameInterval: 33 * time.Millisecond}
}

// Loop schedules frames only while the source's active count is positive.
// It is woken by the tracker's 0 -> 1 edge and parks itself as soon as the
// count drains, so an idle stage costs nothing.
type Loop struct {
	cfg    Config
	source Source
	scene  FrameScene
	clock  logging.Clock
	pub    logging.Publisher

	mu      sync.Mutex
	running bool
	closed  bool
	stopc   chan struct{}
}

func NewLoop(cfg Config, source Source, scene FrameScene, clock logging.Clock, pub logging.Publisher) *Loop {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultConfig().FrameInterval
	}
	if clock == nil {
		clock = logging.SystemClock{}
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Loop{
		cfg:    cfg,
		source: source,
		scene:  scene,
		clock:  clock,
		pub:    pub,
		stopc:  make(chan struct{}),
	}
}

// Wake transitions the loop from idle to running. Safe to call at any time;
// a running loop ignores it.
func (l *Loop) Wake() {
	l.mu.Lock()
	if l.running || l.closed {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	renderlog.LoopStarted(context.Background(), l.pub, l.source.Frame())
	go l.run()
}

// Running reports whether the loop is currently scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Close stops the loop permanently. Wake becomes a no-op afterwards.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.running = false
	close(l.stopc)
	l.mu.Unlock()
}

func (l *Loop) run() {
	ticker := time.NewTicker(l.cfg.FrameInterval)
	defer ticker.Stop()

	last := l.clock.Now()
	for {
		select {
		case <-l.stopc:
			return
		case <-ticker.C:
		}

		now := l.clock.Now()
		dt := now.Sub(last)
		if dt <= 0 {
			dt = l.cfg.FrameInterval
		}
		last = now

		if !l.step(dt) {
			return
		}
	}
}

// step advances animations, renders the frame, and decides whether the loop
// keeps rescheduling. Returns false once the loop has parked.
func (l *Loop) step(dt time.Duration) bool {
	l.source.Advance(dt)
	if l.scene != nil {
		l.scene.RenderFrame()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	if l.source.ActiveCount() > 0 {
		l.mu.Unlock()
		return true
	}
	l.running = false
	l.mu.Unlock()

	renderlog.LoopIdle(context.Background(), l.pub, l.source.Frame())
	return false
}
