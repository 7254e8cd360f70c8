package render

import (
	"sync"
	"testing"
	"time"

	"footlights/stage/internal/anim"
)

type frameCounter struct {
	mu     sync.Mutex
	frames int
}

func (f *frameCounter) RenderFrame() {
	f.mu.Lock()
	f.frames++
	f.mu.Unlock()
}

func (f *frameCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestLoopIdleUntilWoken(t *testing.T) {
	tr := anim.NewTracker(nil)
	scene := &frameCounter{}
	loop := NewLoop(Config{FrameInterval: 2 * time.Millisecond}, tr, scene, nil, nil)
	defer loop.Close()
	tr.SetWake(loop.Wake)

	if loop.Running() {
		t.Fatalf("loop should start idle")
	}
	time.Sleep(10 * time.Millisecond)
	if scene.count() != 0 {
		t.Fatalf("idle loop rendered %d frames", scene.count())
	}
}

func TestLoopRunsWhileActiveAndParksOnDrain(t *testing.T) {
	tr := anim.NewTracker(nil)
	scene := &frameCounter{}
	loop := NewLoop(Config{FrameInterval: 2 * time.Millisecond}, tr, scene, nil, nil)
	defer loop.Close()
	tr.SetWake(loop.Wake)

	tr.Add("ins", "fade", anim.NewTween(anim.Tween{
		Duration: 20 * time.Millisecond,
		Apply:    func(float64) {},
	}))

	waitFor(t, time.Second, func() bool { return scene.count() > 0 })
	if !loop.Running() {
		t.Fatalf("loop should be running with an active animation")
	}

	waitFor(t, time.Second, func() bool { return !loop.Running() })
	if got := tr.ActiveCount(); got != 0 {
		t.Fatalf("tracker not drained: %d", got)
	}
}

func TestLoopRewakesAfterParking(t *testing.T) {
	tr := anim.NewTracker(nil)
	scene := &frameCounter{}
	loop := NewLoop(Config{FrameInterval: 2 * time.Millisecond}, tr, scene, nil, nil)
	defer loop.Close()
	tr.SetWake(loop.Wake)

	tr.Add("ins", "one", anim.NewTween(anim.Tween{Duration: 5 * time.Millisecond, Apply: func(float64) {}}))
	waitFor(t, time.Second, func() bool { return !loop.Running() })

	before := scene.count()
	tr.Add("ins", "two", anim.NewTween(anim.Tween{Duration: 5 * time.Millisecond, Apply: func(float64) {}}))
	waitFor(t, time.Second, func() bool { return scene.count() > before })
	waitFor(t, time.Second, func() bool { return !loop.Running() })
}

func TestLoopCloseStopsPermanently(t *testing.T) {
	tr := anim.NewTracker(nil)
	loop := NewLoop(Config{FrameInterval: 2 * time.Millisecond}, tr, nil, nil, nil)
	tr.SetWake(loop.Wake)

	loop.Close()
	tr.Add("ins", "one", anim.NewTween(anim.Tween{Duration: 5 * time.Millisecond, Apply: func(float64) {}}))
	if loop.Running() {
		t.Fatalf("closed loop accepted a wake")
	}
}
