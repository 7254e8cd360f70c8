package peersync

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/stage"
	"footlights/stage/logging"
	protolog "footlights/stage/logging/protocol"
)

func testActors() *host.MemoryDirectory {
	return host.NewMemoryDirectory(
		host.Actor{ID: "alice", Name: "Alice", Portrait: "art/alice.png", Owners: map[string]bool{"user-a": true}},
		host.Actor{ID: "bob", Name: "Bob", Portrait: "art/bob.png", Owners: map[string]bool{"user-b": true}},
	)
}

func testStageConfig() stage.Config {
	cfg := stage.DefaultConfig()
	cfg.Dock.ReorderDelay = time.Millisecond
	cfg.Dock.SingleGrowth = 5 * time.Millisecond
	cfg.Render.FrameInterval = 5 * time.Millisecond
	cfg.RemoveDelay = 10 * time.Millisecond
	cfg.ExitDuration = 5 * time.Millisecond
	cfg.FlyInDuration = 10 * time.Millisecond
	return cfg
}

func testSyncConfig() Config {
	return Config{
		TypingRate:    rate.Every(200 * time.Millisecond),
		TypingBurst:   1,
		ResyncTimeout: 150 * time.Millisecond,
		ClearSettle:   50 * time.Millisecond,
		PositionDelay: 20 * time.Millisecond,
	}
}

type client struct {
	session  *stage.Session
	protocol *Protocol
}

func newClient(t *testing.T, bus *host.LoopbackBus, userID string, gm bool, pub logging.Publisher) *client {
	t.Helper()
	identity := host.StaticIdentity{ID: userID, GM: gm}
	loader := host.NewStubLoader()
	session := stage.NewSession(testStageConfig(), stage.Deps{
		Actors:    testActors(),
		Identity:  identity,
		Notifier:  &host.MemoryNotifier{},
		Loader:    loader,
		Publisher: pub,
	})
	t.Cleanup(session.Close)

	protocol := New(testSyncConfig(), Deps{
		Session:   session,
		Transport: bus.Endpoint(userID),
		Identity:  identity,
		Directory: testActors(),
		Loader:    loader,
		Notifier:  &host.MemoryNotifier{},
		Publisher: pub,
	})
	t.Cleanup(protocol.Close)
	return &client{session: session, protocol: protocol}
}

func waitCount(t *testing.T, s *stage.Session, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.InsertCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("insert count %d never reached %d", s.InsertCount(), want)
}

func waitPhase(t *testing.T, r *Resync, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Phase() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("phase %v never reached %v", r.Phase(), want)
}

func TestSceneEventsReplicate(t *testing.T) {
	bus := host.NewLoopbackBus()
	a := newClient(t, bus, "user-a", false, nil)
	b := newClient(t, bus, "user-b", false, nil)

	a.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, b.session, 1)

	a.session.RemoveInsert("alice", false)
	waitCount(t, b.session, 0)
}

func TestRemoteEventsDoNotEcho(t *testing.T) {
	bus := host.NewLoopbackBus()
	a := newClient(t, bus, "user-a", false, nil)
	b := newClient(t, bus, "user-b", false, nil)

	var mu sync.Mutex
	envelopes := 0
	spy := bus.Endpoint("spy")
	spy.SetHandler(func(env proto.Envelope) {
		mu.Lock()
		if env.Type == proto.TypeSceneEvent {
			envelopes++
		}
		mu.Unlock()
	})

	a.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, b.session, 1)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if envelopes != 1 {
		t.Fatalf("expected a single enterscene on the wire, got %d", envelopes)
	}
}

func TestTypingRateLimitIsOutboundOnly(t *testing.T) {
	bus := host.NewLoopbackBus()
	a := newClient(t, bus, "user-a", false, nil)
	b := newClient(t, bus, "user-b", false, nil)

	var mu sync.Mutex
	typingOnWire := 0
	spy := bus.Endpoint("spy")
	spy.SetHandler(func(env proto.Envelope) {
		mu.Lock()
		if env.Type == proto.TypeTypingEvent {
			typingOnWire++
		}
		mu.Unlock()
	})

	a.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, b.session, 1)

	// Keystroke burst: only the first typing event may hit the wire.
	for i := 0; i < 5; i++ {
		a.session.LocalTyping("alice")
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	wire := typingOnWire
	mu.Unlock()
	if wire != 1 {
		t.Fatalf("expected 1 rate-limited typing event, got %d", wire)
	}
	if b.session.TypingUsers() != 1 {
		t.Fatalf("peer should show the typing indicator")
	}
}

func TestResyncAnyRecoversFromActivePeer(t *testing.T) {
	bus := host.NewLoopbackBus()
	b := newClient(t, bus, "user-b", false, nil)
	b.session.InjectInsert(stage.InjectArgs{ID: "alice", Emotions: proto.Emotions{Emote: "happy"}}, false)
	b.session.InjectInsert(stage.InjectArgs{ID: "bob"}, false)
	b.session.SetNarrator(true, false)
	waitCount(t, b.session, 2)

	// A joins late with an empty stage.
	a := newClient(t, bus, "user-a", false, nil)
	a.protocol.Resync().Request(proto.KindAny)

	waitPhase(t, a.protocol.Resync(), PhaseDone)
	waitCount(t, a.session, 2)
	if !a.session.NarratorActive() {
		t.Fatalf("narrator state not recovered")
	}

	states := a.session.SnapshotInserts()
	if states[0].InsertID != "alice" || states[1].InsertID != "bob" {
		t.Fatalf("recovered order wrong: %v, %v", states[0].InsertID, states[1].InsertID)
	}
	if states[0].Emotions.Emote != "happy" {
		t.Fatalf("recovered emote wrong: %+v", states[0].Emotions)
	}
}

func TestResyncFirstResponderWins(t *testing.T) {
	var mu sync.Mutex
	ignored := 0
	pub := logging.PublisherFunc(func(_ context.Context, ev logging.Event) {
		mu.Lock()
		if ev.Type == protolog.EventResyncIgnored {
			ignored++
		}
		mu.Unlock()
	})

	bus := host.NewLoopbackBus()
	b := newClient(t, bus, "user-b", false, nil)
	c := newClient(t, bus, "user-c", false, nil)
	b.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, b.session, 1)
	waitCount(t, c.session, 1)

	a := newClient(t, bus, "user-a", false, pub)
	a.protocol.Resync().Request(proto.KindAny)

	waitPhase(t, a.protocol.Resync(), PhaseDone)
	waitCount(t, a.session, 1)

	// Both b and c answered; exactly one snapshot was applied.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := ignored
		mu.Unlock()
		if n >= 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("second responder's snapshot was not ignored")
}

func TestResyncGMKindNeedsAGM(t *testing.T) {
	bus := host.NewLoopbackBus()
	b := newClient(t, bus, "user-b", false, nil)
	b.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, b.session, 1)

	a := newClient(t, bus, "user-a", false, nil)
	a.protocol.Resync().Request(proto.KindGM)

	// No GM is connected: the request expires back to idle.
	waitPhase(t, a.protocol.Resync(), PhaseIdle)
	if a.session.InsertCount() != 0 {
		t.Fatalf("non-GM peer must not answer a gm-kind request")
	}
}

func TestResyncGMKindAnsweredByGM(t *testing.T) {
	bus := host.NewLoopbackBus()
	gm := newClient(t, bus, "user-gm", true, nil)
	gm.session.InjectInsert(stage.InjectArgs{ID: "alice"}, false)
	waitCount(t, gm.session, 1)

	a := newClient(t, bus, "user-a", false, nil)
	a.protocol.Resync().Request(proto.KindGM)

	waitPhase(t, a.protocol.Resync(), PhaseDone)
	waitCount(t, a.session, 1)
}

func TestResyncInactivePeerStaysSilent(t *testing.T) {
	bus := host.NewLoopbackBus()
	newClient(t, bus, "user-b", false, nil) // empty stage

	a := newClient(t, bus, "user-a", false, nil)
	a.protocol.Resync().Request(proto.KindAny)

	waitPhase(t, a.protocol.Resync(), PhaseIdle)
}

func TestPlayersPushForcesEveryone(t *testing.T) {
	bus := host.NewLoopbackBus()
	gm := newClient(t, bus, "user-gm", true, nil)
	b := newClient(t, bus, "user-b", false, nil)

	// b has drifted: it holds state the GM does not.
	b.session.InjectInsert(stage.InjectArgs{ID: "bob"}, true)
	waitCount(t, b.session, 1)

	gm.session.InjectInsert(stage.InjectArgs{ID: "alice"}, true)
	waitCount(t, gm.session, 1)
	gm.protocol.Resync().Request(proto.KindPlayers)

	waitPhase(t, b.protocol.Resync(), PhaseDone)
	waitCount(t, b.session, 1)
	states := b.session.SnapshotInserts()
	if states[0].InsertID != "alice" {
		t.Fatalf("push did not replace drifted state: %v", states[0].InsertID)
	}

	// The GM self-applies the same snapshot.
	waitPhase(t, gm.protocol.Resync(), PhaseDone)
	waitCount(t, gm.session, 1)
}

func TestPlayersPushDeniedForNonGM(t *testing.T) {
	bus := host.NewLoopbackBus()
	a := newClient(t, bus, "user-a", false, nil)
	b := newClient(t, bus, "user-b", false, nil)

	a.protocol.Resync().Request(proto.KindPlayers)
	time.Sleep(20 * time.Millisecond)
	if b.protocol.Resync().Phase() != PhaseIdle {
		t.Fatalf("non-GM push should never reach peers")
	}
	if a.protocol.Resync().Phase() != PhaseIdle {
		t.Fatalf("denied push should leave the requester idle")
	}
}
