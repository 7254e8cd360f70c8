package stage

import (
	"errors"
	"testing"
	"time"

	"footlights/stage/internal/dock"
	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/scene"
)

type captureBroadcaster struct {
	scenes []proto.SceneEvent
	typing []proto.Typing
}

func (c *captureBroadcaster) SceneChanged(ev proto.SceneEvent) { c.scenes = append(c.scenes, ev) }
func (c *captureBroadcaster) TypingChanged(t proto.Typing)    { c.typing = append(c.typing, t) }

func testActors() *host.MemoryDirectory {
	return host.NewMemoryDirectory(
		host.Actor{
			ID:       "alice",
			Name:     "Alice",
			Portrait: "art/alice.png",
			Owners:   map[string]bool{"user-1": true},
			Emotes: map[string]host.EmoteArt{
				"happy": {Name: "happy", Image: "art/alice-happy.png"},
			},
		},
		host.Actor{
			ID:       "bob",
			Name:     "Bob",
			Portrait: "art/bob.png",
			Owners:   map[string]bool{"user-2": true},
		},
		host.Actor{
			ID:           "casey",
			Name:         "Casey",
			Portrait:     "art/casey.png",
			Owners:       map[string]bool{"user-1": true},
			DelayedEmote: true,
		},
	)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dock.ReorderDelay = time.Millisecond
	cfg.Dock.SingleGrowth = 10 * time.Millisecond
	cfg.Render.FrameInterval = 5 * time.Millisecond
	cfg.RemoveDelay = 10 * time.Millisecond
	cfg.ExitDuration = 5 * time.Millisecond
	cfg.TypingIdle = 50 * time.Millisecond
	cfg.DecayDuration = 30 * time.Millisecond
	cfg.FlyInDuration = 20 * time.Millisecond
	cfg.FlyInStagger = 2 * time.Millisecond
	return cfg
}

func newTestSession(t *testing.T, identity host.Identity) (*Session, *host.MemoryNotifier, *host.StubLoader) {
	t.Helper()
	notifier := &host.MemoryNotifier{}
	loader := host.NewStubLoader()
	s := NewSession(testConfig(), Deps{
		Actors:   testActors(),
		Identity: identity,
		Notifier: notifier,
		Settings: host.NewMemorySettings(),
		Loader:   loader,
		Renderer: scene.NewMemoryRenderer(),
	})
	t.Cleanup(s.Close)
	return s, notifier, loader
}

func waitReady(t *testing.T, s *Session, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ins, ok := s.inserts[id]
		ready := ok && ins.root != nil
		s.mu.Unlock()
		if ready {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("insert %s never became ready", id)
}

func waitGone(t *testing.T, s *Session, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, ok := s.inserts[id]
		s.mu.Unlock()
		if !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("insert %s never destroyed", id)
}

func TestInjectLeftThenRightYieldsDual(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})

	// Left on an empty stage is topologically impossible and degrades.
	if ok, reason := s.InjectInsert(InjectArgs{ID: "alice", IsLeft: true}, false); !ok {
		t.Fatalf("inject alice: %s", reason)
	}
	if ok, reason := s.InjectInsert(InjectArgs{ID: "bob"}, false); !ok {
		t.Fatalf("inject bob: %s", reason)
	}
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")

	if got := s.Dock().Layout(); got != dock.LayoutDual {
		t.Fatalf("layout = %v, want dual", got)
	}
	order := s.Dock().Order()
	if order[0] != "alice" || order[1] != "bob" {
		t.Fatalf("bar order: %v", order)
	}

	placements := s.Dock().Reorder()
	if placements[0].ExitOrientation != dock.OrientLeft {
		t.Fatalf("alice should exit left")
	}
	if placements[1].ExitOrientation != dock.OrientRight {
		t.Fatalf("bob should exit right")
	}
}

func TestInjectUnknownActorAborts(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	ok, reason := s.InjectInsert(InjectArgs{ID: "ghost"}, false)
	if ok || reason != RejectUnknownActor {
		t.Fatalf("expected unknown actor rejection, got ok=%v reason=%s", ok, reason)
	}
	if s.InsertCount() != 0 {
		t.Fatalf("state changed on failed inject")
	}
}

func TestDuplicateInjectLocalRefusedRemoteIgnored(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)

	if ok, reason := s.InjectInsert(InjectArgs{ID: "alice"}, false); ok || reason != RejectDuplicate {
		t.Fatalf("local duplicate: ok=%v reason=%s", ok, reason)
	}
	// Remote duplicate is a replication race, not an error.
	if ok, _ := s.InjectInsert(InjectArgs{ID: "alice"}, true); !ok {
		t.Fatalf("remote duplicate should be silently accepted")
	}
	if s.InsertCount() != 1 {
		t.Fatalf("duplicate changed state: %d inserts", s.InsertCount())
	}
}

func TestAssetFailureDestroysInsert(t *testing.T) {
	s, notifier, loader := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	loader.Fail["art/alice.png"] = errors.New("404")

	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitGone(t, s, "alice")
	if notifier.WarningCount() == 0 {
		t.Fatalf("expected a user-visible warning")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	caster := &captureBroadcaster{}
	s.SetBroadcaster(caster)

	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	if ok, _ := s.RemoveInsert("alice", false); !ok {
		t.Fatalf("first remove failed")
	}
	if ok, _ := s.RemoveInsert("alice", false); !ok {
		t.Fatalf("second remove should be a no-op success")
	}
	waitGone(t, s, "alice")

	exits := 0
	for _, ev := range caster.scenes {
		if _, isExit := ev.(proto.ExitScene); isExit {
			exits++
		}
	}
	if exits != 1 {
		t.Fatalf("expected a single exitscene broadcast, got %d", exits)
	}
}

func TestRemoveUnknownLocalRejected(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	if ok, reason := s.RemoveInsert("ghost", false); ok || reason != RejectUnknownInsert {
		t.Fatalf("expected rejection, got ok=%v reason=%s", ok, reason)
	}
	if ok, _ := s.RemoveInsert("ghost", true); !ok {
		t.Fatalf("remote removal of unknown insert should be ignored")
	}
}

func TestRemovalTearsDownAnimationsBeforeState(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.RemoveInsert("alice", false)
	waitGone(t, s, "alice")

	// Everything the insert owned must be unregistered; a leak here
	// would keep the render loop spinning forever.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.ActiveCount() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("animations leaked after destruction: %d", s.ActiveCount())
}

func TestEmoteWithoutArtFallsBackToPortrait(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	caster := &captureBroadcaster{}
	s.SetBroadcaster(caster)

	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.SetEmote("alice", proto.Emotions{Emote: "confused"}, false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ins := s.inserts["alice"]
		texture := ins.root.Child(nodePortrait).Texture
		emote := ins.Emote
		s.mu.Unlock()
		if emote == "confused" && texture == "art/alice.png" {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.mu.Lock()
	texture := s.inserts["alice"].root.Child(nodePortrait).Texture
	s.mu.Unlock()
	if texture != "art/alice.png" {
		t.Fatalf("expected base portrait fallback, got %q", texture)
	}

	found := false
	for _, ev := range caster.scenes {
		if em, ok := ev.(proto.Emote); ok && em.Emotions.Emote == "confused" {
			found = true
		}
	}
	if !found {
		t.Fatalf("emote broadcast should carry the artless emote")
	}
}

func TestEmoteWithArtSwapsTexture(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.SetEmote("alice", proto.Emotions{Emote: "happy"}, false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		texture := s.inserts["alice"].root.Child(nodePortrait).Texture
		s.mu.Unlock()
		if texture == "art/alice-happy.png" {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("emote art never applied")
}

func TestDelayedEmoteBuffersWhileComposing(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	caster := &captureBroadcaster{}
	s.SetBroadcaster(caster)

	s.InjectInsert(InjectArgs{ID: "casey"}, false)
	waitReady(t, s, "casey")

	s.LocalTyping("casey")
	s.SetEmote("casey", proto.Emotions{Emote: "angry"}, false)

	s.mu.Lock()
	buffered := s.inserts["casey"].pendingEmote != nil
	visible := s.inserts["casey"].Emote
	s.mu.Unlock()
	if !buffered {
		t.Fatalf("delayed emote was not buffered")
	}
	if visible == "angry" {
		t.Fatalf("buffered emote leaked into visible state")
	}

	s.FlushEmote("casey")
	s.mu.Lock()
	visible = s.inserts["casey"].Emote
	s.mu.Unlock()
	if visible != "angry" {
		t.Fatalf("flush did not apply buffered emote, got %q", visible)
	}
}

func TestSwapRequiresPermission(t *testing.T) {
	// user-3 owns neither alice nor bob; both are player-owned though,
	// so rearranging is allowed.
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-3"})
	s.InjectInsert(InjectArgs{ID: "alice"}, true)
	s.InjectInsert(InjectArgs{ID: "bob"}, true)
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")

	if ok, _ := s.SwapInserts("alice", "bob", false); !ok {
		t.Fatalf("swap of two player-owned inserts should be allowed")
	}
}

func TestSwapDeniedForUnownedGMActor(t *testing.T) {
	s, notifier, _ := newTestSession(t, host.StaticIdentity{ID: "user-2"})
	// casey is owned by user-1, alice too; bob by user-2. Make alice
	// GM-only by clearing owners.
	s.deps.Actors.(*host.MemoryDirectory).Put(host.Actor{
		ID: "alice", Name: "Alice", Portrait: "art/alice.png",
	})
	s.deps.Actors.(*host.MemoryDirectory).Put(host.Actor{
		ID: "casey", Name: "Casey", Portrait: "art/casey.png",
	})

	s.InjectInsert(InjectArgs{ID: "alice"}, true)
	s.InjectInsert(InjectArgs{ID: "casey"}, true)
	waitReady(t, s, "alice")
	waitReady(t, s, "casey")

	if ok, reason := s.SwapInserts("alice", "casey", false); ok || reason != RejectNoPermission {
		t.Fatalf("swap of two unowned inserts should be denied, got ok=%v", ok)
	}
	if notifier.WarningCount() == 0 {
		t.Fatalf("denied swap should warn the user")
	}

	// The GM bypasses ownership entirely.
	gm, _, _ := newTestSession(t, host.StaticIdentity{ID: "gm", GM: true})
	gm.InjectInsert(InjectArgs{ID: "alice"}, true)
	gm.InjectInsert(InjectArgs{ID: "bob"}, true)
	waitReady(t, gm, "alice")
	waitReady(t, gm, "bob")
	if ok, _ := gm.SwapInserts("alice", "bob", false); !ok {
		t.Fatalf("GM swap should be allowed")
	}
}

func TestPushIsNoOpBelowThree(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	s.InjectInsert(InjectArgs{ID: "bob"}, false)
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")

	before := s.Dock().Order()
	if ok, reason := s.PushInsert("bob", true, false); ok || reason != RejectTooFew {
		t.Fatalf("push below 3 should no-op, got ok=%v reason=%s", ok, reason)
	}
	after := s.Dock().Order()
	if before[0] != after[0] || before[1] != after[1] {
		t.Fatalf("push below 3 changed order: %v -> %v", before, after)
	}
}

func TestPushGatedOnExtremeOccupant(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	for _, id := range []string{"alice", "bob", "casey"} {
		s.InjectInsert(InjectArgs{ID: id}, true)
		waitReady(t, s, id)
	}
	// Front occupant is alice (owned by user-1): pushing casey to the
	// front is allowed.
	if ok, _ := s.PushInsert("casey", true, false); !ok {
		t.Fatalf("push gated by an owned occupant should pass")
	}
	// Now casey (user-1) holds the front; bob's owner is user-2, but the
	// gate checks the occupant, not the pushed insert.
	if ok, _ := s.PushInsert("bob", true, false); !ok {
		t.Fatalf("push should check the extreme occupant")
	}
}

func TestStagedIsSupersetOfPresent(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")
	s.RemoveInsert("alice", false)
	waitGone(t, s, "alice")

	if !s.Staged("alice") {
		t.Fatalf("removal must not unstage an actor")
	}
	if s.InsertCount() != 0 {
		t.Fatalf("insert survived removal")
	}
}

func TestHotEjectInvalidSubtree(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	s.InjectInsert(InjectArgs{ID: "bob"}, false)
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")

	// Corrupt alice's subtree the way a host embedding bug would.
	s.mu.Lock()
	s.inserts["alice"].root.Child(nodePortrait).Detach()
	s.mu.Unlock()

	s.RenderFrame()

	s.mu.Lock()
	_, aliceAlive := s.inserts["alice"]
	_, bobAlive := s.inserts["bob"]
	s.mu.Unlock()
	if aliceAlive {
		t.Fatalf("corrupt insert was not ejected")
	}
	if !bobAlive {
		t.Fatalf("healthy insert was ejected alongside the corrupt one")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice", Emotions: proto.Emotions{Emote: "happy"}}, false)
	s.InjectInsert(InjectArgs{ID: "bob"}, false)
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")
	s.SetNarrator(true, false)

	states := s.SnapshotInserts()
	if len(states) != 2 {
		t.Fatalf("expected 2 insert states, got %d", len(states))
	}
	if states[0].InsertID != "alice" || states[0].SortIdx != 0 {
		t.Fatalf("snapshot order: %+v", states[0])
	}
	if states[0].Emotions.Emote != "happy" {
		t.Fatalf("snapshot lost emote: %+v", states[0].Emotions)
	}
	if !s.NarratorActive() {
		t.Fatalf("narrator lost")
	}
}

func TestClearAllInsertsSignalsCompletion(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	s.InjectInsert(InjectArgs{ID: "bob"}, false)
	waitReady(t, s, "alice")
	waitReady(t, s, "bob")

	done := make(chan struct{})
	s.ClearAllInserts(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("clear completion never signalled")
	}
	if s.InsertCount() != 0 {
		t.Fatalf("inserts survived clear: %d", s.InsertCount())
	}
}

func TestClearAllInsertsEmptyStageCompletesImmediately(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	done := make(chan struct{})
	s.ClearAllInserts(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("empty clear should complete immediately")
	}
}

func TestTypingIndicatorExpires(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.SetUserTyping("peer-9", proto.Typing{InsertID: "alice"})
	s.mu.Lock()
	visible := s.inserts["alice"].root.Child(nodeTyping).Visible
	s.mu.Unlock()
	if !visible {
		t.Fatalf("typing indicator not shown")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.TypingUsers() == 0 {
			s.mu.Lock()
			visible = s.inserts["alice"].root.Child(nodeTyping).Visible
			s.mu.Unlock()
			if !visible {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("typing state never expired")
}

func TestSpeakBuildsUnitsAndAnimates(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	if ok, reason := s.Speak("alice", "hello brave world"); !ok {
		t.Fatalf("speak failed: %s", reason)
	}

	s.mu.Lock()
	container := s.inserts["alice"].root.Child(nodeText)
	children := len(container.Children())
	s.mu.Unlock()
	if children != 3 {
		t.Fatalf("expected 3 word nodes, got %d", children)
	}
	if s.ActiveCount() == 0 {
		t.Fatalf("fly-in registered no animations")
	}
}

func TestDecayTextClearsUnits(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")
	s.Speak("alice", "fading words")

	s.DecayTextOp("alice", false)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		ins, ok := s.inserts["alice"]
		cleared := ok && len(ins.root.Child(nodeText).Children()) == 0
		s.mu.Unlock()
		if cleared {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("decay never cleared the text subtree")
}

func TestMirrorBroadcastsExactPosition(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	caster := &captureBroadcaster{}
	s.SetBroadcaster(caster)

	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")
	s.MirrorInsert("alice", false)

	var update *proto.PositionUpdate
	for _, ev := range caster.scenes {
		if pu, ok := ev.(proto.PositionUpdate); ok {
			update = &pu
		}
	}
	if update == nil {
		t.Fatalf("mirror did not broadcast a position update")
	}
	if !update.Position.Mirror {
		t.Fatalf("broadcast missing mirror flag")
	}
}

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.Advance(10 * time.Millisecond)
		if s.ActiveCount() == 0 && !s.loop.Running() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("animations never drained: %d active", s.ActiveCount())
}

func TestRenderFrameFollowsRenderOrder(t *testing.T) {
	renderer := scene.NewMemoryRenderer()
	s := NewSession(testConfig(), Deps{
		Actors:   testActors(),
		Identity: host.StaticIdentity{ID: "user-1"},
		Loader:   host.NewStubLoader(),
		Renderer: renderer,
	})
	t.Cleanup(s.Close)

	s.InjectInsert(InjectArgs{ID: "bob"}, false)
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "bob")
	waitReady(t, s, "alice")
	waitIdle(t, s)

	renderer.Reset()
	s.RenderFrame()

	var roots []string
	for _, op := range renderer.Ops() {
		if op.Name == "alice" || op.Name == "bob" {
			roots = append(roots, op.Name)
		}
	}
	if len(roots) != 2 || roots[0] != "bob" || roots[1] != "alice" {
		t.Fatalf("render order %v, want [bob alice]", roots)
	}
}

func TestEmoteUnchangedIsNotRebroadcast(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	caster := &captureBroadcaster{}
	s.SetBroadcaster(caster)

	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.SetEmote("alice", proto.Emotions{Emote: "happy"}, false)
	s.SetEmote("alice", proto.Emotions{Emote: "happy"}, false)

	emotes := 0
	for _, ev := range caster.scenes {
		if _, ok := ev.(proto.Emote); ok {
			emotes++
		}
	}
	if emotes != 1 {
		t.Fatalf("unchanged emote re-broadcast: %d emote events", emotes)
	}
}

func TestAddAllTexturesRegistersIndexAndEmoteKeys(t *testing.T) {
	s, _, _ := newTestSession(t, host.StaticIdentity{ID: "user-1"})
	s.InjectInsert(InjectArgs{ID: "alice"}, false)
	waitReady(t, s, "alice")

	s.AddAllTexturesOp(proto.AddAllTextures{
		InsertID: "alice",
		ImgSrcs:  []string{"art/alice-smug.png", "art/alice-grim.png"},
		Emote:    "smug",
		EResName: "alice-extra",
	}, true)

	s.mu.Lock()
	textures := s.inserts["alice"].textures
	smug := textures["smug"]
	slot0 := textures["alice-extra0"]
	slot1 := textures["alice-extra1"]
	s.mu.Unlock()

	if smug != "art/alice-smug.png" {
		t.Fatalf("emote key not registered: %q", smug)
	}
	if slot0 != "art/alice-smug.png" || slot1 != "art/alice-grim.png" {
		t.Fatalf("index keys: %q, %q", slot0, slot1)
	}
}
