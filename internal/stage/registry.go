package stage

import (
	"context"
	"fmt"
	"time"

	"footlights/stage/internal/anim"
	"footlights/stage/internal/dock"
	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/scene"
	"footlights/stage/internal/textseg"
	"footlights/stage/logging"
	"footlights/stage/logging/lifecycle"
)

// exitOffset is how far off the bar an exiting insert slides.
const exitOffset = 300.0

// textOwner scopes an insert's narration animations so they can be torn
// down independently of the insert's own tweens.
func textOwner(insertID string) string { return insertID + "/text" }

// InjectArgs parameterizes an insert's stage entrance.
type InjectArgs struct {
	ID       string
	IsLeft   bool
	Align    Align
	Emotions proto.Emotions
}

// InjectInsert brings an actor onto the stage. Remote calls replay a peer's
// enterscene; local calls also broadcast one. The heavy asset load runs off
// the session lock and the subtree only appears once it resolves.
func (s *Session) InjectInsert(args InjectArgs, remote bool) (bool, string) {
	if s.deps.Actors == nil {
		return false, RejectUnknownActor
	}
	actor, ok := s.deps.Actors.Actor(args.ID)
	if !ok {
		s.logf("inject: unknown actor %q", args.ID)
		return false, RejectUnknownActor
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, "closed"
	}
	if _, exists := s.inserts[args.ID]; exists {
		s.mu.Unlock()
		if remote {
			// Peers can race an enterscene against our own; the copy
			// already staged wins.
			return true, ""
		}
		return false, RejectDuplicate
	}

	isLeft := args.IsLeft
	if isLeft && s.bar.Count() == 0 {
		isLeft = false
	}

	ins := newInsert(actor, args.Align)
	ins.Overrides = actor.Settings
	ins.applyEmotions(args.Emotions)
	ins.RenderOrder = s.renderSeq
	s.renderSeq++
	s.inserts[args.ID] = ins
	s.staged[args.ID] = true
	ins.box = s.bar.AddBox(args.ID)
	if isLeft {
		s.bar.PushBox(args.ID, true)
	}
	gen := ins.loadGen
	emotions := ins.emotions()
	frame := s.tracker.Frame()
	s.mu.Unlock()

	lifecycle.InsertEntered(context.Background(), s.deps.Publisher, frame,
		logging.EntityRef{ID: args.ID, Kind: logging.EntityKindInsert},
		lifecycle.InsertEnteredPayload{Name: actor.Name, IsLeft: isLeft, Remote: remote})
	s.deps.Metrics.Add("stage.inserts_injected", 1)

	go s.loadInsert(args.ID, gen, actor.Portrait)

	if !remote {
		s.emit(proto.EnterScene{InsertID: args.ID, Emotions: emotions, IsLeft: isLeft})
	}
	s.stageChanged()
	return true, ""
}

// loadInsert resolves the portrait asset and, if the insert is still live
// and the load generation still current, builds and fades in its subtree.
func (s *Session) loadInsert(id string, gen int, path string) {
	texture := path
	var err error
	if s.deps.Loader != nil {
		texture, err = s.deps.Loader.Load(path)
	}

	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.deleting || ins.loadGen != gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		frame := s.tracker.Frame()
		s.destroyLocked(id, "asset_failed")
		s.mu.Unlock()
		lifecycle.AssetFailed(context.Background(), s.deps.Publisher, frame,
			logging.EntityRef{ID: id, Kind: logging.EntityKindInsert},
			lifecycle.AssetFailedPayload{Path: path, Err: err.Error()})
		s.warn(fmt.Sprintf("Could not load art for %s", id))
		s.stageChanged()
		return
	}

	ins.buildTree(texture, s.cfg.Dock.MaxFontSize)
	if ins.box != nil {
		ins.root.X = ins.box.X()
	}
	root := ins.root
	root.Alpha = 0
	s.tracker.Add(id, "enter", anim.NewTween(anim.Tween{
		Duration: s.cfg.ExitDuration,
		Ease:     anim.EaseOutQuad,
		Apply: func(t float64) {
			root.Alpha = t
		},
	}))
	s.mu.Unlock()
	s.stageChanged()
}

// RemoveInsert takes an insert off the stage: exit animation now, resource
// teardown after RemoveDelay. Repeat removals of the same insert are no-ops.
func (s *Session) RemoveInsert(id string, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if ins.deleting {
		s.mu.Unlock()
		return true, ""
	}
	ins.deleting = true

	var persist bool
	var settings = ins.Overrides
	var emote = ins.Emote
	if !remote && s.deps.Settings != nil && s.deps.Actors != nil {
		if actor, found := s.deps.Actors.Actor(id); found && actor.OwnedBy(s.localUser()) {
			persist = true
		}
	}

	if ins.root != nil {
		root := ins.root
		from := root.X
		target := from - exitOffset
		if ins.ExitOrientation == dock.OrientRight {
			target = from + exitOffset
		}
		s.tracker.Add(id, "exit", anim.NewTween(anim.Tween{
			Duration: s.cfg.ExitDuration,
			Ease:     anim.EaseInQuad,
			Apply: func(t float64) {
				root.X = from + (target-from)*t
				root.Alpha = 1 - t
			},
		}))
	}

	time.AfterFunc(s.cfg.RemoveDelay, func() {
		s.mu.Lock()
		s.destroyLocked(id, "removed")
		s.mu.Unlock()
		s.stageChanged()
	})
	s.mu.Unlock()

	if persist {
		if err := s.deps.Settings.SaveTextSettings(id, emote, settings); err != nil {
			s.logf("persist settings for %s: %v", id, err)
		}
	}
	if !remote {
		s.emit(proto.ExitScene{InsertID: id})
	}
	s.stageChanged()
	return true, ""
}

// SetEmote changes an insert's emote and presentation overrides. When the
// actor uses delayed emotes and the local user is mid-composition, the
// change is buffered until FlushEmote.
func (s *Session) SetEmote(id string, em proto.Emotions, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}

	if !remote && em.Emote != "" && em.Emote != ins.Emote && s.deps.Actors != nil {
		if actor, ok := s.deps.Actors.Actor(id); ok && actor.DelayedEmote && s.typingAsLocked(s.localUser(), id) {
			emote := em.Emote
			ins.pendingEmote = &emote
			rest := em
			rest.Emote = ""
			ins.applyEmotions(rest)
			s.mu.Unlock()
			return true, ""
		}
	}

	prevEmote := ins.Emote
	prevOverrides := ins.Overrides
	ins.applyEmotions(em)
	if ins.Emote == prevEmote && ins.Overrides == prevOverrides {
		s.mu.Unlock()
		return true, ""
	}
	gen, path, swap := s.textureSwapLocked(ins)
	emotions := ins.emotions()
	s.mu.Unlock()

	if swap {
		go s.swapTexture(id, gen, path)
	}
	if !remote {
		s.emit(proto.Emote{InsertID: id, Emotions: emotions})
	}
	s.stageChanged()
	return true, ""
}

// FlushEmote applies a buffered delayed emote, typically when the composed
// message is sent.
func (s *Session) FlushEmote(id string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.pendingEmote == nil {
		s.mu.Unlock()
		return
	}
	ins.Emote = *ins.pendingEmote
	ins.pendingEmote = nil
	gen, path, swap := s.textureSwapLocked(ins)
	emotions := ins.emotions()
	s.mu.Unlock()

	if swap {
		go s.swapTexture(id, gen, path)
	}
	s.emit(proto.Emote{InsertID: id, Emotions: emotions})
	s.stageChanged()
}

// textureSwapLocked reports whether the portrait node needs new art and
// bumps the load generation so stale loads are discarded.
func (s *Session) textureSwapLocked(ins *Insert) (gen int, path string, swap bool) {
	if ins.root == nil {
		return 0, "", false
	}
	portrait := ins.root.Child(nodePortrait)
	if portrait == nil {
		return 0, "", false
	}
	path = ins.currentTexture()
	if portrait.Texture == path {
		return 0, "", false
	}
	ins.loadGen++
	return ins.loadGen, path, true
}

func (s *Session) swapTexture(id string, gen int, path string) {
	texture := path
	var err error
	if s.deps.Loader != nil {
		texture, err = s.deps.Loader.Load(path)
	}
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.deleting || ins.loadGen != gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		// Emote art failures fall back to whatever is on screen; only
		// the initial portrait load is fatal to the insert.
		s.mu.Unlock()
		s.logf("load texture %s: %v", path, err)
		return
	}
	if portrait := ins.root.Child(nodePortrait); portrait != nil {
		portrait.Texture = texture
	}
	s.mu.Unlock()
	s.stageChanged()
}

// SwapInserts exchanges the bar slots of two inserts. Locally it is gated:
// the caller must own one side, or both sides must be player-owned.
func (s *Session) SwapInserts(id1, id2 string, remote bool) (bool, string) {
	s.mu.Lock()
	_, ok1 := s.inserts[id1]
	_, ok2 := s.inserts[id2]
	s.mu.Unlock()
	if !ok1 || !ok2 {
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if !remote && !s.mayRearrange(id1, id2) {
		s.warn("You do not control either insert")
		return false, RejectNoPermission
	}
	if !s.bar.SwapBoxes(id1, id2) {
		return false, RejectUnknownInsert
	}
	if !remote {
		s.emit(proto.Swap{InsertID1: id1, InsertID2: id2})
	}
	return true, ""
}

// MoveInsert relocates id2's box into id1's slot, shifting the boxes
// between. Same gating as SwapInserts.
func (s *Session) MoveInsert(id1, id2 string, remote bool) (bool, string) {
	s.mu.Lock()
	_, ok1 := s.inserts[id1]
	_, ok2 := s.inserts[id2]
	s.mu.Unlock()
	if !ok1 || !ok2 {
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if !remote && !s.mayRearrange(id1, id2) {
		s.warn("You do not control either insert")
		return false, RejectNoPermission
	}
	if !s.bar.MoveBox(id1, id2) {
		return true, ""
	}
	if !remote {
		s.emit(proto.Move{InsertID1: id1, InsertID2: id2})
	}
	return true, ""
}

func (s *Session) mayRearrange(id1, id2 string) bool {
	if s.deps.Identity != nil && s.deps.Identity.IsGM() {
		return true
	}
	if s.deps.Actors == nil {
		return false
	}
	a1, ok1 := s.deps.Actors.Actor(id1)
	a2, ok2 := s.deps.Actors.Actor(id2)
	if !ok1 || !ok2 {
		return false
	}
	user := s.localUser()
	if a1.OwnedBy(user) || a2.OwnedBy(user) {
		return true
	}
	return len(a1.Owners) > 0 && len(a2.Owners) > 0
}

// PushInsert moves an insert to the front or back of the bar. Below three
// inserts the order is already fully determined, so it is a no-op. Locally
// the push is gated on the occupant currently holding that extreme.
func (s *Session) PushInsert(id string, toFront bool, remote bool) (bool, string) {
	s.mu.Lock()
	_, ok := s.inserts[id]
	count := s.bar.Count()
	s.mu.Unlock()
	if !ok {
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if count < 3 {
		return false, RejectTooFew
	}
	if !remote && s.deps.Actors != nil {
		occupant, _ := s.bar.AtExtreme(toFront)
		if occupant != "" && occupant != id {
			actor, ok := s.deps.Actors.Actor(occupant)
			if ok && !s.canControl(actor) {
				s.warn("You do not control the insert at that position")
				return false, RejectNoPermission
			}
		}
	}
	s.bar.PushBox(id, toFront)
	if !remote {
		s.emit(proto.Push{InsertID: id, ToFront: toFront})
	}
	return true, ""
}

// MirrorInsert flips an insert's portrait horizontally.
func (s *Session) MirrorInsert(id string, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if !remote && s.deps.Actors != nil {
		if actor, found := s.deps.Actors.Actor(id); found && !s.canControl(actor) {
			s.mu.Unlock()
			s.warn("You do not control " + ins.Name)
			return false, RejectNoPermission
		}
	}
	ins.Mirror = !ins.Mirror
	s.flipPortraitLocked(ins)
	pos := ins.position()
	s.mu.Unlock()

	if !remote {
		s.emit(proto.PositionUpdate{InsertID: id, Position: pos})
	}
	s.stageChanged()
	return true, ""
}

func (s *Session) flipPortraitLocked(ins *Insert) {
	if ins.root == nil {
		return
	}
	portrait := ins.root.Child(nodePortrait)
	if portrait == nil {
		return
	}
	target := 1.0
	if ins.Mirror {
		target = -1.0
	}
	from := portrait.ScaleX
	s.tracker.Add(ins.ID, "mirror", anim.NewTween(anim.Tween{
		Duration: 200 * time.Millisecond,
		Ease:     anim.EaseInOutSine,
		Apply: func(t float64) {
			portrait.ScaleX = from + (target-from)*t
		},
	}))
}

// ResetInsertPosition returns an insert to its docked slot and clears the
// mirror flag.
func (s *Session) ResetInsertPosition(id string, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	if !remote && s.deps.Actors != nil {
		if actor, found := s.deps.Actors.Actor(id); found && !s.canControl(actor) {
			s.mu.Unlock()
			s.warn("You do not control " + ins.Name)
			return false, RejectNoPermission
		}
	}
	ins.Mirror = false
	if ins.root != nil && ins.box != nil {
		s.slideTo(ins, ins.box.X())
		root := ins.root
		fromY := root.Y
		s.tracker.Add(id, "resety", anim.NewTween(anim.Tween{
			Duration: 200 * time.Millisecond,
			Ease:     anim.EaseOutQuad,
			Apply: func(t float64) {
				root.Y = fromY * (1 - t)
			},
		}))
		s.flipPortraitLocked(ins)
	}
	pos := proto.Position{}
	if ins.box != nil {
		pos.X = ins.box.X()
	}
	s.mu.Unlock()

	if !remote {
		s.emit(proto.PositionUpdate{InsertID: id, Position: pos})
	}
	s.stageChanged()
	return true, ""
}

// ApplyPositionUpdate snaps an insert to a peer-reported exact position.
func (s *Session) ApplyPositionUpdate(id string, pos proto.Position) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	ins.Mirror = pos.Mirror
	if ins.root != nil {
		ins.root.X = pos.X
		ins.root.Y = pos.Y
		if portrait := ins.root.Child(nodePortrait); portrait != nil {
			if pos.Mirror {
				portrait.ScaleX = -1
			} else {
				portrait.ScaleX = 1
			}
		}
	}
	s.mu.Unlock()
	s.stageChanged()
}

// StageActorOp marks an actor as having appeared this session. Staged is a
// superset of present: removal never unstages.
func (s *Session) StageActorOp(id string, remote bool) (bool, string) {
	if s.deps.Actors == nil {
		return false, RejectUnknownActor
	}
	if _, ok := s.deps.Actors.Actor(id); !ok {
		s.logf("stage: unknown actor %q", id)
		return false, RejectUnknownActor
	}
	s.mu.Lock()
	s.staged[id] = true
	s.mu.Unlock()
	if !remote {
		s.emit(proto.StageActor{InsertID: id})
	}
	return true, ""
}

// Staged reports whether an actor has taken the stage this session.
func (s *Session) Staged(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged[id]
}

// SetNarrator toggles the narrator bar.
func (s *Session) SetNarrator(active bool, remote bool) {
	s.mu.Lock()
	changed := s.narrator != active
	s.narrator = active
	s.mu.Unlock()
	if !changed {
		return
	}
	if !remote {
		s.emit(proto.Narrator{Active: active})
	}
	s.stageChanged()
}

// NarratorActive reports the narrator bar state.
func (s *Session) NarratorActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.narrator
}

// Speak runs the local narration pipeline: segment the text for the
// configured locale, build one node per unit, and hand the nodes to the
// insert's fly-in with its standing animation chained behind.
func (s *Session) Speak(id string, text string) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.root == nil {
		s.mu.Unlock()
		return false, RejectUnknownInsert
	}
	container := ins.root.Child(nodeText)
	if container == nil {
		s.mu.Unlock()
		return false, RejectUnknownInsert
	}

	s.tracker.RemoveAll(textOwner(id))
	for _, child := range container.Children() {
		child.Detach()
	}

	fontSize := s.cfg.Dock.MaxFontSize
	if ins.Overrides.Size > 0 {
		fontSize = float64(ins.Overrides.Size)
	}
	units := textseg.Segment(text, s.cfg.TextWidthHint, s.cfg.Locale)
	nodes := buildUnitNodes(container, units, fontSize, ins.Overrides)

	flyName := ins.Overrides.FlyIn
	fly, ok := textseg.FlyIn(flyName)
	if !ok {
		fly, _ = textseg.FlyIn(textseg.DefaultFlyIn)
	}
	var standing textseg.StandingFunc
	if ins.Overrides.Standing != "" {
		if fn, ok := textseg.Standing(ins.Overrides.Standing); ok {
			standing = fn
		}
	}
	fly(s.tracker, textOwner(id), nodes, s.cfg.FlyInDuration, s.cfg.FlyInStagger, standing)
	s.mu.Unlock()

	s.FlushEmote(id)
	s.stageChanged()
	return true, ""
}

// buildUnitNodes lays segmentation units out as child nodes of the text
// container. Spaces advance the cursor without a node; breaks start a new
// line.
func buildUnitNodes(container *scene.Node, units []textseg.Unit, fontSize float64, style host.TextSettings) []*scene.Node {
	charW := fontSize * 0.6
	var x, y float64
	var nodes []*scene.Node
	for i, unit := range units {
		switch unit.Kind {
		case textseg.UnitBreak:
			x = 0
			y += fontSize * 1.4
			continue
		case textseg.UnitSpace:
			x += charW * float64(len([]rune(unit.Text)))
			continue
		}
		node := scene.NewNode(fmt.Sprintf("u%d", i))
		node.Text = unit.Text
		node.FontSize = fontSize
		node.Font = style.Font
		node.Color = style.Color
		node.X = x
		node.Y = y
		container.AddChild(node)
		nodes = append(nodes, node)
		x += charW * float64(len([]rune(unit.Text)))
	}
	return nodes
}

// DecayTextOp fades an insert's narration out and clears the text subtree
// once the fade completes.
func (s *Session) DecayTextOp(id string, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.root == nil {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	container := ins.root.Child(nodeText)
	if container == nil {
		s.mu.Unlock()
		return false, RejectUnknownInsert
	}
	tr := s.tracker
	s.tracker.Add(id, "decaytext", anim.NewTween(anim.Tween{
		Duration: s.cfg.DecayDuration,
		Ease:     anim.EaseInQuad,
		Apply: func(t float64) {
			container.Alpha = 1 - t
		},
		OnDone: func() {
			tr.RemoveAll(textOwner(id))
			for _, child := range container.Children() {
				child.Detach()
			}
			container.Alpha = 1
		},
	}))
	s.mu.Unlock()

	if !remote {
		s.emit(proto.DecayText{InsertID: id})
	}
	return true, ""
}

// RenderInsertOp forces a one-off render of a single insert's subtree.
func (s *Session) RenderInsertOp(id string, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[id]
	if !ok || ins.root == nil {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	root := ins.root
	renderer := s.deps.Renderer
	s.mu.Unlock()

	if renderer != nil {
		if err := renderer.Render(root); err != nil {
			s.logf("render %s: %v", id, err)
		}
	}
	if !remote {
		s.emit(proto.RenderInsert{InsertID: id})
	}
	return true, ""
}

// AddTextureOp registers dedicated art for one emote. If that emote is the
// one on screen, the portrait is reloaded.
func (s *Session) AddTextureOp(ev proto.AddTexture, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[ev.InsertID]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	ins.textures[ev.Emote] = ev.ImgSrc
	gen, path, swap := s.textureSwapLocked(ins)
	s.mu.Unlock()

	if swap {
		go s.swapTexture(ev.InsertID, gen, path)
	}
	if !remote {
		s.emit(ev)
	}
	return true, ""
}

// AddAllTexturesOp bulk-registers emote art and preloads it so later emote
// switches swap instantly.
func (s *Session) AddAllTexturesOp(ev proto.AddAllTextures, remote bool) (bool, string) {
	s.mu.Lock()
	ins, ok := s.inserts[ev.InsertID]
	if !ok {
		s.mu.Unlock()
		if remote {
			return true, ""
		}
		return false, RejectUnknownInsert
	}
	for i, src := range ev.ImgSrcs {
		ins.textures[fmt.Sprintf("%s%d", ev.EResName, i)] = src
		if i == 0 && ev.Emote != "" {
			ins.textures[ev.Emote] = src
		}
	}
	gen, path, swap := s.textureSwapLocked(ins)
	loader := s.deps.Loader
	s.mu.Unlock()

	if loader != nil {
		for _, src := range ev.ImgSrcs {
			go func(p string) {
				if _, err := loader.Load(p); err != nil {
					s.logf("preload texture %s: %v", p, err)
				}
			}(src)
		}
	}
	if swap {
		go s.swapTexture(ev.InsertID, gen, path)
	}
	if !remote {
		s.emit(ev)
	}
	return true, ""
}

// InsertIDs lists the live inserts in bar order.
func (s *Session) InsertIDs() []string {
	order := s.bar.Order()
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(order))
	for _, id := range order {
		if _, ok := s.inserts[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// InsertCount reports how many inserts are live.
func (s *Session) InsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserts)
}
