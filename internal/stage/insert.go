package stage

import (
	"footlights/stage/internal/dock"
	"footlights/stage/internal/host"
	"footlights/stage/internal/proto"
	"footlights/stage/internal/scene"
)

// Align is an insert's vertical anchoring on the stage.
type Align string

const (
	AlignTop    Align = "top"
	AlignBottom Align = "bottom"
)

// Node names inside an insert's scene subtree.
const (
	nodePortrait = "portrait"
	nodeLabel    = "label"
	nodeTyping   = "typing"
	nodeText     = "text"
)

// Insert is one staged speaker: its replicated visual state plus the scene
// subtree it owns.
type Insert struct {
	ID       string
	Name     string
	Portrait string

	Emote     string
	Overrides host.TextSettings
	Mirror    bool
	Align     Align

	// Layout hints maintained by reorder passes.
	ExitOrientation string
	NameOrientation string
	Order           int
	RenderOrder     int

	// deleting makes removal idempotent: the second remove sees the flag
	// and backs off.
	deleting bool

	// pendingEmote buffers a delayed-mode emote until the composed
	// message is sent.
	pendingEmote *string

	// textures maps emote names to dedicated art. Emotes without an
	// entry render the base portrait.
	textures map[string]string

	// loadGen invalidates in-flight asset loads when a newer request
	// supersedes them.
	loadGen int

	root *scene.Node
	box  *dock.Box
}

func newInsert(actor host.Actor, align Align) *Insert {
	ins := &Insert{
		ID:       actor.ID,
		Name:     actor.Name,
		Portrait: actor.Portrait,
		Align:    align,
		textures: make(map[string]string, len(actor.Emotes)),
	}
	for name, art := range actor.Emotes {
		if art.Image != "" {
			ins.textures[name] = art.Image
		}
	}
	return ins
}

// buildTree constructs the insert's owned subtree: portrait, name label,
// typing indicator, and the narration text container.
func (ins *Insert) buildTree(texture string, fontSize float64) {
	root := scene.NewNode(ins.ID)

	portrait := scene.NewNode(nodePortrait)
	portrait.Texture = texture
	root.AddChild(portrait)

	label := scene.NewNode(nodeLabel)
	label.Text = ins.Name
	label.FontSize = fontSize
	root.AddChild(label)

	typing := scene.NewNode(nodeTyping)
	typing.Visible = false
	root.AddChild(typing)

	text := scene.NewNode(nodeText)
	root.AddChild(text)

	ins.root = root
}

// valid reports whether the insert's subtree is intact. The render loop
// hot-ejects inserts failing this check.
func (ins *Insert) valid() bool {
	return ins.root != nil && ins.root.Child(nodePortrait) != nil
}

// currentTexture resolves the rendered art: dedicated emote art when it
// exists, the base portrait otherwise.
func (ins *Insert) currentTexture() string {
	if ins.Emote != "" {
		if img, ok := ins.textures[ins.Emote]; ok {
			return img
		}
	}
	return ins.Portrait
}

// applyEmotions overlays non-empty wire fields onto the insert.
func (ins *Insert) applyEmotions(em proto.Emotions) {
	if em.Emote != "" {
		ins.Emote = em.Emote
	}
	if em.TextFlyin != "" {
		ins.Overrides.FlyIn = em.TextFlyin
	}
	if em.TextStanding != "" {
		ins.Overrides.Standing = em.TextStanding
	}
	if em.TextFont != "" {
		ins.Overrides.Font = em.TextFont
	}
	if em.TextSize != 0 {
		ins.Overrides.Size = em.TextSize
	}
	if em.TextColor != "" {
		ins.Overrides.Color = em.TextColor
	}
}

// emotions captures the insert's full presentation state for broadcast.
func (ins *Insert) emotions() proto.Emotions {
	return proto.Emotions{
		Emote:        ins.Emote,
		TextFlyin:    ins.Overrides.FlyIn,
		TextStanding: ins.Overrides.Standing,
		TextFont:     ins.Overrides.Font,
		TextSize:     ins.Overrides.Size,
		TextColor:    ins.Overrides.Color,
	}
}

// position reports the subtree's current placement for broadcast.
func (ins *Insert) position() proto.Position {
	pos := proto.Position{Mirror: ins.Mirror}
	if ins.root != nil {
		pos.X = ins.root.X
		pos.Y = ins.root.Y
	}
	return pos
}
