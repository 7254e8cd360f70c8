package proto

import (
	"encoding/json"
	"fmt"
)

// SceneEvent is the closed set of broadcast stage mutations. Each variant
// carries its own strongly-typed payload; dispatch is an exhaustive type
// switch rather than a string switch over raw maps.
type SceneEvent interface {
	Subtype() string
	sceneEvent()
}

type EnterScene struct {
	InsertID string   `json:"insertid"`
	Emotions Emotions `json:"emotions"`
	IsLeft   bool     `json:"isleft"`
}

type ExitScene struct {
	InsertID string `json:"insertid"`
}

type PositionUpdate struct {
	InsertID string   `json:"insertid"`
	Position Position `json:"position"`
}

type Push struct {
	InsertID string `json:"insertid"`
	ToFront  bool   `json:"tofront"`
}

type Swap struct {
	InsertID1 string `json:"insertid1"`
	InsertID2 string `json:"insertid2"`
}

type Move struct {
	InsertID1 string `json:"insertid1"`
	InsertID2 string `json:"insertid2"`
}

type Emote struct {
	InsertID string   `json:"insertid"`
	Emotions Emotions `json:"emotions"`
}

type AddTexture struct {
	InsertID string `json:"insertid"`
	ImgSrc   string `json:"imgsrc"`
	ResName  string `json:"resname"`
	Emote    string `json:"emote"`
}

type AddAllTextures struct {
	InsertID string   `json:"insertid"`
	ImgSrcs  []string `json:"imgsrcs"`
	Emote    string   `json:"emote"`
	EResName string   `json:"eresname"`
}

type StageActor struct {
	InsertID string `json:"insertid"`
}

type Narrator struct {
	Active bool `json:"active"`
}

type DecayText struct {
	InsertID string `json:"insertid"`
}

type RenderInsert struct {
	InsertID string `json:"insertid"`
}

func (EnterScene) Subtype() string     { return "enterscene" }
func (ExitScene) Subtype() string      { return "exitscene" }
func (PositionUpdate) Subtype() string { return "positionupdate" }
func (Push) Subtype() string           { return "push" }
func (Swap) Subtype() string           { return "swap" }
func (Move) Subtype() string           { return "move" }
func (Emote) Subtype() string          { return "emote" }
func (AddTexture) Subtype() string     { return "addtexture" }
func (AddAllTextures) Subtype() string { return "addalltextures" }
func (StageActor) Subtype() string     { return "stage" }
func (Narrator) Subtype() string       { return "narrator" }
func (DecayText) Subtype() string      { return "decaytext" }
func (RenderInsert) Subtype() string   { return "renderinsert" }

func (EnterScene) sceneEvent()     {}
func (ExitScene) sceneEvent()      {}
func (PositionUpdate) sceneEvent() {}
func (Push) sceneEvent()           {}
func (Swap) sceneEvent()           {}
func (Move) sceneEvent()           {}
func (Emote) sceneEvent()          {}
func (AddTexture) sceneEvent()     {}
func (AddAllTextures) sceneEvent() {}
func (StageActor) sceneEvent()     {}
func (Narrator) sceneEvent()       {}
func (DecayText) sceneEvent()      {}
func (RenderInsert) sceneEvent()   {}

// SceneEnvelope wraps a scene event for broadcast.
func SceneEnvelope(senderID string, ev SceneEvent) (Envelope, error) {
	return NewEnvelope(senderID, TypeSceneEvent, ev.Subtype(), ev)
}

// DecodeScene maps a sceneevent envelope back onto its typed variant.
// Unknown subtypes are an error so receivers can drop them explicitly.
func DecodeScene(env Envelope) (SceneEvent, error) {
	if env.Type != TypeSceneEvent {
		return nil, fmt.Errorf("not a scene event: %s", env.Type)
	}
	var ev SceneEvent
	switch env.Subtype {
	case "enterscene":
		ev = &EnterScene{}
	case "exitscene":
		ev = &ExitScene{}
	case "positionupdate":
		ev = &PositionUpdate{}
	case "push":
		ev = &Push{}
	case "swap":
		ev = &Swap{}
	case "move":
		ev = &Move{}
	case "emote":
		ev = &Emote{}
	case "addtexture":
		ev = &AddTexture{}
	case "addalltextures":
		ev = &AddAllTextures{}
	case "stage":
		ev = &StageActor{}
	case "narrator":
		ev = &Narrator{}
	case "decaytext":
		ev = &DecayText{}
	case "renderinsert":
		ev = &RenderInsert{}
	default:
		return nil, fmt.Errorf("unknown scene subtype %q", env.Subtype)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", env.Subtype, err)
	}
	return deref(ev), nil
}

// deref returns the value form so type switches match non-pointer variants.
func deref(ev SceneEvent) SceneEvent {
	switch v := ev.(type) {
	case *EnterScene:
		return *v
	case *ExitScene:
		return *v
	case *PositionUpdate:
		return *v
	case *Push:
		return *v
	case *Swap:
		return *v
	case *Move:
		return *v
	case *Emote:
		return *v
	case *AddTexture:
		return *v
	case *AddAllTextures:
		return *v
	case *StageActor:
		return *v
	case *Narrator:
		return *v
	case *DecayText:
		return *v
	case *RenderInsert:
		return *v
	default:
		return ev
	}
}
