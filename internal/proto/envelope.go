package proto

import (
	"encoding/json"
	"fmt"
)

// MessageType is the outer envelope discriminator.
type MessageType string

const (
	TypeSceneEvent  MessageType = "sceneevent"
	TypeTypingEvent MessageType = "typingevent"
	TypeResyncEvent MessageType = "resyncevent"
	TypeReqResync   MessageType = "reqresync"
)

// Envelope is the transport-agnostic wire unit delivered to all peers.
type Envelope struct {
	SenderID string          `json:"senderId"`
	Type     MessageType     `json:"type"`
	Subtype  string          `json:"subtype,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(senderID string, msgType MessageType, subtype string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s/%s payload: %w", msgType, subtype, err)
	}
	return Envelope{SenderID: senderID, Type: msgType, Subtype: subtype, Data: raw}, nil
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s payload: %w", e.Type, e.Subtype, err)
	}
	return nil
}

// Emotions is the full text-presentation state carried by emote and typing
// payloads. Empty fields mean "unset, fall through to defaults".
type Emotions struct {
	Emote        string `json:"emote,omitempty"`
	TextFlyin    string `json:"textflyin,omitempty"`
	TextStanding string `json:"textstanding,omitempty"`
	TextFont     string `json:"textfont,omitempty"`
	TextSize     int    `json:"textsize,omitempty"`
	TextColor    string `json:"textcolor,omitempty"`
}

// Position is an insert's exact placement, including the mirror flag.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Mirror bool    `json:"mirror"`
}

// Typing is the typingevent payload.
type Typing struct {
	InsertID string   `json:"insertid"`
	Emotions Emotions `json:"emotions"`
}

// Resync request kinds.
const (
	KindAny     = "any"
	KindGM      = "gm"
	KindPlayers = "players"
)

// Resync response subtypes.
const (
	ResyncFromGM     = "gm"
	ResyncFromPlayer = "player"
)

// InsertState is one insert's full replicated state inside a resync
// snapshot.
type InsertState struct {
	InsertID string   `json:"insertid"`
	Position Position `json:"position"`
	Emotions Emotions `json:"emotions"`
	SortIdx  int      `json:"sortidx"`
}

// ResyncData is the resyncevent payload: a full snapshot targeted at the
// requesting client.
type ResyncData struct {
	TargetID   string        `json:"targetid,omitempty"`
	InsertData []InsertState `json:"insertdata"`
	Narrator   bool          `json:"narrator"`
}

// ReqResyncData is the reqresync payload. The snapshot fields are only
// populated for the privileged "players" push.
type ReqResyncData struct {
	InsertData []InsertState `json:"insertdata,omitempty"`
	Narrator   bool          `json:"narrator,omitempty"`
}
