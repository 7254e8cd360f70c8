// Package host declares the collaborator seams the stage engine consumes:
// actor lookup, user identity, notifications, settings persistence, asset
// loading, and the peer transport. The host application provides real
// implementations; the in-memory ones here back tests and the demo client.
package host

import "footlights/stage/internal/proto"

// TextSettings are a user's last-chosen presentation overrides for an
// actor. Zero values mean "unset".
type TextSettings struct {
	FlyIn    string
	Standing string
	Font     string
	Color    string
	Size     int
}

// EmoteArt is one named emote and its dedicated art, if any.
type EmoteArt struct {
	Name  string
	Image string
}

// Actor is the host's view of a character that can take the stage.
type Actor struct {
	ID       string
	Name     string
	Portrait string
	Emotes   map[string]EmoteArt
	// Owners maps user ids to ownership. GMs implicitly own everything.
	Owners map[string]bool
	// DelayedEmote buffers emote changes until the composed message is
	// sent, so observers see the previous emote mid-composition.
	DelayedEmote bool
	Settings     TextSettings
}

// OwnedBy reports whether userID owns this actor.
func (a Actor) OwnedBy(userID string) bool {
	return a.Owners[userID]
}

// Directory resolves actor ids.
type Directory interface {
	Actor(id string) (Actor, bool)
}

// Identity exposes the local user.
type Identity interface {
	UserID() string
	IsGM() bool
}

// Notifier surfaces user-visible transient notices.
type Notifier interface {
	Info(msg string)
	Warn(msg string)
}

// SettingsStore persists an actor's last-used emote and text-style
// choices.
type SettingsStore interface {
	SaveTextSettings(actorID string, emote string, settings TextSettings) error
}

// AssetLoader resolves a portrait or emote art path to a texture resource
// name. Load may block; the stage calls it off the session lock and
// discards superseded results.
type AssetLoader interface {
	Load(path string) (string, error)
}

// Transport is the broadcast pub-sub fabric between peers. Envelopes are
// delivered to every peer except the sender, in no guaranteed order.
type Transport interface {
	Broadcast(env proto.Envelope) error
	SetHandler(fn func(env proto.Envelope))
	Close() error
}
