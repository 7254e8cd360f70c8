package stage

import (
	"time"

	"footlights/stage/internal/dock"
	"footlights/stage/internal/render"
)

// Config tunes the stage engine's timings and layout.
type Config struct {
	Dock   dock.Config
	Render render.Config

	// Locale selects the text segmentation mode for narration.
	Locale string
	// TextWidthHint caps narration line length in characters; 0 disables
	// soft wrapping.
	TextWidthHint float64

	// ExitDuration is the slide-off animation when an insert is removed.
	ExitDuration time.Duration
	// RemoveDelay is how long a removed insert's resources linger so the
	// exit animation can finish.
	RemoveDelay time.Duration
	// TypingIdle is the liveness window after which a peer's typing state
	// auto-expires.
	TypingIdle time.Duration
	// DecayDuration is the narration fade-out triggered by decaytext.
	DecayDuration time.Duration

	// FlyInDuration and FlyInStagger shape narration entrances.
	FlyInDuration time.Duration
	FlyInStagger  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Dock:          dock.DefaultConfig(),
		Render:        render.DefaultConfig(),
		Locale:        "en",
		TextWidthHint: 42,
		ExitDuration:  400 * time.Millisecond,
		RemoveDelay:   900 * time.Millisecond,
		TypingIdle:    5 * time.Second,
		DecayDuration: 600 * time.Millisecond,
		FlyInDuration: 500 * time.Millisecond,
		FlyInStagger:  50 * time.Millisecond,
	}
}

// Operation reject reasons, reported alongside the failed call.
const (
	RejectNoPermission  = "no_permission"
	RejectUnknownActor  = "unknown_actor"
	RejectUnknownInsert = "unknown_insert"
	RejectDuplicate     = "duplicate_insert"
	RejectTooFew        = "too_few_inserts"
)
