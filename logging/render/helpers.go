package render

import (
	"context"

	"footlights/stage/logging"
)

const (
	// EventCountUnderflow is emitted when the animation tracker's active
	// count would go negative. This signals a mismatched add/remove pair,
	// a defect rather than a runtime condition.
	EventCountUnderflow logging.EventType = "render.count_underflow"
	// EventLoopStarted is emitted when the render loop leaves idle.
	EventLoopStarted logging.EventType = "render.loop_started"
	// EventLoopIdle is emitted when the render loop returns to idle.
	EventLoopIdle logging.EventType = "render.loop_idle"
)

// UnderflowPayload names the owner/animation pair whose removal underflowed.
type UnderflowPayload struct {
	Owner     string `json:"owner"`
	Animation string `json:"animation"`
}

func CountUnderflow(ctx context.Context, pub logging.Publisher, frame uint64, payload UnderflowPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCountUnderflow,
		Frame:    frame,
		Severity: logging.SeverityError,
		Category: logging.CategoryRender,
		Payload:  payload,
	})
}

func LoopStarted(ctx context.Context, pub logging.Publisher, frame uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLoopStarted,
		Frame:    frame,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryRender,
	})
}

func LoopIdle(ctx context.Context, pub logging.Publisher, frame uint64) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventLoopIdle,
		Frame:    frame,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryRender,
	})
}
