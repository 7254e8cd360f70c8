package protocol

import (
	"context"

	"footlights/stage/logging"
)

const (
	// EventApplied is emitted when an inbound scene event mutates local state.
	EventApplied logging.EventType = "protocol.event_applied"
	// EventDropped is emitted when an inbound envelope is discarded.
	EventDropped logging.EventType = "protocol.event_dropped"
	// EventResyncRequested is emitted when this client asks peers for state.
	EventResyncRequested logging.EventType = "protocol.resync_requested"
	// EventResyncApplied is emitted when a resync snapshot is accepted.
	EventResyncApplied logging.EventType = "protocol.resync_applied"
	// EventResyncIgnored is emitted when a late or unsolicited snapshot is
	// discarded. First responder wins; this is not an error.
	EventResyncIgnored logging.EventType = "protocol.resync_ignored"
)

// EnvelopePayload describes the envelope the event refers to.
type EnvelopePayload struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ResyncPayload describes a resync exchange.
type ResyncPayload struct {
	Kind    string `json:"kind,omitempty"`
	Inserts int    `json:"inserts,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func Applied(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload EnvelopePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventApplied,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}

func Dropped(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload EnvelopePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDropped,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}

func ResyncRequested(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResyncRequested,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}

func ResyncApplied(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResyncApplied,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}

func ResyncIgnored(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload ResyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResyncIgnored,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryProtocol,
		Payload:  payload,
	})
}
