package lifecycle

import (
	"context"

	"footlights/stage/logging"
)

const (
	// EventInsertEntered is emitted when an insert joins the stage.
	EventInsertEntered logging.EventType = "lifecycle.insert_entered"
	// EventInsertRemoved is emitted when an insert leaves the stage.
	EventInsertRemoved logging.EventType = "lifecycle.insert_removed"
	// EventInsertEjected is emitted when an insert is forcibly destroyed
	// after its scene graph was found missing or corrupted.
	EventInsertEjected logging.EventType = "lifecycle.insert_ejected"
	// EventAssetFailed is emitted when an insert's portrait or emote art
	// fails to load.
	EventAssetFailed logging.EventType = "lifecycle.asset_failed"
)

// InsertEnteredPayload captures placement metadata for a new insert.
type InsertEnteredPayload struct {
	Name   string `json:"name"`
	IsLeft bool   `json:"isLeft"`
	Remote bool   `json:"remote"`
}

// InsertRemovedPayload captures the reason an insert left the stage.
type InsertRemovedPayload struct {
	Reason string `json:"reason"`
	Remote bool   `json:"remote"`
}

// AssetFailedPayload carries the path that failed to load.
type AssetFailedPayload struct {
	Path string `json:"path"`
	Err  string `json:"err"`
}

// InsertEntered publishes an insert entry event.
func InsertEntered(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload InsertEnteredPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInsertEntered,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryStage,
		Payload:  payload,
	})
}

// InsertRemoved publishes an insert removal event.
func InsertRemoved(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload InsertRemovedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInsertRemoved,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryStage,
		Payload:  payload,
	})
}

// InsertEjected publishes a hot-eject error event.
func InsertEjected(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInsertEjected,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryStage,
		Payload:  InsertRemovedPayload{Reason: reason},
	})
}

// AssetFailed publishes an asset load failure event.
func AssetFailed(ctx context.Context, pub logging.Publisher, frame uint64, actor logging.EntityRef, payload AssetFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAssetFailed,
		Frame:    frame,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryStage,
		Payload:  payload,
	})
}
