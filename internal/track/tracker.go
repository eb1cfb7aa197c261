// Package track is the fire-and-forget analytics sink. Tracking must never
// break the caller: failures are logged and swallowed, and each write is
// bounded by a short timeout.
package track

import (
	"context"
	"log"
	"time"

	"github.com/notepin/notepin-backend/internal/models"

	"github.com/oklog/ulid/v2"
)

// Common event names emitted by the backend.
const (
	EventRecordingCreated  = "recording_created"
	EventTextNoteCreated   = "text_note_created"
	EventProcessingStarted = "ai_processing_started"
	EventProcessingReady   = "ai_ready"
	EventProcessingFailed  = "ai_failed"
	EventShareCreated      = "share_created"
	EventShareOpened       = "share_opened"
	EventAnonymousLinked   = "anonymous_linked"
)

const trackTimeout = 2 * time.Second

// EventWriter appends events to storage. *ddb.Repo satisfies it.
type EventWriter interface {
	PutEvent(ctx context.Context, ev models.Event) error
}

// Props carries the optional references and metadata of an event.
type Props struct {
	RecordingID string
	UserID      string
	Metadata    map[string]any
}

// Tracker writes events best-effort.
type Tracker struct {
	Events EventWriter
}

// Track records an event. It never returns an error and never panics the
// caller's flow; a failed write is only logged.
func (t *Tracker) Track(ctx context.Context, name string, p Props) {
	if t == nil || t.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, trackTimeout)
	defer cancel()

	ev := models.Event{
		ID:          ulid.Make().String(),
		Name:        name,
		RecordingID: p.RecordingID,
		UserID:      p.UserID,
		Metadata:    p.Metadata,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := t.Events.PutEvent(ctx, ev); err != nil {
		log.Printf("track: %s: %v", name, err)
	}
}
