package track

import (
	"context"
	"errors"
	"testing"

	"github.com/notepin/notepin-backend/internal/models"
)

type fakeWriter struct {
	events []models.Event
	err    error
}

func (f *fakeWriter) PutEvent(ctx context.Context, ev models.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestTrackWritesEvent(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	tr := &Tracker{Events: w}

	tr.Track(context.Background(), EventProcessingReady, Props{
		RecordingID: "01REC",
		UserID:      "u1",
		Metadata:    map[string]any{"language": "en"},
	})

	if len(w.events) != 1 {
		t.Fatalf("wrote %d events", len(w.events))
	}
	ev := w.events[0]
	if ev.Name != "ai_ready" || ev.RecordingID != "01REC" || ev.UserID != "u1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ID == "" || ev.CreatedAt == "" {
		t.Errorf("missing id/timestamp: %+v", ev)
	}
	if ev.Metadata["language"] != "en" {
		t.Errorf("metadata = %v", ev.Metadata)
	}
}

func TestTrackSwallowsWriteErrors(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{err: errors.New("throttled")}
	tr := &Tracker{Events: w}
	tr.Track(context.Background(), EventShareOpened, Props{}) // must not panic or propagate
	if len(w.events) != 1 {
		t.Fatalf("write not attempted")
	}
}

func TestTrackNilTrackerIsSafe(t *testing.T) {
	t.Parallel()

	var tr *Tracker
	tr.Track(context.Background(), EventShareOpened, Props{})
	(&Tracker{}).Track(context.Background(), EventShareOpened, Props{})
}
