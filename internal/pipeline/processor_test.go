package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/track"
)

// ---- fakes ----

type fakeStore struct {
	recs       map[string]*models.Recording
	saveCalls  int
	failSaveOn int // 1-based save call to fail, 0 = never
	statusErr  error
}

func newFakeStore(recs ...*models.Recording) *fakeStore {
	s := &fakeStore{recs: make(map[string]*models.Recording)}
	for _, r := range recs {
		c := *r
		s.recs[r.ID] = &c
	}
	return s
}

func (s *fakeStore) GetRecording(ctx context.Context, id string) (*models.Recording, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, ddb.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (s *fakeStore) SaveRecording(ctx context.Context, rec *models.Recording) error {
	s.saveCalls++
	if s.failSaveOn != 0 && s.saveCalls == s.failSaveOn {
		return errors.New("save failed")
	}
	c := *rec
	s.recs[rec.ID] = &c
	return nil
}

func (s *fakeStore) SetRecordingStatus(ctx context.Context, id string, from []models.RecordingStatus, to models.RecordingStatus) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	rec, ok := s.recs[id]
	if !ok {
		return ddb.ErrNotFound
	}
	for _, f := range from {
		if rec.Status == f {
			rec.Status = to
			return nil
		}
	}
	return ddb.ErrStatusConflict
}

type fakeAudio struct {
	opens int
	err   error
}

func (f *fakeAudio) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), nil
}

type fakeAI struct {
	transcript      string
	transcribeErr   error
	transcribeCalls int

	chatOut   string
	chatErr   error
	chatCalls int
}

func (f *fakeAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	f.transcribeCalls++
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

func (f *fakeAI) ChatJSON(ctx context.Context, system, user string) (string, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatOut, nil
}

type trackedEvent struct {
	name  string
	props track.Props
}

type fakeTracker struct {
	events []trackedEvent
}

func (f *fakeTracker) Track(ctx context.Context, name string, p track.Props) {
	f.events = append(f.events, trackedEvent{name: name, props: p})
}

func (f *fakeTracker) names() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.name)
	}
	return out
}

func newProcessor(store *fakeStore, audio *fakeAudio, ai *fakeAI, tracker *fakeTracker) *Processor {
	return &Processor{Store: store, Audio: audio, AI: ai, Tracker: tracker}
}

const validChatOut = `{
	"title": "Ship Friday",
	"summary": "Decided to ship Friday.",
	"action_items": [
		{"task": "Update API docs", "due_date": "2025-01-02", "owner": "Ahmed", "project": null, "confidence": "high"}
	],
	"meta": {"language": "en", "source": "text", "decision_context": "release planning"}
}`

// ---- tests ----

func TestProcessMissingRecordingIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ai := &fakeAI{}
	tracker := &fakeTracker{}
	p := newProcessor(store, &fakeAudio{}, ai, tracker)

	if err := p.Process(context.Background(), "nope"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ai.chatCalls != 0 || ai.transcribeCalls != 0 {
		t.Fatalf("AI called for missing recording")
	}
	if len(tracker.events) != 0 {
		t.Fatalf("unexpected events: %v", tracker.names())
	}
}

func TestProcessReadyRecordingIsNoOp(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{
		ID:            "r1",
		Status:        models.StatusReady,
		Transcript:    "already done",
		AITitle:       "Title",
		AISummary:     "Summary",
		AIActionItems: []string{"Do a thing"},
		AIMeta:        &models.AIMeta{Language: "en", Source: "text"},
	}
	store := newFakeStore(rec)
	before := *store.recs["r1"]

	ai := &fakeAI{chatOut: validChatOut}
	p := newProcessor(store, &fakeAudio{}, ai, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ai.chatCalls != 0 || ai.transcribeCalls != 0 {
		t.Fatalf("AI called for ready recording")
	}
	if store.saveCalls != 0 {
		t.Fatalf("ready recording was saved")
	}
	if !reflect.DeepEqual(before, *store.recs["r1"]) {
		t.Fatalf("ready recording mutated")
	}
}

func TestProcessUnknownStatusIsNoOp(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: "archived", Transcript: "text here"}
	store := newFakeStore(rec)
	ai := &fakeAI{chatOut: validChatOut}
	p := newProcessor(store, &fakeAudio{}, ai, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ai.chatCalls != 0 {
		t.Fatalf("AI called for unknown status")
	}
	if store.recs["r1"].Status != "archived" {
		t.Fatalf("status changed: %s", store.recs["r1"].Status)
	}
}

func TestProcessClaimLostRaceIsNoOp(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusUploaded, Transcript: "some transcript"}
	store := newFakeStore(rec)
	store.statusErr = ddb.ErrStatusConflict
	ai := &fakeAI{chatOut: validChatOut}
	p := newProcessor(store, &fakeAudio{}, ai, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ai.chatCalls != 0 {
		t.Fatalf("AI called after losing the claim race")
	}
}

func TestProcessMalformedOutputFailsWithoutPartialWrites(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusProcessing, Transcript: "we decided things"}
	store := newFakeStore(rec)
	// confidence missing on the only action item
	ai := &fakeAI{chatOut: `{
		"title": "T", "summary": "S",
		"action_items": [{"task": "Do it"}],
		"meta": {"language": "en", "source": "text", "decision_context": null}
	}`}
	tracker := &fakeTracker{}
	p := newProcessor(store, &fakeAudio{}, ai, tracker)

	if err := p.Process(context.Background(), "r1"); err == nil {
		t.Fatalf("expected schema violation error")
	}

	got := store.recs["r1"]
	if got.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.AITitle != "" || got.AISummary != "" || got.AIActionItems != nil {
		t.Fatalf("partial AI fields written: %+v", got)
	}
	if got.AIMeta == nil || got.AIMeta.Error == "" {
		t.Fatalf("missing failure meta")
	}
	if got.AIMeta.ErrorDetails == nil {
		t.Fatalf("expected diagnostic details outside production")
	}
	if names := tracker.names(); len(names) != 1 || names[0] != track.EventProcessingFailed {
		t.Fatalf("events = %v, want [ai_failed]", names)
	}
}

func TestProcessProductionHidesErrorDetails(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusProcessing, Transcript: "we decided things"}
	store := newFakeStore(rec)
	p := newProcessor(store, &fakeAudio{}, &fakeAI{chatErr: errors.New("boom")}, &fakeTracker{})
	p.Production = true

	if err := p.Process(context.Background(), "r1"); err == nil {
		t.Fatalf("expected error")
	}
	if details := store.recs["r1"].AIMeta.ErrorDetails; details != nil {
		t.Fatalf("details leaked in production: %q", *details)
	}
}

func TestProcessNoTranscriptNoAudioFails(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusUploaded}
	store := newFakeStore(rec)
	ai := &fakeAI{}
	p := newProcessor(store, &fakeAudio{}, ai, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err == nil {
		t.Fatalf("expected error")
	}
	if ai.transcribeCalls != 0 || ai.chatCalls != 0 {
		t.Fatalf("AI called without input")
	}
	if store.recs["r1"].Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", store.recs["r1"].Status)
	}
}

// Transcript persistence is decoupled from run success: a failed structuring
// run keeps the transcript, and the retry skips re-transcription.
func TestProcessRetryReusesPersistedTranscript(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusUploaded, AudioKey: "audio/anon/a1/r1.webm"}
	store := newFakeStore(rec)
	audio := &fakeAudio{}
	ai := &fakeAI{transcript: "We decided to ship Friday.", chatErr: errors.New("upstream down")}
	p := newProcessor(store, audio, ai, &fakeTracker{})

	// Run 1: transcribes, then fails at structuring.
	if err := p.Process(context.Background(), "r1"); err == nil {
		t.Fatalf("expected structuring failure")
	}
	got := store.recs["r1"]
	if got.Status != models.StatusFailed {
		t.Fatalf("run 1 status = %s, want failed", got.Status)
	}
	if got.Transcript != "We decided to ship Friday." {
		t.Fatalf("transcript not persisted: %q", got.Transcript)
	}
	if ai.transcribeCalls != 1 {
		t.Fatalf("transcribe calls = %d, want 1", ai.transcribeCalls)
	}

	// Run 2: retry succeeds without re-transcribing.
	ai.chatErr = nil
	ai.chatOut = validChatOut
	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("run 2: %v", err)
	}
	got = store.recs["r1"]
	if got.Status != models.StatusReady {
		t.Fatalf("run 2 status = %s, want ready", got.Status)
	}
	if ai.transcribeCalls != 1 {
		t.Fatalf("retry re-transcribed: calls = %d", ai.transcribeCalls)
	}
	if ai.chatCalls != 2 {
		t.Fatalf("chat calls = %d, want 2", ai.chatCalls)
	}
	if audio.opens != 1 {
		t.Fatalf("audio opened %d times, want 1", audio.opens)
	}
}

func TestProcessMapsStructuredOutput(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{
		ID:         "r1",
		UserID:     "u1",
		Status:     models.StatusProcessing,
		Transcript: "We decided to ship Friday, Ahmed will update the API docs by Thursday.",
	}
	store := newFakeStore(rec)
	tracker := &fakeTracker{}
	p := newProcessor(store, &fakeAudio{}, &fakeAI{chatOut: validChatOut}, tracker)

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.recs["r1"]
	if got.Status != models.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if !reflect.DeepEqual(got.AIActionItems, []string{"Update API docs"}) {
		t.Fatalf("ai_action_items = %v", got.AIActionItems)
	}
	full := got.AIMeta.ActionItemsFull
	if len(full) != 1 || full[0].Confidence != models.ConfidenceHigh {
		t.Fatalf("action_items_full = %+v", full)
	}
	if full[0].DueDate == nil || *full[0].DueDate != "2025-01-02" {
		t.Fatalf("due_date = %v", full[0].DueDate)
	}
	if full[0].Owner == nil || *full[0].Owner != "Ahmed" {
		t.Fatalf("owner = %v", full[0].Owner)
	}
	if got.AIMeta.ChatModel == "" || got.AIMeta.TranscriptionModel != nil {
		t.Fatalf("model metadata wrong for text input: %+v", got.AIMeta)
	}

	if names := tracker.names(); len(names) != 1 || names[0] != track.EventProcessingReady {
		t.Fatalf("events = %v, want [ai_ready]", names)
	}
	meta := tracker.events[0].props.Metadata
	if meta["input_type"] != "text" || meta["language"] != "en" || meta["action_items_count"] != 1 {
		t.Fatalf("ai_ready metadata = %v", meta)
	}
}

// The display list is a verbatim, order-preserving projection of the task
// fields, capped at 8; the full list is retained in ai_meta.
func TestProcessDisplayProjectionIsBounded(t *testing.T) {
	t.Parallel()

	items := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		items = append(items, fmt.Sprintf(
			`{"task": "task %d", "due_date": null, "owner": null, "project": null, "confidence": "low"}`, i))
	}
	out := fmt.Sprintf(`{
		"title": "T", "summary": "S",
		"action_items": [%s],
		"meta": {"language": "en", "source": "text", "decision_context": null}
	}`, strings.Join(items, ","))

	rec := &models.Recording{ID: "r1", Status: models.StatusProcessing, Transcript: "lots of decisions"}
	store := newFakeStore(rec)
	p := newProcessor(store, &fakeAudio{}, &fakeAI{chatOut: out}, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.recs["r1"]
	if len(got.AIActionItems) != 8 {
		t.Fatalf("display list has %d items, want 8", len(got.AIActionItems))
	}
	for i, task := range got.AIActionItems {
		if want := fmt.Sprintf("task %d", i); task != want {
			t.Fatalf("display[%d] = %q, want %q", i, task, want)
		}
	}
	if len(got.AIMeta.ActionItemsFull) != 10 {
		t.Fatalf("full list has %d items, want 10", len(got.AIMeta.ActionItemsFull))
	}
}

func TestProcessStripsCodeFences(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusProcessing, Transcript: "fenced output"}
	store := newFakeStore(rec)
	p := newProcessor(store, &fakeAudio{}, &fakeAI{chatOut: "```json\n" + validChatOut + "\n```"}, &fakeTracker{})

	if err := p.Process(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.recs["r1"].Status != models.StatusReady {
		t.Fatalf("status = %s, want ready", store.recs["r1"].Status)
	}
}

// A save failure after a successful AI call must not mask the result as a
// processing failure; the error propagates so the queue redelivers.
func TestProcessFinalSaveFailurePropagates(t *testing.T) {
	t.Parallel()

	rec := &models.Recording{ID: "r1", Status: models.StatusProcessing, Transcript: "text"}
	store := newFakeStore(rec)
	store.failSaveOn = 1 // the only save of this run is the final one
	tracker := &fakeTracker{}
	p := newProcessor(store, &fakeAudio{}, &fakeAI{chatOut: validChatOut}, tracker)

	if err := p.Process(context.Background(), "r1"); err == nil {
		t.Fatalf("expected save error")
	}
	if got := store.recs["r1"].Status; got != models.StatusProcessing {
		t.Fatalf("status = %s, want processing left for redelivery", got)
	}
	if len(tracker.events) != 0 {
		t.Fatalf("unexpected events: %v", tracker.names())
	}
}
