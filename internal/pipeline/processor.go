// Package pipeline drives a recording from raw input to structured AI
// output, or to a terminal failure, safely retryable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"

	"github.com/notepin/notepin-backend/internal/ai"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/track"
	"github.com/notepin/notepin-backend/internal/validate"
)

// The display list of action items is capped; the full structured list is
// kept in ai_meta.action_items_full.
const maxDisplayActionItems = 8

// failedMessage is the generic user-facing error on failed recordings.
const failedMessage = "Processing failed. Please try again."

// RecordingStore is the persistence the processor needs.
type RecordingStore interface {
	GetRecording(ctx context.Context, id string) (*models.Recording, error)
	SaveRecording(ctx context.Context, rec *models.Recording) error
	SetRecordingStatus(ctx context.Context, id string, from []models.RecordingStatus, to models.RecordingStatus) error
}

// AudioStore opens stored audio objects by key.
type AudioStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AI is the external provider boundary: one transcription call, one
// structured-extraction call.
type AI interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

// Tracker emits lifecycle events best-effort.
type Tracker interface {
	Track(ctx context.Context, name string, p track.Props)
}

// Processor runs the processing job for one recording at a time. Instances
// share no mutable state; concurrency safety across duplicate invocations
// comes from the status gate plus conditional status transitions.
type Processor struct {
	Store   RecordingStore
	Audio   AudioStore
	AI      AI
	Tracker Tracker

	// Production hides diagnostic error details from stored failures.
	Production bool
}

// Process drives one recording to ready or failed.
//
// Returning a non-nil error signals the queue to redeliver; the retry
// re-enters the idempotency gate, so completed work (a persisted transcript,
// a ready status) is never redone. NotFound and wrong-state conditions are
// deliberate no-ops so redundant deliveries die quietly.
func (p *Processor) Process(ctx context.Context, recordingID string) error {
	rec, err := p.Store.GetRecording(ctx, recordingID)
	if errors.Is(err, ddb.ErrNotFound) {
		log.Printf("pipeline: recording %s not found, skipping", recordingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recording %s: %w", recordingID, err)
	}

	// Idempotency gate: ready is absorbing, unknown states are left alone.
	if rec.Status == models.StatusReady {
		log.Printf("pipeline: recording %s already processed, skipping", recordingID)
		return nil
	}
	if !rec.Processable() {
		log.Printf("pipeline: recording %s has status %q, skipping", recordingID, rec.Status)
		return nil
	}

	// Claim the recording before doing work, so a crash mid-run leaves it
	// retryable. The conditional transition also closes the window where two
	// deliveries both pass the gate.
	if rec.Status != models.StatusProcessing {
		err := p.Store.SetRecordingStatus(ctx, rec.ID,
			[]models.RecordingStatus{models.StatusUploaded, models.StatusFailed},
			models.StatusProcessing)
		if errors.Is(err, ddb.ErrStatusConflict) {
			log.Printf("pipeline: recording %s claimed concurrently, skipping", recordingID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim recording %s: %w", recordingID, err)
		}
		rec.Status = models.StatusProcessing
	}

	note, inputType, runErr := p.run(ctx, rec)
	if runErr != nil {
		p.markFailed(ctx, rec, runErr)
		p.Tracker.Track(ctx, track.EventProcessingFailed, track.Props{
			RecordingID: rec.ID,
			UserID:      rec.UserID,
		})
		log.Printf("pipeline: recording %s failed: %v", rec.ID, runErr)
		return runErr
	}

	if err := p.finish(ctx, rec, note, inputType); err != nil {
		// The AI result is computed but the save failed. Leave state as-is
		// and let the queue redeliver; the persisted transcript keeps the
		// retry down to one chat call.
		return fmt.Errorf("save recording %s: %w", rec.ID, err)
	}

	p.Tracker.Track(ctx, track.EventProcessingReady, track.Props{
		RecordingID: rec.ID,
		UserID:      rec.UserID,
		Metadata: map[string]any{
			"input_type":         inputType,
			"language":           note.Language,
			"action_items_count": len(note.ActionItems),
		},
	})
	log.Printf("pipeline: recording %s completed input_type=%s language=%s", rec.ID, inputType, note.Language)
	return nil
}

// run obtains a transcript and the structured extraction for it.
func (p *Processor) run(ctx context.Context, rec *models.Recording) (*validate.StructuredNote, string, error) {
	transcript := rec.Transcript
	inputType := "text"

	if transcript == "" && rec.AudioKey != "" {
		inputType = "audio"
		text, err := p.transcribe(ctx, rec.AudioKey)
		if err != nil {
			return nil, inputType, err
		}
		// Persist immediately so a retry never re-transcribes.
		rec.Transcript = text
		if err := p.Store.SaveRecording(ctx, rec); err != nil {
			return nil, inputType, fmt.Errorf("persist transcript: %w", err)
		}
		transcript = text
	}

	if transcript == "" {
		return nil, inputType, errors.New("no transcript or audio available for processing")
	}

	raw, err := p.AI.ChatJSON(ctx, systemPrompt, userPrompt(transcript, inputType))
	if err != nil {
		return nil, inputType, err
	}
	note, err := validate.ParseStructuredNote(raw)
	if err != nil {
		return nil, inputType, err
	}
	return note, inputType, nil
}

func (p *Processor) transcribe(ctx context.Context, audioKey string) (string, error) {
	body, err := p.Audio.Open(ctx, audioKey)
	if err != nil {
		return "", fmt.Errorf("open audio %s: %w", audioKey, err)
	}
	defer body.Close()

	text, err := p.AI.Transcribe(ctx, body, path.Base(audioKey))
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", audioKey, err)
	}
	return text, nil
}

// finish maps the validated output into the recording and saves once.
func (p *Processor) finish(ctx context.Context, rec *models.Recording, note *validate.StructuredNote, inputType string) error {
	display := make([]string, 0, maxDisplayActionItems)
	for _, item := range note.ActionItems {
		if len(display) == maxDisplayActionItems {
			break
		}
		display = append(display, item.Task)
	}

	var transcriptionModel *string
	if inputType == "audio" {
		m := ai.TranscriptionModel
		transcriptionModel = &m
	}

	rec.AITitle = note.Title
	rec.AISummary = note.Summary
	rec.AIActionItems = display
	rec.AIMeta = &models.AIMeta{
		Language:           note.Language,
		Source:             note.Source,
		DecisionContext:    note.DecisionContext,
		ActionItemsFull:    note.ActionItems,
		TranscriptionModel: transcriptionModel,
		ChatModel:          ai.ChatModel,
		ProcessedAt:        ddb.NowISO(),
	}
	rec.Status = models.StatusReady
	return p.Store.SaveRecording(ctx, rec)
}

// markFailed records the terminal failure for this run. AI fields from
// before the run are left untouched; ai_meta is replaced with the error
// blob.
func (p *Processor) markFailed(ctx context.Context, rec *models.Recording, cause error) {
	var details *string
	if !p.Production {
		msg := cause.Error()
		details = &msg
	}
	rec.Status = models.StatusFailed
	rec.AIMeta = &models.AIMeta{
		Error:        failedMessage,
		ErrorDetails: details,
		FailedAt:     ddb.NowISO(),
	}
	if err := p.Store.SaveRecording(ctx, rec); err != nil {
		log.Printf("pipeline: recording %s: persisting failure state: %v", rec.ID, err)
	}
}
