// Package validate checks request input and AI output before either reaches
// storage.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/s3io"
)

var anonIDRx = regexp.MustCompile(`^[a-zA-Z0-9\-]{1,64}$`)

// Text note bounds match the original product rules: short pastes are
// rejected, and anything above 20k characters is cut off before it reaches
// the AI spend.
const (
	textNoteMin = 10
	textNoteMax = 20000
)

const maxDurationSeconds = 3600

// AudioUpload checks the declared filename, content type and duration of an
// audio upload request.
func AudioUpload(filename, contentType string, durationSeconds *int) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s3io.AllowedAudioExt(ext) {
		return fmt.Errorf("unsupported audio format %q", ext)
	}
	want := s3io.ContentTypeForExt(ext)
	if ct := strings.TrimSpace(strings.ToLower(contentType)); ct != "" && ct != want {
		return fmt.Errorf("content type %q does not match %q uploads", ct, ext)
	}
	if durationSeconds != nil && (*durationSeconds < 0 || *durationSeconds > maxDurationSeconds) {
		return fmt.Errorf("duration must be between 0 and %d seconds", maxDurationSeconds)
	}
	return nil
}

// TextNote normalizes and validates pasted note text.
func TextNote(text string) (string, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("no text provided")
	}
	n := utf8.RuneCountInString(text)
	if n < textNoteMin {
		return "", fmt.Errorf("text must be at least %d characters", textNoteMin)
	}
	if n > textNoteMax {
		return "", fmt.Errorf("text must be at most %d characters", textNoteMax)
	}
	return text, nil
}

// AnonymousID checks a client-supplied anonymous identifier.
func AnonymousID(id string) error {
	if id == "" {
		return nil
	}
	if !anonIDRx.MatchString(id) {
		return errors.New("invalid anonymous_id")
	}
	return nil
}

// NoteActionType checks the type of a note action.
func NoteActionType(t string) error {
	switch t {
	case models.ActionTypeTask, models.ActionTypeMeeting, models.ActionTypeReminder:
		return nil
	}
	return fmt.Errorf("invalid action type %q", t)
}

// NoteActionStatus checks a note action status update.
func NoteActionStatus(s string) error {
	switch s {
	case models.ActionStatusOpen, models.ActionStatusDone, models.ActionStatusCancelled:
		return nil
	}
	return fmt.Errorf("invalid action status %q", s)
}

// Client-originated analytics events are allowlisted; everything else is
// emitted server-side.
var allowedClientEvents = map[string]bool{
	"auth_prompt_shown": true,
}

// ClientEvent checks an analytics event name submitted by the frontend.
func ClientEvent(name string) error {
	if len(name) == 0 || len(name) > 100 {
		return errors.New("invalid event name")
	}
	if !allowedClientEvents[name] {
		return errors.New("invalid event")
	}
	return nil
}
