// Package models defines the data models used in the application.
package models

// RecordingStatus represents the lifecycle state of a recording.
type RecordingStatus string

// Possible values for RecordingStatus
const (
	StatusUploaded   RecordingStatus = "uploaded"
	StatusProcessing RecordingStatus = "processing"
	StatusReady      RecordingStatus = "ready"
	StatusFailed     RecordingStatus = "failed"
)

// Confidence levels for AI-extracted action items.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ActionItem is one AI-extracted task from a note.
type ActionItem struct {
	Task       string  `dynamodbav:"task" json:"task"`
	DueDate    *string `dynamodbav:"due_date" json:"due_date"`
	Owner      *string `dynamodbav:"owner" json:"owner"`
	Project    *string `dynamodbav:"project" json:"project"`
	Confidence string  `dynamodbav:"confidence" json:"confidence"`
}

// UserOverrides is the user-edited layer stored inside AIMeta. It never
// replaces the AI fields themselves.
type UserOverrides struct {
	Title       *string  `dynamodbav:"title" json:"title"`
	Summary     *string  `dynamodbav:"summary" json:"summary"`
	ActionItems []string `dynamodbav:"action_items" json:"action_items"`
}

// AIMeta is the metadata blob written by the processing pipeline, plus the
// user override/action-state layers written by the note-editing endpoints.
type AIMeta struct {
	Language           string          `dynamodbav:"language,omitempty" json:"language,omitempty"`
	Source             string          `dynamodbav:"source,omitempty" json:"source,omitempty"`
	DecisionContext    *string         `dynamodbav:"decision_context,omitempty" json:"decision_context,omitempty"`
	ActionItemsFull    []ActionItem    `dynamodbav:"action_items_full,omitempty" json:"action_items_full,omitempty"`
	TranscriptionModel *string         `dynamodbav:"transcription_model,omitempty" json:"transcription_model,omitempty"`
	ChatModel          string          `dynamodbav:"chat_model,omitempty" json:"chat_model,omitempty"`
	ProcessedAt        string          `dynamodbav:"processed_at,omitempty" json:"processed_at,omitempty"`
	Error              string          `dynamodbav:"error,omitempty" json:"error,omitempty"`
	ErrorDetails       *string         `dynamodbav:"error_details,omitempty" json:"error_details,omitempty"`
	FailedAt           string          `dynamodbav:"failed_at,omitempty" json:"failed_at,omitempty"`
	UserOverrides      *UserOverrides  `dynamodbav:"user_overrides,omitempty" json:"user_overrides,omitempty"`
	ActionState        map[string]bool `dynamodbav:"action_state,omitempty" json:"action_state,omitempty"`
	EditedAt           string          `dynamodbav:"edited_at,omitempty" json:"edited_at,omitempty"`
}

// Recording represents one voice or text note submitted by a user.
//
// Ownership invariant: exactly one of UserID / AnonymousID is set at any
// time. AnonymousID is cleared when the recording is linked to a user.
type Recording struct {
	// DynamoDB keys
	PK     string `dynamodbav:"PK" json:"-"`     // REC#<recordingID> (ULID)
	SK     string `dynamodbav:"SK" json:"-"`     // META
	GSI1PK string `dynamodbav:"GSI1PK" json:"-"` // USER#<sub> or ANON#<uuid>
	GSI1SK string `dynamodbav:"GSI1SK" json:"-"` // created_at

	ID              string          `dynamodbav:"recording_id" json:"id"`
	UserID          string          `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	AnonymousID     string          `dynamodbav:"anonymous_id,omitempty" json:"anonymous_id,omitempty"`
	Status          RecordingStatus `dynamodbav:"status" json:"status"`
	AudioKey        string          `dynamodbav:"audio_key,omitempty" json:"audio_key,omitempty"`
	DurationSeconds *int            `dynamodbav:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	Transcript      string          `dynamodbav:"transcript,omitempty" json:"transcript,omitempty"`
	AITitle         string          `dynamodbav:"ai_title,omitempty" json:"ai_title,omitempty"`
	AISummary       string          `dynamodbav:"ai_summary,omitempty" json:"ai_summary,omitempty"`
	AIActionItems   []string        `dynamodbav:"ai_action_items,omitempty" json:"ai_action_items,omitempty"`
	AIMeta          *AIMeta         `dynamodbav:"ai_meta,omitempty" json:"ai_meta,omitempty"`
	CreatedAt       string          `dynamodbav:"created_at" json:"created_at"` // ISO8601
	UpdatedAt       string          `dynamodbav:"updated_at" json:"updated_at"` // ISO8601
}

// Processable reports whether the processing job may act on the current
// status. Ready recordings are never reprocessed.
func (r *Recording) Processable() bool {
	switch r.Status {
	case StatusProcessing, StatusUploaded, StatusFailed:
		return true
	}
	return false
}

// NoteAction types.
const (
	ActionTypeTask     = "task"
	ActionTypeMeeting  = "meeting"
	ActionTypeReminder = "reminder"
)

// NoteAction statuses.
const (
	ActionStatusOpen      = "open"
	ActionStatusDone      = "done"
	ActionStatusCancelled = "cancelled"
)

// NoteAction is a user-created task/meeting/reminder derived from a recording.
type NoteAction struct {
	PK string `dynamodbav:"PK" json:"-"` // REC#<recordingID>
	SK string `dynamodbav:"SK" json:"-"` // ACT#<actionID> (ULID)

	ID          string         `dynamodbav:"action_id" json:"id"`
	RecordingID string         `dynamodbav:"recording_id" json:"recording_id"`
	Type        string         `dynamodbav:"type" json:"type"`
	SourceItems []string       `dynamodbav:"source_items,omitempty" json:"source_items,omitempty"`
	Payload     map[string]any `dynamodbav:"payload" json:"payload"`
	Status      string         `dynamodbav:"status" json:"status"`
	CreatedAt   string         `dynamodbav:"created_at" json:"created_at"`
}

// Share exposes a recording read-only at a public token URL.
type Share struct {
	PK string `dynamodbav:"PK" json:"-"` // SHARE#<token> or REC#<recordingID>
	SK string `dynamodbav:"SK" json:"-"` // META or SHARE

	RecordingID string `dynamodbav:"recording_id" json:"recording_id"`
	Token       string `dynamodbav:"token" json:"token"`
	CreatedAt   string `dynamodbav:"created_at" json:"created_at"`
}

// Event is an append-only analytics record. Events are write-only and hold
// soft references to recordings/users.
type Event struct {
	PK string `dynamodbav:"PK" json:"-"` // EVT#<eventID> (ULID)
	SK string `dynamodbav:"SK" json:"-"` // META

	ID          string         `dynamodbav:"event_id" json:"id"`
	Name        string         `dynamodbav:"name" json:"name"`
	RecordingID string         `dynamodbav:"recording_id,omitempty" json:"recording_id,omitempty"`
	UserID      string         `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	Metadata    map[string]any `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt   string         `dynamodbav:"created_at" json:"created_at"`
}
