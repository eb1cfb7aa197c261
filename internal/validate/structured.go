package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/notepin/notepin-backend/internal/models"
)

// StructuredNote is the validated shape of the AI extraction output.
type StructuredNote struct {
	Title           string
	Summary         string
	ActionItems     []models.ActionItem
	Language        string
	Source          string
	DecisionContext *string
}

var (
	fenceOpenRx  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceCloseRx = regexp.MustCompile("\\s*```$")
	dueDateRx    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Summaries are prompted to stay under 4 lines; past this length we only
// warn, since rejecting a usable result over verbosity helps no one.
const summaryWarnLen = 1000

// StripCodeFence removes incidental markdown fencing around near-JSON text.
func StripCodeFence(s string) string {
	if len(s) >= 3 && s[:3] == "```" {
		s = fenceOpenRx.ReplaceAllString(s, "")
		s = fenceCloseRx.ReplaceAllString(s, "")
	}
	return s
}

// ParseStructuredNote parses and validates raw AI output against the strict
// extraction schema. Any violation returns a descriptive error naming the
// offending field or index; there is no partial acceptance.
func ParseStructuredNote(raw string) (*StructuredNote, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &data); err != nil {
		return nil, fmt.Errorf("invalid JSON from AI: %w", err)
	}
	if data == nil {
		return nil, errors.New("AI response is not a valid object")
	}

	title, ok := data["title"].(string)
	if !ok {
		return nil, errors.New("missing or invalid title field")
	}
	summary, ok := data["summary"].(string)
	if !ok {
		return nil, errors.New("missing or invalid summary field")
	}
	rawItems, ok := data["action_items"].([]any)
	if !ok {
		return nil, errors.New("missing or invalid action_items field")
	}
	meta, ok := data["meta"].(map[string]any)
	if !ok {
		return nil, errors.New("missing or invalid meta field")
	}

	language, ok := meta["language"].(string)
	if !ok || (language != "ar" && language != "en") {
		return nil, errors.New("invalid meta.language field")
	}
	source, ok := meta["source"].(string)
	if !ok || (source != "audio" && source != "text") {
		return nil, errors.New("invalid meta.source field")
	}
	decisionContext, err := optionalString(meta["decision_context"], "meta.decision_context")
	if err != nil {
		return nil, err
	}

	items := make([]models.ActionItem, 0, len(rawItems))
	for i, raw := range rawItems {
		item, err := parseActionItem(i, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if len(summary) > summaryWarnLen {
		log.Printf("validate: summary exceeds recommended length (%d chars)", len(summary))
	}

	return &StructuredNote{
		Title:           title,
		Summary:         summary,
		ActionItems:     items,
		Language:        language,
		Source:          source,
		DecisionContext: decisionContext,
	}, nil
}

func parseActionItem(index int, raw any) (models.ActionItem, error) {
	var item models.ActionItem
	m, ok := raw.(map[string]any)
	if !ok {
		return item, fmt.Errorf("action item %d is not an object", index)
	}

	task, ok := m["task"].(string)
	if !ok {
		return item, fmt.Errorf("action item %d missing task field", index)
	}
	confidence, ok := m["confidence"].(string)
	if !ok || (confidence != models.ConfidenceLow && confidence != models.ConfidenceMedium && confidence != models.ConfidenceHigh) {
		return item, fmt.Errorf("action item %d has invalid confidence field", index)
	}
	if due, present := m["due_date"]; present && due != nil {
		s, ok := due.(string)
		if !ok || !dueDateRx.MatchString(s) {
			return item, fmt.Errorf("action item %d has invalid due_date format", index)
		}
		item.DueDate = &s
	}
	item.Owner, _ = optionalString(m["owner"], "")
	item.Project, _ = optionalString(m["project"], "")

	item.Task = task
	item.Confidence = confidence
	return item, nil
}

// optionalString reads a string-or-null value. A non-string, non-null value
// is an error when field naming is requested, and ignored otherwise.
func optionalString(v any, field string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return &s, nil
	}
	if field != "" {
		return nil, fmt.Errorf("invalid %s field", field)
	}
	return nil, nil
}
