// Package main manages note actions: the tasks, meetings and reminders a
// user derives from a processed note.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/oklog/ulid/v2"
)

// createActionRequest carries the per-type payload fields flattened, as the
// note editor submits them.
type createActionRequest struct {
	Type          string   `json:"type"`
	SelectedItems []string `json:"selected_items"`
	Title         string   `json:"title"`

	// task
	DueDate  *string `json:"due_date"`
	Priority string  `json:"priority"`

	// meeting
	Date            *string  `json:"date"`
	Time            *string  `json:"time"`
	DurationMinutes *int     `json:"duration_minutes"`
	Attendees       []string `json:"attendees"`

	// reminder
	RemindAt     *string `json:"remind_at"`
	ReminderNote *string `json:"reminder_note"`
}

// updateActionRequest updates the status of an existing action.
type updateActionRequest struct {
	Status string `json:"status"`
}

// App holds the application state.
type App struct {
	env  config.Env
	repo *ddb.Repo
}

func main() {
	env := config.MustLoad()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	app := &App{env: env, repo: &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}}
	lambda.Start(app.handler)
}

// handler routes create/update/delete by HTTP method.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, resp, ok := a.loadAuthorized(ctx, req)
	if !ok {
		return resp, nil
	}

	switch req.RequestContext.HTTP.Method {
	case http.MethodPost:
		return a.create(ctx, rec, req.Body)
	case http.MethodPatch:
		return a.update(ctx, rec, req.PathParameters["actionId"], req.Body)
	case http.MethodDelete:
		return a.delete(ctx, rec, req.PathParameters["actionId"])
	}
	return httpx.Error(http.StatusMethodNotAllowed, "method not allowed")
}

func (a *App) loadAuthorized(ctx context.Context, req events.APIGatewayV2HTTPRequest) (*models.Recording, events.APIGatewayV2HTTPResponse, bool) {
	id := req.PathParameters["id"]
	if id == "" {
		resp, _ := httpx.Error(http.StatusBadRequest, "missing recording id")
		return nil, resp, false
	}
	rec, err := a.repo.GetRecording(ctx, id)
	if errors.Is(err, ddb.ErrNotFound) {
		resp, _ := httpx.Error(http.StatusNotFound, "not found")
		return nil, resp, false
	}
	if err != nil {
		log.Printf("actions: load %s: %v", id, err)
		resp, _ := httpx.Error(http.StatusInternalServerError, "db error")
		return nil, resp, false
	}
	identity := authz.Resolve(req, a.env.DevBypassAuth)
	if !identity.Owns(rec) {
		resp, _ := httpx.Error(http.StatusForbidden, "unauthorized")
		return nil, resp, false
	}
	return rec, events.APIGatewayV2HTTPResponse{}, true
}

func (a *App) create(ctx context.Context, rec *models.Recording, body string) (events.APIGatewayV2HTTPResponse, error) {
	var req createActionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if err := validate.NoteActionType(req.Type); err != nil {
		return httpx.Error(http.StatusUnprocessableEntity, err.Error())
	}
	if req.Title == "" {
		return httpx.Error(http.StatusUnprocessableEntity, "title required")
	}

	action := &models.NoteAction{
		ID:          ulid.Make().String(),
		RecordingID: rec.ID,
		Type:        req.Type,
		SourceItems: req.SelectedItems,
		Payload:     buildPayload(req),
		Status:      models.ActionStatusOpen,
	}
	if err := a.repo.PutNoteAction(ctx, action); err != nil {
		log.Printf("actions: create %s: %v", rec.ID, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, map[string]any{"success": true, "action": action})
}

func (a *App) update(ctx context.Context, rec *models.Recording, actionID, body string) (events.APIGatewayV2HTTPResponse, error) {
	if actionID == "" {
		return httpx.Error(http.StatusBadRequest, "missing action id")
	}
	var req updateActionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if err := validate.NoteActionStatus(req.Status); err != nil {
		return httpx.Error(http.StatusUnprocessableEntity, err.Error())
	}

	action, err := a.repo.UpdateNoteActionStatus(ctx, rec.ID, actionID, req.Status)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "not found")
	}
	if err != nil {
		log.Printf("actions: update %s/%s: %v", rec.ID, actionID, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, map[string]any{"success": true, "action": action})
}

func (a *App) delete(ctx context.Context, rec *models.Recording, actionID string) (events.APIGatewayV2HTTPResponse, error) {
	if actionID == "" {
		return httpx.Error(http.StatusBadRequest, "missing action id")
	}
	err := a.repo.DeleteNoteAction(ctx, rec.ID, actionID)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "not found")
	}
	if err != nil {
		log.Printf("actions: delete %s/%s: %v", rec.ID, actionID, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, map[string]any{"success": true})
}

// buildPayload keeps only the fields relevant to the action type.
func buildPayload(req createActionRequest) map[string]any {
	payload := map[string]any{"title": req.Title}
	switch req.Type {
	case models.ActionTypeTask:
		payload["due_date"] = req.DueDate
		payload["priority"] = req.Priority
		if req.Priority == "" {
			payload["priority"] = "medium"
		}
	case models.ActionTypeMeeting:
		payload["date"] = req.Date
		payload["time"] = req.Time
		payload["duration_minutes"] = 30
		if req.DurationMinutes != nil {
			payload["duration_minutes"] = *req.DurationMinutes
		}
		payload["attendees"] = req.Attendees
	case models.ActionTypeReminder:
		payload["remind_at"] = req.RemindAt
		payload["reminder_note"] = req.ReminderNote
	}
	return payload
}
