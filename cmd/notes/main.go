// Package main handles note edits: user overrides of the AI fields and the
// action-item check state. Overrides live in a layer inside ai_meta; the AI
// fields themselves are never overwritten.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// overrideRequest is the user-edited layer for a note.
type overrideRequest struct {
	Title       *string  `json:"title"`
	Summary     *string  `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// actionStateRequest carries the per-item done flags.
type actionStateRequest struct {
	State map[string]bool `json:"state"`
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

// handler routes the two PATCH edits by path suffix.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	rec, resp, ok := a.loadAuthorized(ctx, req)
	if !ok {
		return resp, nil
	}

	switch {
	case strings.HasSuffix(req.RawPath, "/override"):
		return a.updateOverride(ctx, rec, req.Body)
	case strings.HasSuffix(req.RawPath, "/action-state"):
		return a.updateActionState(ctx, rec, req.Body)
	}
	return httpx.Error(http.StatusNotFound, "not found")
}

// loadAuthorized fetches the recording and checks ownership. On failure the
// returned response is already populated.
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
		log.Printf("notes: load %s: %v", id, err)
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

func (a *App) updateOverride(ctx context.Context, rec *models.Recording, body string) (events.APIGatewayV2HTTPResponse, error) {
	var req overrideRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}

	meta := rec.AIMeta
	if meta == nil {
		meta = &models.AIMeta{}
	}
	meta.UserOverrides = &models.UserOverrides{
		Title:       req.Title,
		Summary:     req.Summary,
		ActionItems: req.ActionItems,
	}
	meta.EditedAt = ddb.NowISO()
	rec.AIMeta = meta

	if err := a.repo.SaveRecording(ctx, rec); err != nil {
		log.Printf("notes: save override %s: %v", rec.ID, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, map[string]any{"success": true, "ai_meta": rec.AIMeta})
}

func (a *App) updateActionState(ctx context.Context, rec *models.Recording, body string) (events.APIGatewayV2HTTPResponse, error) {
	var req actionStateRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}

	meta := rec.AIMeta
	if meta == nil {
		meta = &models.AIMeta{}
	}
	meta.ActionState = req.State
	rec.AIMeta = meta

	if err := a.repo.SaveRecording(ctx, rec); err != nil {
		log.Printf("notes: save action state %s: %v", rec.ID, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	return httpx.JSON(http.StatusOK, map[string]any{"success": true, "ai_meta": rec.AIMeta})
}
