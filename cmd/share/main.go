// Package main creates public share links for recordings and resolves them
// to a read-only projection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/track"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

// sharedRecording is the public, read-only projection. No transcript, no
// metadata, no owner information.
type sharedRecording struct {
	AITitle         string   `json:"ai_title"`
	AISummary       string   `json:"ai_summary"`
	AIActionItems   []string `json:"ai_action_items"`
	DurationSeconds *int     `json:"duration_seconds"`
	CreatedAt       string   `json:"created_at"`
}

// App holds the application state.
type App struct {
	env     config.Env
	repo    *ddb.Repo
	tracker *track.Tracker
}

func main() {
	env := config.MustLoad()
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}
	app := &App{env: env, repo: repo, tracker: &track.Tracker{Events: repo}}
	lambda.Start(app.handler)
}

// handler routes share creation (POST, owner only) and resolution (GET,
// public) by method.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	switch req.RequestContext.HTTP.Method {
	case http.MethodPost:
		return a.create(ctx, req)
	case http.MethodGet:
		return a.resolve(ctx, req)
	}
	return httpx.Error(http.StatusMethodNotAllowed, "method not allowed")
}

// create makes (or returns) the share link for a recording. Sharing requires
// an authenticated owner; anonymous notes cannot be shared.
func (a *App) create(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	identity := authz.Resolve(req, a.env.DevBypassAuth)
	if !identity.IsUser() {
		return httpx.Error(http.StatusUnauthorized, "missing user")
	}

	id := req.PathParameters["id"]
	if id == "" {
		return httpx.Error(http.StatusBadRequest, "missing recording id")
	}
	rec, err := a.repo.GetRecording(ctx, id)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "not found")
	}
	if err != nil {
		log.Printf("share: load %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}
	if rec.UserID != identity.UserID {
		return httpx.Error(http.StatusForbidden, "unauthorized")
	}

	token := newToken()
	share, created, err := a.repo.EnsureShare(ctx, rec.ID, token)
	if err != nil {
		log.Printf("share: ensure %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	if created {
		a.tracker.Track(ctx, track.EventShareCreated, track.Props{
			RecordingID: rec.ID,
			UserID:      identity.UserID,
			Metadata:    map[string]any{"share_token": share.Token},
		})
	}

	return httpx.JSON(http.StatusOK, map[string]string{
		"url":   a.env.AppBaseURL + "/share/" + share.Token,
		"token": share.Token,
	})
}

// resolve serves the public projection behind a share token.
func (a *App) resolve(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	token := req.PathParameters["token"]
	if token == "" {
		return httpx.Error(http.StatusBadRequest, "missing token")
	}

	share, err := a.repo.GetShareByToken(ctx, token)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "not found")
	}
	if err != nil {
		log.Printf("share: token %s: %v", token, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	rec, err := a.repo.GetRecording(ctx, share.RecordingID)
	if err != nil {
		log.Printf("share: recording %s: %v", share.RecordingID, err)
		return httpx.Error(http.StatusNotFound, "not found")
	}

	a.tracker.Track(ctx, track.EventShareOpened, track.Props{
		RecordingID: rec.ID,
		Metadata:    map[string]any{"share_token": token},
	})

	items := rec.AIActionItems
	if items == nil {
		items = []string{}
	}
	return httpx.JSON(http.StatusOK, map[string]any{"recording": sharedRecording{
		AITitle:         rec.AITitle,
		AISummary:       rec.AISummary,
		AIActionItems:   items,
		DurationSeconds: rec.DurationSeconds,
		CreatedAt:       rec.CreatedAt,
	}})
}

// newToken mints an opaque 32-character share token.
func newToken() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}
