// Package main serves a single recording, including its note actions, to
// its owner.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"

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

// recordingResponse is the owner-facing JSON projection of a recording.
type recordingResponse struct {
	Recording *models.Recording   `json:"recording"`
	Actions   []models.NoteAction `json:"actions"`
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

// handler loads the recording and authorizes the caller as its owner.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	id := req.PathParameters["id"]
	if id == "" {
		return httpx.Error(http.StatusBadRequest, "missing recording id")
	}

	rec, err := a.repo.GetRecording(ctx, id)
	if errors.Is(err, ddb.ErrNotFound) {
		return httpx.Error(http.StatusNotFound, "not found")
	}
	if err != nil {
		log.Printf("get: load %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	identity := authz.Resolve(req, a.env.DevBypassAuth)
	if !identity.Owns(rec) {
		return httpx.Error(http.StatusForbidden, "unauthorized")
	}

	actions, err := a.repo.ListNoteActions(ctx, id)
	if err != nil {
		log.Printf("get: actions %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	return httpx.JSON(http.StatusOK, recordingResponse{Recording: rec, Actions: actions})
}
