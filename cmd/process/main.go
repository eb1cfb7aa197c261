// Package main is the manual retry endpoint for failed recordings. New
// recordings are auto-processed on creation; this only re-runs uploaded or
// failed ones.
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
	"github.com/notepin/notepin-backend/internal/queue"
	"github.com/notepin/notepin-backend/internal/track"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// App holds the application state.
type App struct {
	env      config.Env
	repo     *ddb.Repo
	enqueuer *queue.Enqueuer
	tracker  *track.Tracker
}

func main() {
	env := config.MustLoad()
	if env.QueueURL == "" {
		log.Fatal("missing env PROCESS_QUEUE_URL")
	}
	cfg, _, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}
	app := &App{
		env:      env,
		repo:     repo,
		enqueuer: &queue.Enqueuer{Client: sqs.NewFromConfig(cfg), QueueURL: env.QueueURL},
		tracker:  &track.Tracker{Events: repo},
	}
	lambda.Start(app.handler)
}

// handler re-enqueues processing for a recording the caller owns.
//
// Retry is only permitted from uploaded/failed: ready means the work is done
// (422), processing means a run is already in flight (idempotent OK).
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
		log.Printf("process: load %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	identity := authz.Resolve(req, a.env.DevBypassAuth)
	if !identity.Owns(rec) {
		return httpx.Error(http.StatusForbidden, "unauthorized")
	}

	switch rec.Status {
	case models.StatusReady:
		return httpx.Error(http.StatusUnprocessableEntity, "Recording is already processed.")
	case models.StatusProcessing:
		return httpx.JSON(http.StatusOK, map[string]string{
			"id":      rec.ID,
			"status":  string(rec.Status),
			"message": "Processing already in progress.",
		})
	case models.StatusUploaded, models.StatusFailed:
		// retryable
	default:
		return httpx.Error(http.StatusUnprocessableEntity, "Recording cannot be processed in current state.")
	}

	err = a.repo.SetRecordingStatus(ctx, rec.ID,
		[]models.RecordingStatus{models.StatusUploaded, models.StatusFailed},
		models.StatusProcessing)
	if errors.Is(err, ddb.ErrStatusConflict) {
		// Someone else started it between our read and write.
		return httpx.JSON(http.StatusOK, map[string]string{
			"id":      rec.ID,
			"status":  string(models.StatusProcessing),
			"message": "Processing already in progress.",
		})
	}
	if err != nil {
		log.Printf("process: mark %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	if err := a.enqueuer.EnqueueProcessing(ctx, rec.ID); err != nil {
		log.Printf("process: enqueue %s: %v", id, err)
		return httpx.Error(http.StatusInternalServerError, "queue error")
	}

	a.tracker.Track(ctx, track.EventProcessingStarted, track.Props{
		RecordingID: rec.ID,
		UserID:      rec.UserID,
		Metadata:    map[string]any{"retry": true},
	})

	return httpx.JSON(http.StatusOK, map[string]string{
		"id":     rec.ID,
		"status": string(models.StatusProcessing),
	})
}
