// Package main creates text notes and auto-starts AI processing for them.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"unicode/utf8"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/queue"
	"github.com/notepin/notepin-backend/internal/track"
	"github.com/notepin/notepin-backend/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/oklog/ulid/v2"
)

// textNoteRequest is the expected JSON body for a text note.
type textNoteRequest struct {
	Text        string `json:"text"`
	AnonymousID string `json:"anonymous_id"`
}

// App holds the application state, including configuration and AWS clients.
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

// handler validates the pasted text, creates the recording with its
// transcript already set, and enqueues the processing job.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var body textNoteRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}

	text, err := validate.TextNote(body.Text)
	if err != nil {
		return httpx.FieldError(http.StatusUnprocessableEntity, "invalid text", "text", err.Error())
	}
	if err := validate.AnonymousID(body.AnonymousID); err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	identity := authz.Resolve(req, a.env.DevBypassAuth)
	identity, minted := authz.EnsureAnonymous(identity, body.AnonymousID)

	rec := &models.Recording{
		ID:          ulid.Make().String(),
		UserID:      identity.UserID,
		AnonymousID: identity.AnonymousID,
		Status:      models.StatusProcessing,
		Transcript:  text,
	}
	if err := a.repo.PutPendingRecording(ctx, rec); err != nil {
		log.Printf("textnote: put pending: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	if err := a.enqueuer.EnqueueProcessing(ctx, rec.ID); err != nil {
		log.Printf("textnote: enqueue: %v", err)
		return httpx.Error(http.StatusInternalServerError, "queue error")
	}

	a.tracker.Track(ctx, track.EventTextNoteCreated, track.Props{
		RecordingID: rec.ID,
		UserID:      identity.UserID,
		Metadata: map[string]any{
			"text_length": utf8.RuneCountInString(text),
			"anonymous":   !identity.IsUser(),
		},
	})
	a.tracker.Track(ctx, track.EventProcessingStarted, track.Props{
		RecordingID: rec.ID,
		UserID:      identity.UserID,
		Metadata:    map[string]any{"auto_started": true},
	})

	resp := map[string]string{"id": rec.ID, "status": string(rec.Status)}
	if minted {
		return httpx.JSONWithCookies(http.StatusOK, resp, []string{authz.AnonCookie(identity.AnonymousID)})
	}
	return httpx.JSON(http.StatusOK, resp)
}
