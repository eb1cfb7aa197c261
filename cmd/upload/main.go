// Package main issues presigned audio upload URLs and creates the pending
// recording the processing pipeline will later pick up.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/notepin/notepin-backend/internal/authz"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/httpx"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/s3io"
	"github.com/notepin/notepin-backend/internal/track"
	"github.com/notepin/notepin-backend/internal/validate"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
)

// uploadRequest is the expected JSON body for an upload request.
type uploadRequest struct {
	Filename        string `json:"filename"`
	ContentType     string `json:"content_type"`
	DurationSeconds *int   `json:"duration_seconds"`
	AnonymousID     string `json:"anonymous_id"`
}

// uploadResponse carries the presigned URL and the created recording.
type uploadResponse struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	S3Key         string            `json:"s3_key"`
	PresignedURL  string            `json:"presigned_url"`
	ExpiresIn     int               `json:"expires_in"`
	UploadHeaders map[string]string `json:"upload_headers"`
}

// App holds the application state, including configuration and AWS clients.
type App struct {
	env     config.Env
	s3p     *s3.PresignClient
	repo    *ddb.Repo
	tracker *track.Tracker
}

func main() {
	env := config.MustLoad()
	if env.Bucket == "" {
		log.Fatal("missing env S3_BUCKET")
	}
	cfg, endpoint, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}

	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true // localstack/dev friendliness
		}
	})
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}

	app := &App{
		env:     env,
		s3p:     s3.NewPresignClient(s3c),
		repo:    repo,
		tracker: &track.Tracker{Events: repo},
	}
	lambda.Start(app.handler)
}

// handler validates the upload request, creates the pending recording and
// returns a presigned PUT URL for the audio object.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := a.parseAndValidateRequest(req.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}

	identity := authz.Resolve(req, a.env.DevBypassAuth)
	identity, minted := authz.EnsureAnonymous(identity, body.AnonymousID)

	recID := ulid.Make().String()
	ext := strings.ToLower(filepath.Ext(body.Filename))
	key := s3io.BuildAudioKey(identity.OwnerKey(), recID, ext)

	rec := &models.Recording{
		ID:              recID,
		UserID:          identity.UserID,
		AnonymousID:     identity.AnonymousID,
		Status:          models.StatusUploaded,
		AudioKey:        key,
		DurationSeconds: body.DurationSeconds,
	}
	if err := a.repo.PutPendingRecording(ctx, rec); err != nil {
		log.Printf("upload: put pending: %v", err)
		return httpx.Error(http.StatusInternalServerError, "db error")
	}

	url, ttl, err := a.presign(ctx, identity, recID, key, ext)
	if err != nil {
		log.Printf("upload: presign: %v", err)
		return httpx.Error(http.StatusInternalServerError, "presign error")
	}

	a.tracker.Track(ctx, track.EventRecordingCreated, track.Props{
		RecordingID: recID,
		UserID:      identity.UserID,
		Metadata: map[string]any{
			"duration_seconds": body.DurationSeconds,
			"anonymous":        !identity.IsUser(),
		},
	})

	resp := uploadResponse{
		ID:            recID,
		Status:        string(rec.Status),
		S3Key:         key,
		PresignedURL:  url,
		ExpiresIn:     int(ttl.Seconds()),
		UploadHeaders: s3io.UploadHeaders(recID, identity.OwnerKey(), s3io.ContentTypeForExt(ext)),
	}
	if minted {
		return httpx.JSONWithCookies(http.StatusOK, resp, []string{authz.AnonCookie(identity.AnonymousID)})
	}
	return httpx.JSON(http.StatusOK, resp)
}

// parseAndValidateRequest parses the JSON body and validates all input fields.
func (a *App) parseAndValidateRequest(body string) (uploadRequest, error) {
	var req uploadRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, errors.New("invalid json")
	}
	if err := validate.AudioUpload(req.Filename, req.ContentType, req.DurationSeconds); err != nil {
		return req, err
	}
	if err := validate.AnonymousID(req.AnonymousID); err != nil {
		return req, err
	}
	return req, nil
}

// presign creates the upload URL with the recording identity as metadata.
func (a *App) presign(ctx context.Context, identity authz.Identity, recID, key, ext string) (string, time.Duration, error) {
	meta := map[string]string{
		"recording_id": recID,
		"owner":        identity.OwnerKey(),
	}
	return s3io.PresignAudioPut(ctx, a.s3p, a.env.Bucket, key, s3io.ContentTypeForExt(ext), meta, a.env.PresignTTL)
}
