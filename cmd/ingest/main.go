// Package main reacts to audio objects landing in S3: it moves the pending
// recording into processing and enqueues the AI pipeline job.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/models"
	"github.com/notepin/notepin-backend/internal/queue"
	"github.com/notepin/notepin-backend/internal/s3io"
	"github.com/notepin/notepin-backend/internal/track"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	env      config.Env
	s3c      *s3.Client
	repo     *ddb.Repo
	enqueuer *queue.Enqueuer
	tracker  *track.Tracker
}

func main() {
	env := config.MustLoad()
	if env.QueueURL == "" {
		log.Fatal("missing env PROCESS_QUEUE_URL")
	}
	cfg, endpoint, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal(err)
	}

	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
		}
	})
	repo := &ddb.Repo{DB: dynamodb.NewFromConfig(cfg), Table: env.Table}

	app := &App{
		env:      env,
		s3c:      s3c,
		repo:     repo,
		enqueuer: &queue.Enqueuer{Client: sqs.NewFromConfig(cfg), QueueURL: env.QueueURL},
		tracker:  &track.Tracker{Events: repo},
	}
	lambda.Start(app.handler)
}

// handler processes S3 event records for uploaded audio objects.
func (a *App) handler(ctx context.Context, ev events.S3Event) (any, error) {
	for _, rec := range ev.Records {
		if err := a.processS3Record(ctx, rec); err != nil {
			log.Printf("ingest: process error: %v", err)
		}
	}
	return nil, nil
}

// processS3Record handles a single S3 event record.
func (a *App) processS3Record(ctx context.Context, record events.S3EventRecord) error {
	bucket := record.S3.Bucket.Name
	keyEsc := record.S3.Object.Key
	key, _ := url.QueryUnescape(keyEsc)

	recordingID, err := a.resolveRecordingID(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", key, err)
	}

	rec, err := a.repo.GetRecording(ctx, recordingID)
	if errors.Is(err, ddb.ErrNotFound) {
		return fmt.Errorf("no recording %s for object %s", recordingID, key)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", recordingID, err)
	}

	// Duplicate S3 events and replays land here once the recording has moved
	// on; the job was already enqueued then.
	if rec.Status != models.StatusUploaded {
		log.Printf("ingest: recording %s already %s, skipping", recordingID, rec.Status)
		return nil
	}

	err = a.repo.SetRecordingStatus(ctx, recordingID,
		[]models.RecordingStatus{models.StatusUploaded}, models.StatusProcessing)
	if errors.Is(err, ddb.ErrStatusConflict) {
		log.Printf("ingest: recording %s claimed concurrently, skipping", recordingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark processing %s: %w", recordingID, err)
	}

	if err := a.enqueuer.EnqueueProcessing(ctx, recordingID); err != nil {
		return fmt.Errorf("enqueue %s: %w", recordingID, err)
	}

	a.tracker.Track(ctx, track.EventProcessingStarted, track.Props{
		RecordingID: recordingID,
		UserID:      rec.UserID,
		Metadata:    map[string]any{"auto_started": true},
	})

	log.Printf("ingest: recording %s queued for processing size=%d", recordingID, record.S3.Object.Size)
	return nil
}

// resolveRecordingID prefers the metadata-sourced id and falls back to key
// parsing.
func (a *App) resolveRecordingID(ctx context.Context, bucket, key string) (string, error) {
	ho, err := a.s3c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	for k, v := range ho.Metadata {
		if strings.ToLower(k) == "recording_id" && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	if id, ok := s3io.ParseAudioKey(key); ok {
		return id, nil
	}
	return "", fmt.Errorf("bad key %q", key)
}
