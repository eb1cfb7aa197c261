// Package main runs the AI processing pipeline for queued recordings.
package main

import (
	"context"
	"log"

	"github.com/notepin/notepin-backend/internal/ai"
	"github.com/notepin/notepin-backend/internal/awsutil"
	"github.com/notepin/notepin-backend/internal/config"
	"github.com/notepin/notepin-backend/internal/ddb"
	"github.com/notepin/notepin-backend/internal/pipeline"
	"github.com/notepin/notepin-backend/internal/queue"
	"github.com/notepin/notepin-backend/internal/s3io"
	"github.com/notepin/notepin-backend/internal/track"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// App holds the application state.
type App struct {
	proc *pipeline.Processor
}

func main() {
	env := config.MustLoad()
	if env.OpenAIKey == "" {
		log.Fatal("missing env OPENAI_API_KEY")
	}
	if env.Bucket == "" {
		log.Fatal("missing env S3_BUCKET")
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
		proc: &pipeline.Processor{
			Store:      repo,
			Audio:      &s3io.Fetcher{Client: s3c, Bucket: env.Bucket},
			AI:         ai.NewClient(env.OpenAIKey),
			Tracker:    &track.Tracker{Events: repo},
			Production: env.Production(),
		},
	}
	lambda.Start(app.handler)
}

// handler runs the pipeline per queue message. Failed messages are reported
// individually so SQS redelivers only those; a message that fails all its
// attempts lands in the dead-letter queue with the recording left in the
// failed state for a manual retry.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure
	for _, msg := range ev.Records {
		recordingID, err := queue.ParseProcessingMessage(msg.Body)
		if err != nil {
			// Malformed messages can never succeed; drop them.
			log.Printf("processor: bad message %s: %v", msg.MessageId, err)
			continue
		}
		if err := a.proc.Process(ctx, recordingID); err != nil {
			log.Printf("processor: recording %s: %v", recordingID, err)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}
