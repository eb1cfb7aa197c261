// Package queue enqueues recording-processing jobs onto SQS.
//
// Delivery is at-least-once and unordered. Retry on failure comes from the
// queue's redrive settings (maxReceiveCount=3, 30s visibility timeout); the
// processor re-enters its idempotency gate on every delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the subset of the SQS client the enqueuer uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Enqueuer sends processing requests to the queue.
type Enqueuer struct {
	Client   API
	QueueURL string
}

type processMessage struct {
	RecordingID string `json:"recording_id"`
}

// EnqueueProcessing schedules the processing job for a recording.
func (e *Enqueuer) EnqueueProcessing(ctx context.Context, recordingID string) error {
	body, err := json.Marshal(processMessage{RecordingID: recordingID})
	if err != nil {
		return err
	}
	_, err = e.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	return err
}

// ParseProcessingMessage extracts the recording id from a queue message body.
func ParseProcessingMessage(body string) (string, error) {
	var msg processMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return "", err
	}
	if msg.RecordingID == "" {
		return "", errors.New("message missing recording_id")
	}
	return msg.RecordingID, nil
}
