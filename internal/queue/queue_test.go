package queue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestEnqueueProcessingRoundTrip(t *testing.T) {
	t.Parallel()

	client := &fakeSQS{}
	e := &Enqueuer{Client: client, QueueURL: "https://sqs.test/q"}

	if err := e.EnqueueProcessing(context.Background(), "01REC"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("sent %d messages", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.QueueUrl != "https://sqs.test/q" {
		t.Errorf("queue url = %q", *in.QueueUrl)
	}

	id, err := ParseProcessingMessage(*in.MessageBody)
	if err != nil {
		t.Fatalf("parsing sent body: %v", err)
	}
	if id != "01REC" {
		t.Errorf("recording id = %q", id)
	}
}

func TestParseProcessingMessageRejects(t *testing.T) {
	t.Parallel()

	if _, err := ParseProcessingMessage("not json"); err == nil {
		t.Error("accepted non-JSON body")
	}
	if _, err := ParseProcessingMessage(`{"recording_id": ""}`); err == nil {
		t.Error("accepted empty recording_id")
	}
	if _, err := ParseProcessingMessage(`{}`); err == nil {
		t.Error("accepted missing recording_id")
	}
}
