package workqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS is the production Queue. Visibility timeout and redrive policy
// live on the queue resource itself; this client only sends, long-polls,
// and settles.
type SQS struct {
	api      SQSAPI
	queueURL string
}

// NewSQS creates a queue client for the given queue URL.
func NewSQS(api SQSAPI, queueURL string) *SQS {
	return &SQS{api: api, queueURL: queueURL}
}

// Send enqueues one task message as a JSON body.
func (q *SQS) Send(ctx context.Context, msg TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}

	if _, err := q.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return fmt.Errorf("send task %s/%s: %w", msg.JobID, msg.SnapshotID, err)
	}
	return nil
}

// Receive long-polls for up to max deliveries (SQS caps a single
// receive at 10 messages).
func (q *SQS) Receive(ctx context.Context, max int) ([]Delivery, error) {
	if max > 10 {
		max = 10
	}

	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &q.queueURL,
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, fmt.Errorf("receive tasks: %w", err)
	}

	deliveries := make([]Delivery, 0, len(out.Messages))
	for _, m := range out.Messages {
		if m.Body == nil || m.ReceiptHandle == nil {
			continue
		}
		var msg TaskMessage
		if err := json.Unmarshal([]byte(*m.Body), &msg); err != nil {
			return nil, fmt.Errorf("parse task message: %w", err)
		}
		deliveries = append(deliveries, Delivery{
			Message: msg,
			Receipt: *m.ReceiptHandle,
		})
	}
	return deliveries, nil
}

// Delete settles a delivery by receipt handle.
func (q *SQS) Delete(ctx context.Context, delivery Delivery) error {
	if _, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &delivery.Receipt,
	}); err != nil {
		return fmt.Errorf("delete task %s/%s: %w", delivery.Message.JobID, delivery.Message.SnapshotID, err)
	}
	return nil
}
