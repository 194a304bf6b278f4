// Package replay re-enqueues stored raw emails onto the notification queue.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/jarrod-lowe/burner-notify/internal/rawstore"
)

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes synthetic object-created notifications to SQS in
// the same shape S3 delivers them, so the notify function handles replays
// exactly like new mail.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	now      func() time.Time
}

// NewSQSPublisher creates a new SQSPublisher.
func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		now:      time.Now,
	}
}

// Publish sends one message per object. It stops at the first failure and
// reports how many messages were sent before it.
func (p *SQSPublisher) Publish(ctx context.Context, refs []rawstore.ObjectRef) (int, error) {
	for i, ref := range refs {
		body, err := json.Marshal(p.event(ref))
		if err != nil {
			return i, fmt.Errorf("marshal event for %s: %w", ref, err)
		}

		_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			return i, fmt.Errorf("send %s: %w", ref, err)
		}
	}
	return len(refs), nil
}

// event builds an S3 notification for ref. Keys are form-encoded the way
// S3 encodes them.
func (p *SQSPublisher) event(ref rawstore.ObjectRef) events.S3Event {
	return events.S3Event{Records: []events.S3EventRecord{{
		EventVersion: "2.1",
		EventSource:  "aws:s3",
		EventTime:    p.now().UTC(),
		EventName:    "ObjectCreated:Put",
		S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: ref.Bucket},
			Object: events.S3Object{Key: url.QueryEscape(ref.Key)},
		},
	}}}
}
