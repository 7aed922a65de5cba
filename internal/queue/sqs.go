package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// QuoteEvent is the message published for every priced request, consumed
// by downstream billing and analytics workers.
type QuoteEvent struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"caller_id"`
	UserID    string    `json:"user_id,omitempty"`
	Model     string    `json:"model"`
	CostUSD   float64   `json:"cost_usd"`
	PriceUSD  float64   `json:"price_usd"`
	MarginUSD float64   `json:"margin_usd"`
	CreatedAt time.Time `json:"created_at"`
}

type Queue interface {
	PublishQuote(ctx context.Context, event QuoteEvent) error
	ReceiveQuotes(ctx context.Context, maxMessages int) ([]QuoteEvent, error)
	DeleteQuote(ctx context.Context, receiptHandle string) error
}

type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSQueue(ctx context.Context, region, queueURL string) (*SQSQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

func NewSQSQueueWithConfig(cfg aws.Config, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (q *SQSQueue) PublishQuote(ctx context.Context, event QuoteEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal quote event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"CallerID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.CallerID),
			},
			"Model": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Model),
			},
		},
	}

	_, err = q.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (q *SQSQueue) ReceiveQuotes(ctx context.Context, maxMessages int) ([]QuoteEvent, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	}

	result, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	events := make([]QuoteEvent, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var event QuoteEvent
		if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
			slog.Warn("failed to unmarshal quote event", "error", err)
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

func (q *SQSQueue) DeleteQuote(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := q.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

type InMemoryQueue struct {
	mu     sync.Mutex
	events []QuoteEvent
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		events: make([]QuoteEvent, 0),
	}
}

func (q *InMemoryQueue) PublishQuote(ctx context.Context, event QuoteEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *InMemoryQueue) ReceiveQuotes(ctx context.Context, maxMessages int) ([]QuoteEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := maxMessages
	if count > len(q.events) {
		count = len(q.events)
	}

	result := make([]QuoteEvent, count)
	copy(result, q.events[:count])
	q.events = q.events[count:]

	return result, nil
}

func (q *InMemoryQueue) DeleteQuote(ctx context.Context, receiptHandle string) error {
	return nil
}

func (q *InMemoryQueue) GetEvents() []QuoteEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]QuoteEvent, len(q.events))
	copy(result, q.events)
	return result
}
