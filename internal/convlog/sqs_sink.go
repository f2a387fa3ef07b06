package convlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes each exchange as a JSON message for downstream analytics.
type SQSSink struct {
	client   sqsAPI
	queueURL string
}

func NewSQSSink(client sqsAPI, queueURL string) *SQSSink {
	if client == nil {
		panic("convlog: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("convlog: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Name() string { return "sqs" }

func (s *SQSSink) Write(ctx context.Context, ex chatflow.Exchange) error {
	body, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("convlog: marshal exchange: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"session_id": {DataType: aws.String("String"), StringValue: aws.String(ex.SessionID)},
			"stage":      {DataType: aws.String("String"), StringValue: aws.String(ex.Stage)},
		},
	})
	if err != nil {
		return fmt.Errorf("convlog: failed to send SQS message: %w", err)
	}
	return nil
}
