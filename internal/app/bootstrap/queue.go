package bootstrap

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/clinic-booking-agent/internal/config"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
)

const memoryQueueBuffer = 512

// BuildTurnQueue selects the turn transport. USE_MEMORY_QUEUE keeps turns in
// process with in-memory job tracking; otherwise SQS carries them and
// DynamoDB tracks job status when a table is configured. jobs is nil when
// turns are not tracked.
func BuildTurnQueue(cfg *appconfig.Config, awsCfg *aws.Config) (conversation.Queue, conversation.JobTracker, error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(memoryQueueBuffer), conversation.NewMemoryJobStore(), nil
	}
	if strings.TrimSpace(cfg.TurnQueueURL) == "" {
		return nil, nil, errors.New("bootstrap: TURN_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if awsCfg == nil {
		return nil, nil, errors.New("bootstrap: sqs queue configured without aws config")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.TurnQueueURL)
	if strings.TrimSpace(cfg.TurnJobsTable) == "" {
		return queue, nil, nil
	}
	return queue, conversation.NewDynamoJobStore(dynamodb.NewFromConfig(*awsCfg), cfg.TurnJobsTable), nil
}
