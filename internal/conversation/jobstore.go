package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const jobTTL = 24 * time.Hour

// JobStatus is the lifecycle of a queued turn.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var ErrJobNotFound = errors.New("conversation: job not found")

// JobRecord is the persisted state of one turn job.
type JobRecord struct {
	JobID          string    `dynamodbav:"jobId" json:"jobId"`
	Status         JobStatus `dynamodbav:"status" json:"status"`
	Address        string    `dynamodbav:"address" json:"address"`
	ConversationID string    `dynamodbav:"conversationId,omitempty" json:"conversationId,omitempty"`
	Reply          string    `dynamodbav:"reply,omitempty" json:"reply,omitempty"`
	ErrorMessage   string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt      string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt      int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
}

type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID, conversationID, reply string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}

// JobTracker records and updates jobs.
type JobTracker interface {
	JobRecorder
	JobUpdater
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoJobStore keeps job records in a DynamoDB table keyed by jobId with a
// TTL on expiresAt.
type DynamoJobStore struct {
	client    dynamoAPI
	tableName string
}

var _ JobTracker = (*DynamoJobStore)(nil)

func NewDynamoJobStore(client dynamoAPI, tableName string) *DynamoJobStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	return &DynamoJobStore{client: client, tableName: tableName}
}

func (s *DynamoJobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}
	pending(job, time.Now().UTC())

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("conversation: marshal job: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	}); err != nil {
		return fmt.Errorf("conversation: persist job: %w", err)
	}
	return nil
}

func (s *DynamoJobStore) MarkCompleted(ctx context.Context, jobID, conversationID, reply string) error {
	return s.update(ctx, jobID, "SET #status = :status, conversationId = :conversation, reply = :reply, #updated = :updated",
		map[string]types.AttributeValue{
			":status":       &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":conversation": &types.AttributeValueMemberS{Value: conversationID},
			":reply":        &types.AttributeValueMemberS{Value: reply},
		})
}

func (s *DynamoJobStore) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return s.update(ctx, jobID, "SET #status = :status, errorMessage = :error, #updated = :updated",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":error":  &types.AttributeValueMemberS{Value: errMsg},
		})
}

func (s *DynamoJobStore) update(ctx context.Context, jobID, expression string, values map[string]types.AttributeValue) error {
	if jobID == "" {
		return errors.New("conversation: jobID required")
	}
	values[":updated"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       jobKey(jobID),
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  map[string]string{"#status": "status", "#updated": "updatedAt"},
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrJobNotFound
		}
		return fmt.Errorf("conversation: update job %s: %w", jobID, err)
	}
	return nil
}

func (s *DynamoJobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("conversation: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       jobKey(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("conversation: decode job: %w", err)
	}
	return &job, nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"jobId": &types.AttributeValueMemberS{Value: jobID}}
}

func pending(job *JobRecord, now time.Time) {
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}
}

// MemoryJobStore keeps job records in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

var _ JobTracker = (*MemoryJobStore)(nil)

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("conversation: job cannot be nil")
	}
	pending(job, time.Now().UTC())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("conversation: job %s already exists", job.JobID)
	}
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, jobID, conversationID, reply string) error {
	return s.mutate(jobID, func(j *JobRecord) {
		j.Status = JobStatusCompleted
		j.ConversationID = conversationID
		j.Reply = reply
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, jobID, errMsg string) error {
	return s.mutate(jobID, func(j *JobRecord) {
		j.Status = JobStatusFailed
		j.ErrorMessage = errMsg
	})
}

func (s *MemoryJobStore) mutate(jobID string, fn func(*JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	fn(&job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	s.jobs[jobID] = job
	return nil
}
