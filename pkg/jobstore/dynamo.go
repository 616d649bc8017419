package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/eunmann/snapcost/pkg/evaluate"
	"github.com/eunmann/snapcost/pkg/snapshot"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
// Embedding the SDK's QueryAPIClient keeps it compatible with the query
// paginator.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo persists jobs and tasks in two DynamoDB tables: a job tracking
// table keyed by job_id and a task table keyed by (job_id, snapshot_id).
// Task writes are plain PutItem upserts, which is what makes duplicate
// queue deliveries harmless.
type Dynamo struct {
	api       DynamoAPI
	jobTable  string
	taskTable string
}

// NewDynamo creates a store over the given tables.
func NewDynamo(api DynamoAPI, jobTable, taskTable string) *Dynamo {
	return &Dynamo{api: api, jobTable: jobTable, taskTable: taskTable}
}

type dynamoJobItem struct {
	JobID      string              `dynamodbav:"job_id"`
	CreatedAt  string              `dynamodbav:"created_at"`
	Filter     map[string][]string `dynamodbav:"filter,omitempty"`
	TotalTasks int                 `dynamodbav:"total_tasks"`
	Status     string              `dynamodbav:"status"`
}

type dynamoTaskItem struct {
	JobID      string `dynamodbav:"job_id"`
	SnapshotID string `dynamodbav:"snapshot_id"`
	Status     string `dynamodbav:"status"`
	Attempts   int    `dynamodbav:"attempts"`
	LastError  string `dynamodbav:"last_error,omitempty"`
	Result     string `dynamodbav:"result,omitempty"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// CreateJob records a new job.
func (d *Dynamo) CreateJob(ctx context.Context, job Job) error {
	item, err := attributevalue.MarshalMap(dynamoJobItem{
		JobID:      job.ID,
		CreatedAt:  job.CreatedAt.UTC().Format(time.RFC3339),
		Filter:     job.Filter,
		TotalTasks: job.TotalTasks,
		Status:     string(job.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if _, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.jobTable,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(job_id)"),
	}); err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns the job record.
func (d *Dynamo) GetJob(ctx context.Context, jobID string) (Job, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.jobTable,
		Key: map[string]types.AttributeValue{
			"job_id": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if out.Item == nil {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	var item dynamoJobItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Job{}, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}

	created, err := time.Parse(time.RFC3339, item.CreatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("job %s: parse created_at %q: %w", jobID, item.CreatedAt, err)
	}

	return Job{
		ID:         item.JobID,
		CreatedAt:  created,
		Filter:     snapshot.Filter(item.Filter),
		TotalTasks: item.TotalTasks,
		Status:     JobStatus(item.Status),
	}, nil
}

// UpdateJobStatus rewrites the job record with the new status.
func (d *Dynamo) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error {
	job, err := d.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status

	item, err := attributevalue.MarshalMap(dynamoJobItem{
		JobID:      job.ID,
		CreatedAt:  job.CreatedAt.UTC().Format(time.RFC3339),
		Filter:     job.Filter,
		TotalTasks: job.TotalTasks,
		Status:     string(job.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", jobID, err)
	}

	if _, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.jobTable,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// PutTask upserts the task keyed by (job id, snapshot id).
func (d *Dynamo) PutTask(ctx context.Context, task Task) error {
	item := dynamoTaskItem{
		JobID:      task.JobID,
		SnapshotID: task.SnapshotID,
		Status:     string(task.Status),
		Attempts:   task.Attempts,
		LastError:  task.LastError,
		UpdatedAt:  task.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if task.Result != nil {
		data, err := json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("marshal task result %s/%s: %w", task.JobID, task.SnapshotID, err)
		}
		item.Result = string(data)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal task %s/%s: %w", task.JobID, task.SnapshotID, err)
	}

	if _, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.taskTable,
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put task %s/%s: %w", task.JobID, task.SnapshotID, err)
	}
	return nil
}

// GetTask returns the task for (job id, snapshot id).
func (d *Dynamo) GetTask(ctx context.Context, jobID, snapshotID string) (Task, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.taskTable,
		Key: map[string]types.AttributeValue{
			"job_id":      &types.AttributeValueMemberS{Value: jobID},
			"snapshot_id": &types.AttributeValueMemberS{Value: snapshotID},
		},
	})
	if err != nil {
		return Task{}, fmt.Errorf("get task %s/%s: %w", jobID, snapshotID, err)
	}
	if out.Item == nil {
		return Task{}, fmt.Errorf("task %s/%s: %w", jobID, snapshotID, ErrTaskNotFound)
	}
	return unmarshalTask(out.Item)
}

// ListTasks returns all tasks of a job, ordered by snapshot id.
func (d *Dynamo) ListTasks(ctx context.Context, jobID string) ([]Task, error) {
	var tasks []Task

	paginator := dynamodb.NewQueryPaginator(d.api, d.taskQuery(jobID, ""))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query tasks %s: %w", jobID, err)
		}
		for _, item := range page.Items {
			task, err := unmarshalTask(item)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].SnapshotID < tasks[j].SnapshotID
	})
	return tasks, nil
}

// Counts aggregates task statuses for a job. Only the status attribute
// is projected so the scan stays cheap on large jobs.
func (d *Dynamo) Counts(ctx context.Context, jobID string) (Counts, error) {
	var counts Counts

	paginator := dynamodb.NewQueryPaginator(d.api, d.taskQuery(jobID, "#s"))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return Counts{}, fmt.Errorf("query task counts %s: %w", jobID, err)
		}
		for _, item := range page.Items {
			counts.Total++
			status, ok := item["status"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			switch TaskStatus(status.Value) {
			case TaskPending:
				counts.Pending++
			case TaskInProgress:
				counts.InProgress++
			case TaskSucceeded:
				counts.Succeeded++
			case TaskFailed:
				counts.Failed++
			}
		}
	}

	return counts, nil
}

func (d *Dynamo) taskQuery(jobID, projection string) *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:              &d.taskTable,
		KeyConditionExpression: aws.String("job_id = :job"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":job": &types.AttributeValueMemberS{Value: jobID},
		},
	}
	if projection != "" {
		input.ProjectionExpression = aws.String(projection)
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
	}
	return input
}

func unmarshalTask(av map[string]types.AttributeValue) (Task, error) {
	var item dynamoTaskItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return Task{}, fmt.Errorf("unmarshal task: %w", err)
	}

	task := Task{
		JobID:      item.JobID,
		SnapshotID: item.SnapshotID,
		Status:     TaskStatus(item.Status),
		Attempts:   item.Attempts,
		LastError:  item.LastError,
	}
	if item.UpdatedAt != "" {
		updated, err := time.Parse(time.RFC3339, item.UpdatedAt)
		if err != nil {
			return Task{}, fmt.Errorf("task %s/%s: parse updated_at %q: %w", item.JobID, item.SnapshotID, item.UpdatedAt, err)
		}
		task.UpdatedAt = updated
	}
	if item.Result != "" {
		var result evaluate.Result
		if err := json.Unmarshal([]byte(item.Result), &result); err != nil {
			return Task{}, fmt.Errorf("task %s/%s: parse result: %w", item.JobID, item.SnapshotID, err)
		}
		task.Result = &result
	}
	return task, nil
}
