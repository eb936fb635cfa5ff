// Package storage keeps workflow run history in Azure Tables and hands
// asynchronous jobs to the worker through an Azure queue.
package storage

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

type runTable interface {
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

type jobQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// Storage provides access to the run table and the job queue.
type Storage struct {
	runs runTable
	jobs jobQueue
}

// New creates a Storage instance from the given connection string. An empty
// queue name leaves the job queue unconfigured.
func New(connStr, runsTable, jobsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	s := &Storage{runs: svc.NewClient(runsTable)}
	if jobsQueue == "" {
		return s, nil
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, jobsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	s.jobs = q
	return s, nil
}

// Run is the recorded outcome of one workflow execution.
type Run struct {
	ID         string                `json:"id"`
	UserID     string                `json:"userId"`
	SessionID  string                `json:"sessionId,omitempty"`
	Kind       domain.IntentKind     `json:"kind"`
	Success    bool                  `json:"success"`
	ItemID     string                `json:"itemId,omitempty"`
	Summary    string                `json:"summary"`
	Error      string                `json:"error,omitempty"`
	Steps      []domain.WorkflowStep `json:"steps"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
}

type runEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	SessionID    string `json:"SessionId"`
	Kind         string `json:"Kind"`
	Success      bool   `json:"Success"`
	ItemID       string `json:"ItemId"`
	Summary      string `json:"Summary"`
	Error        string `json:"Error"`
	Steps        string `json:"Steps"`
	StartedAt    int64  `json:"StartedAt,string"`
	StartedType  string `json:"StartedAt@odata.type"`
	FinishedAt   int64  `json:"FinishedAt,string"`
	FinishedType string `json:"FinishedAt@odata.type"`
}

const edmInt64 = "Edm.Int64"

// RecordRun upserts run, keyed by user and run id.
func (s *Storage) RecordRun(ctx context.Context, run Run) error {
	if run.UserID == "" || run.ID == "" {
		return errors.New("run needs a user id and an id")
	}
	steps, err := sonic.MarshalString(run.Steps)
	if err != nil {
		return err
	}
	ent := runEntity{
		PartitionKey: run.UserID,
		RowKey:       run.ID,
		SessionID:    run.SessionID,
		Kind:         string(run.Kind),
		Success:      run.Success,
		ItemID:       run.ItemID,
		Summary:      run.Summary,
		Error:        run.Error,
		Steps:        steps,
		StartedAt:    run.StartedAt.UnixMilli(),
		StartedType:  edmInt64,
		FinishedAt:   run.FinishedAt.UnixMilli(),
		FinishedType: edmInt64,
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.runs.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// GetRun loads one run of userID.
func (s *Storage) GetRun(ctx context.Context, userID, runID string) (Run, error) {
	resp, err := s.runs.GetEntity(ctx, userID, runID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return Run{}, domain.NewNotFound("run", runID)
		}
		return Run{}, err
	}
	return decodeRun(resp.Value)
}

// ListRuns returns up to limit runs of userID, most recent first.
func (s *Storage) ListRuns(ctx context.Context, userID string, limit int) ([]Run, error) {
	filter := "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
	pager := s.runs.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	runs := []Run{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			run, err := decodeRun(e)
			if err != nil {
				return nil, err
			}
			runs = append(runs, run)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func decodeRun(data []byte) (Run, error) {
	var ent runEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return Run{}, err
	}
	run := Run{
		ID:         ent.RowKey,
		UserID:     ent.PartitionKey,
		SessionID:  ent.SessionID,
		Kind:       domain.IntentKind(ent.Kind),
		Success:    ent.Success,
		ItemID:     ent.ItemID,
		Summary:    ent.Summary,
		Error:      ent.Error,
		StartedAt:  time.UnixMilli(ent.StartedAt).UTC(),
		FinishedAt: time.UnixMilli(ent.FinishedAt).UTC(),
	}
	if ent.Steps != "" {
		if err := sonic.UnmarshalString(ent.Steps, &run.Steps); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}
