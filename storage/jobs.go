package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// ErrNoQueue is returned by job operations when no queue is configured.
var ErrNoQueue = errors.New("job queue is not configured")

// Delivery is a dequeued job together with the receipt needed to delete it.
type Delivery struct {
	Job          domain.Job
	MessageID    string
	PopReceipt   string
	DequeueCount int64
	// Err is set when the message body could not be decoded.
	Err error
}

// HasQueue reports whether a job queue is configured.
func (s *Storage) HasQueue() bool { return s.jobs != nil }

// EnqueueJob sends job to the job queue.
func (s *Storage) EnqueueJob(ctx context.Context, job domain.Job) error {
	if s.jobs == nil {
		return ErrNoQueue
	}
	data, err := sonic.MarshalString(job)
	if err != nil {
		return err
	}
	_, err = s.jobs.EnqueueMessage(ctx, data, nil)
	return err
}

// DequeueJob receives the next job and hides it for visibility. It returns
// nil when the queue is empty.
func (s *Storage) DequeueJob(ctx context.Context, visibility time.Duration) (*Delivery, error) {
	if s.jobs == nil {
		return nil, ErrNoQueue
	}
	var opts *azqueue.DequeueMessageOptions
	if visibility > 0 {
		secs := int32(visibility / time.Second)
		opts = &azqueue.DequeueMessageOptions{VisibilityTimeout: &secs}
	}
	resp, err := s.jobs.DequeueMessage(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 || resp.Messages[0] == nil {
		return nil, nil
	}
	msg := resp.Messages[0]
	d := &Delivery{
		MessageID:  deref(msg.MessageID),
		PopReceipt: deref(msg.PopReceipt),
	}
	if msg.DequeueCount != nil {
		d.DequeueCount = *msg.DequeueCount
	}
	if err := sonic.UnmarshalString(deref(msg.MessageText), &d.Job); err != nil {
		d.Err = err
	}
	return d, nil
}

// CompleteJob deletes a delivered message.
func (s *Storage) CompleteJob(ctx context.Context, d *Delivery) error {
	if s.jobs == nil {
		return ErrNoQueue
	}
	_, err := s.jobs.DeleteMessage(ctx, d.MessageID, d.PopReceipt, nil)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
