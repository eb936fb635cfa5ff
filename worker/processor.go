package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/storage"
)

// Queue is the job source. A delivery stays invisible to other consumers
// for the visibility window until it is completed.
type Queue interface {
	DequeueJob(ctx context.Context, visibility time.Duration) (*storage.Delivery, error)
	CompleteJob(ctx context.Context, d *storage.Delivery) error
}

const (
	defaultIdle       = time.Second
	defaultVisibility = 5 * time.Minute
	// Deliveries seen more often than this are dropped.
	maxDequeueCount = 5
)

// Processor pulls jobs off the queue and hands them to a Runner.
type Processor struct {
	queue      Queue
	runner     *Runner
	log        *log.Logger
	idle       time.Duration
	visibility time.Duration
}

// NewProcessor returns a Processor that polls every second when the queue is
// empty.
func NewProcessor(queue Queue, runner *Runner, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Processor{
		queue:      queue,
		runner:     runner,
		log:        logger,
		idle:       defaultIdle,
		visibility: defaultVisibility,
	}
}

// Run processes jobs until ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("worker started")
	for {
		handled, err := p.ProcessOne(ctx)
		if ctx.Err() != nil {
			p.log.Info("worker stopped")
			return ctx.Err()
		}
		if err != nil {
			p.log.WithError(err).Warn("receive job")
		}
		if handled && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			p.log.Info("worker stopped")
			return ctx.Err()
		case <-time.After(p.idle):
		}
	}
}

// ProcessOne handles at most one job. It reports whether a message was
// received.
func (p *Processor) ProcessOne(ctx context.Context) (bool, error) {
	d, err := p.queue.DequeueJob(ctx, p.visibility)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	entry := p.log.WithFields(log.Fields{"message": d.MessageID, "job": d.Job.ID, "kind": d.Job.Kind})
	switch {
	case d.Err != nil:
		entry.WithError(d.Err).Error("dropping undecodable job")
	case d.DequeueCount > maxDequeueCount:
		entry.WithField("dequeue_count", d.DequeueCount).Error("dropping job after repeated deliveries")
	default:
		res, err := p.runner.Run(ctx, d.Job)
		if err != nil {
			entry.WithError(err).Error("dropping job with invalid intent")
			break
		}
		entry.WithField("success", res.Success).Info("job processed")
	}
	if err := p.queue.CompleteJob(ctx, d); err != nil {
		entry.WithError(err).Warn("delete job message")
	}
	return true, nil
}
