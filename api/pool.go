package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
	"github.com/KarmaFounder/friday-jarvis/workflow"
)

// JobRunner executes a decoded job and records it.
type JobRunner interface {
	Run(ctx context.Context, job domain.Job) (workflow.Result, error)
}

// PoolConfig sizes the in-process dispatcher.
type PoolConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// DefaultPoolConfig returns the settings used when nothing is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 4, Buffer: 64, Timeout: 10 * time.Minute, HandoffTimeout: 15 * time.Millisecond}
}

type asyncJob struct {
	job domain.Job
	key string
}

// Dispatcher runs accepted jobs on a bounded set of goroutines.
type Dispatcher struct {
	runner JobRunner
	keys   IdempotencyKeys
	log    *log.Logger
	cfg    PoolConfig

	jobs chan asyncJob
	wg   sync.WaitGroup
	once sync.Once
}

// NewDispatcher starts cfg.Workers goroutines. With nil keys a failed job
// keeps its Idempotency-Key until it expires.
func NewDispatcher(runner JobRunner, keys IdempotencyKeys, cfg PoolConfig, logger *log.Logger) *Dispatcher {
	def := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	d := &Dispatcher{
		runner: runner,
		keys:   keys,
		log:    logger,
		cfg:    cfg,
		jobs:   make(chan asyncJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.log.Infof("dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		res, err := d.runner.Run(ctx, j.job)
		cancel()

		entry := d.log.WithFields(log.Fields{"job": j.job.ID, "user": j.job.UserID, "kind": j.job.Kind, "worker": id})
		if err != nil {
			entry.WithError(err).Error("async job rejected")
		} else {
			entry.WithField("success", res.Success).Info("async job finished")
		}
		if j.key != "" && d.keys != nil && createdNothing(res, err) {
			if rerr := d.keys.Release(context.Background(), j.job.UserID, j.key, j.job.ID); rerr != nil {
				entry.WithError(rerr).Error("releasing idempotency key failed")
			}
		}
	}
}

// Submit hands job to a worker, waiting at most the handoff timeout for
// buffer space. It returns false when the job was not accepted.
func (d *Dispatcher) Submit(job domain.Job, idemKey string) bool {
	j := asyncJob{job: job, key: idemKey}
	if ok, closed := trySendNonBlocking(d.jobs, j); closed {
		return false
	} else if ok {
		return true
	}
	if d.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	ok, _ := sendWithTimer(d.jobs, j, timer.C)
	return ok
}

// Close stops accepting jobs and waits for running ones.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.jobs) })
	d.wg.Wait()
}

func createdNothing(res workflow.Result, err error) bool {
	return err != nil || (!res.Success && res.Item == nil)
}

func trySendNonBlocking(ch chan asyncJob, job asyncJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan asyncJob, job asyncJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
