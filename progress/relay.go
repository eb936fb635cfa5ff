package progress

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// DefaultChannel is the Redis channel progress events travel on.
const DefaultChannel = "workflow-progress"

// Sink receives events forwarded from another process.
type Sink interface {
	Deliver(ev domain.ProgressEvent)
}

// RedisRelay carries progress events between the worker and the API process
// over Redis pub/sub.
type RedisRelay struct {
	rc         *redis.Client
	channel    string
	log        *log.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// NewRedisRelay creates a relay on channel, or DefaultChannel when empty.
func NewRedisRelay(rc *redis.Client, channel string, logger *log.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisRelay{rc: rc, channel: channel, log: logger, now: time.Now, retryDelay: time.Second}
}

// Publish sends an event to the relay channel. Failures are logged only.
func (r *RedisRelay) Publish(sessionID string, kind domain.ProgressKind, message string) {
	if sessionID == "" {
		return
	}
	ev := domain.ProgressEvent{SessionID: sessionID, Kind: kind, Message: message, Timestamp: r.now()}
	data, err := sonic.Marshal(ev)
	if err != nil {
		r.log.WithError(err).Error("marshal progress event")
		return
	}
	if err := r.rc.Publish(context.Background(), r.channel, data).Err(); err != nil {
		r.log.WithError(err).WithField("session", sessionID).Warn("progress relay publish failed")
	}
}

// Forward subscribes to the relay channel and hands every event to sink
// until ctx is done, resubscribing when the subscription drops.
func (r *RedisRelay) Forward(ctx context.Context, sink Sink) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.ProgressEvent
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					r.log.WithError(err).Error("unable to parse progress event")
					continue
				}
				sink.Deliver(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.log.Error("progress channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retryDelay):
		}
	}
}
