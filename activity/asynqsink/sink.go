// Package asynqsink forwards auth activity events to an asynq queue.
package asynqsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	auth "github.com/goliatone/go-auth-lockout"
	"github.com/goliatone/go-auth-lockout/activitymap"
	"github.com/hibiken/asynq"
)

// TaskPrefix is prepended to the event type to build the task type.
const TaskPrefix = "auth:activity:"

// DefaultQueue receives the tasks unless WithQueue is used.
const DefaultQueue = "auth"

// Enqueuer is the part of *asynq.Client used by the sink.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Sink implements auth.ActivitySink.
type Sink struct {
	client     Enqueuer
	queue      string
	opts       []asynq.Option
	normalize  bool
	normalizer []activitymap.Option
}

var _ auth.ActivitySink = (*Sink)(nil)

type Option func(*Sink)

func WithQueue(queue string) Option {
	return func(s *Sink) {
		if queue != "" {
			s.queue = queue
		}
	}
}

// WithTaskOptions appends asynq options to every enqueued task.
func WithTaskOptions(opts ...asynq.Option) Option {
	return func(s *Sink) {
		s.opts = append(s.opts, opts...)
	}
}

// WithNormalized enqueues activitymap.Normalized records instead of raw events.
func WithNormalized(opts ...activitymap.Option) Option {
	return func(s *Sink) {
		s.normalize = true
		s.normalizer = append(s.normalizer, opts...)
	}
}

func New(client Enqueuer, opts ...Option) *Sink {
	s := &Sink{client: client, queue: DefaultQueue}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewFromRedis builds a sink with its own asynq client.
func NewFromRedis(opt asynq.RedisClientOpt, opts ...Option) (*Sink, *asynq.Client) {
	client := asynq.NewClient(opt)
	return New(client, opts...), client
}

// TaskType returns the asynq task type for an event type.
func TaskType(eventType auth.ActivityEventType) string {
	return TaskPrefix + strings.TrimSpace(string(eventType))
}

func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	var payload []byte
	var err error
	if s.normalize {
		payload, err = json.Marshal(activitymap.Normalize(event, s.normalizer...))
	} else {
		payload, err = json.Marshal(event)
	}
	if err != nil {
		return fmt.Errorf("asynqsink: encode event: %w", err)
	}

	opts := append([]asynq.Option{asynq.Queue(s.queue)}, s.opts...)
	task := asynq.NewTask(TaskType(event.EventType), payload)
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("asynqsink: enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// Decode reads an event back from a task payload, for workers.
func Decode(task *asynq.Task) (auth.ActivityEvent, error) {
	var event auth.ActivityEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return event, fmt.Errorf("asynqsink: decode %s: %w", task.Type(), err)
	}
	return event, nil
}

// DecodeNormalized reads a task enqueued by a sink built WithNormalized.
func DecodeNormalized(task *asynq.Task) (activitymap.Normalized, error) {
	var record activitymap.Normalized
	if err := json.Unmarshal(task.Payload(), &record); err != nil {
		return record, fmt.Errorf("asynqsink: decode %s: %w", task.Type(), err)
	}
	return record, nil
}
