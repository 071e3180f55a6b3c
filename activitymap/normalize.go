// Package activitymap flattens lockout activity events into a shape that
// queue consumers and audit feeds can store without importing auth types.
package activitymap

import (
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-lockout"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyEmail      = "email"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is a transport agnostic activity record.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	withEmail     bool
}

// WithChannel overrides the "auth" channel.
func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType overrides the "account" object type.
func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback is used when neither the actor nor the account has an id.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithEmail copies the event email into metadata. It is left out by default.
func WithEmail() Option {
	return func(o *options) {
		o.withEmail = true
	}
}

// Normalize converts an auth.ActivityEvent.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.AccountID),
			o.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.AccountID),
		Channel:    o.channel,
		Metadata:   metadata(event, o),
		OccurredAt: occurredAt,
	}
}

func metadata(event auth.ActivityEvent, o options) map[string]any {
	out := map[string]any{}
	for k, v := range event.Metadata {
		out[k] = v
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := out[MetadataKeyActorType]; !exists {
			out[MetadataKeyActorType] = actorType
		}
	}
	if event.FromStatus != "" {
		out[MetadataKeyFromStatus] = event.FromStatus
	}
	if event.ToStatus != "" {
		out[MetadataKeyToStatus] = event.ToStatus
	}
	if o.withEmail && event.Email != "" {
		out[MetadataKeyEmail] = event.Email
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
