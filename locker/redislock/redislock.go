// Package redislock implements auth.Locker on top of redis so several
// instances sharing one attempt log serialize logins per email.
package redislock

import (
	"context"
	"errors"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-lockout"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 10 * time.Second
	DefaultRetryDelay = 25 * time.Millisecond
	DefaultPrefix     = "auth:lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the key holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a SET NX PX lock with token checked release. A held lock is
// renewed until it is released, so a slow verifier can not outlive it.
type Locker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	renewEvery time.Duration
	retryDelay time.Duration
	logger     auth.Logger
}

var _ auth.Locker = (*Locker)(nil)

type Option func(*Locker)

// WithTTL bounds how long a crashed holder can keep the lock.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRenewInterval sets how often a held lock is extended. Default: ttl/3.
func WithRenewInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.renewEvery = d
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retryDelay = d
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client:     client,
		prefix:     DefaultPrefix,
		ttl:        DefaultTTL,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.renewEvery <= 0 || l.renewEvery >= l.ttl {
		l.renewEvery = l.ttl / 3
	}
	if l.renewEvery <= 0 {
		l.renewEvery = time.Millisecond
	}
	return l
}

// Lock blocks until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "redis lock failed")
		}
		if ok {
			return l.hold(name, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "timed out waiting for login lock")
		case <-ticker.C:
		}
	}
}

// hold renews the lock in the background and returns the release func.
func (l *Locker) hold(name, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.renewEvery)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !l.extend(name, token) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(name, token)
		})
	}
}

// extend reports whether the lock is still ours.
func (l *Locker) extend(name, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.renewEvery)
	defer cancel()

	n, err := extendScript.Run(ctx, l.client, []string{name}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		l.warn("redis lock renew failed", "key", name, "error", err)
		return true
	}
	if n == 0 {
		l.warn("redis lock lost before release", "key", name)
		return false
	}
	return true
}

func (l *Locker) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{name}, token).Err(); err != nil {
		l.warn("redis lock release failed", "key", name, "error", err)
	}
}

func (l *Locker) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
