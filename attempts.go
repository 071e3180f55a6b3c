package auth

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxAttempts is the number of consecutive failures that blocks an account.
const DefaultMaxAttempts = 3

// nonCountingReasons never feed the lockout counter.
var nonCountingReasons = map[AttemptReason]struct{}{
	AttemptReasonAccountInactive:  {},
	AttemptReasonDisabledUpstream: {},
	AttemptReasonVerifierOutage:   {},
	AttemptReasonInternalError:    {},
}

// Counts reports whether the attempt participates in the consecutive failure count.
func (a *LoginAttempt) Counts() bool {
	if a == nil {
		return false
	}
	if a.Success {
		return true
	}
	_, skip := nonCountingReasons[a.Reason]
	return !skip
}

// SortAttemptsNewestFirst orders by AttemptedAt desc, then ID desc.
func SortAttemptsNewestFirst(attempts []*LoginAttempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		a, b := attempts[i], attempts[j]
		if !a.AttemptedAt.Equal(b.AttemptedAt) {
			return a.AttemptedAt.After(b.AttemptedAt)
		}
		return a.ID > b.ID
	})
}

// ConsecutiveFailures counts failures from the most recent attempt back to
// the first success. Non-counting failures are skipped.
func ConsecutiveFailures(attempts []*LoginAttempt) int {
	return ConsecutiveFailuresSince(attempts, time.Time{})
}

// ConsecutiveFailuresSince is ConsecutiveFailures ignoring attempts made
// at or before since. A zero since counts the whole log.
func ConsecutiveFailuresSince(attempts []*LoginAttempt, since time.Time) int {
	ordered := make([]*LoginAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a == nil {
			continue
		}
		if !since.IsZero() && !a.AttemptedAt.After(since) {
			continue
		}
		ordered = append(ordered, a)
	}
	SortAttemptsNewestFirst(ordered)

	count := 0
	for _, a := range ordered {
		if a.Success {
			break
		}
		if a.Counts() {
			count++
		}
	}
	return count
}

func remainingAttempts(max, failures int) int {
	if failures >= max {
		return 0
	}
	return max - failures
}

// monotonicClock never returns the same instant twice.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
