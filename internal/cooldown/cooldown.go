// Package cooldown decides whether an error alert may be sent, allowing the same error code at most once
// per cooldown window across all server instances.
package cooldown

import (
	"context"
	"time"

	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/metrics"
	"github.com/sta1300/notifier-backend/internal/utils"
)

//Lock The most recently admitted alert.
type Lock struct {
	LastErrorCode int   `firestore:"lastErrorCode" json:"lastErrorCode"`
	LastSentAt    int64 `firestore:"lastSentAt" json:"lastSentAt"`
}

//decodeLock Reads a stored lock leniently: numbers may come as strings or floats (older writers stored the
//raw error code). Returns nil when the fields are unusable, the lock is then overwritten on the next alert.
func decodeLock(fields map[string]interface{}) *Lock {
	code, ok := utils.ToInt(fields["lastErrorCode"])
	if !ok {
		return nil
	}
	sentAt, ok := utils.ToInt(fields["lastSentAt"])
	if !ok {
		return nil
	}
	return &Lock{LastErrorCode: code, LastSentAt: int64(sentAt)}
}

//DecideFunc Given the stored lock (nil when none exists yet) returns whether to allow the alert and the lock
//to store (nil means no write). It must be free of side effects, stores may call it more than once.
type DecideFunc func(current *Lock) (next *Lock, allow bool)

//LockStore Runs a DecideFunc as one atomic read-modify-write of the lock.
type LockStore interface {
	Transact(ctx context.Context, decide DecideFunc) (bool, error)
}

//Policy What to do when the lock store fails.
type Policy string

const (
	//FailOpen Allow the alert. A store outage lifts the cooldown entirely.
	FailOpen Policy = "open"
	//FailClosed Suppress the alert.
	FailClosed Policy = "closed"
)

//Decide The cooldown rule.
func Decide(current *Lock, code int, now time.Time, cooldown time.Duration) (*Lock, bool) {
	nowMs := utils.TimeToMillis(now)

	if current != nil && current.LastErrorCode == code && nowMs-current.LastSentAt < cooldown.Milliseconds() {
		return nil, false
	}

	return &Lock{LastErrorCode: code, LastSentAt: nowMs}, true
}

//Limiter Cooldown limiter over a LockStore.
type Limiter struct {
	store    LockStore
	cooldown time.Duration
	policy   Policy
	now      func() time.Time
}

//NewLimiter -_-
func NewLimiter(store LockStore, cooldown time.Duration, policy Policy) *Limiter {
	if policy != FailClosed {
		policy = FailOpen
	}
	return &Limiter{
		store:    store,
		cooldown: cooldown,
		policy:   policy,
		now:      utils.GetTimeNow,
	}
}

//Allow Whether an alert for the code may be sent now. Admitting it records it in the lock.
func (l *Limiter) Allow(ctx context.Context, code int) bool {
	logger := logging.FromContext(ctx).Named("cooldown.Allow")

	now := l.now()

	allowed, err := l.store.Transact(ctx, func(current *Lock) (*Lock, bool) {
		return Decide(current, code, now, l.cooldown)
	})
	if err != nil {
		allow := l.policy == FailOpen
		metrics.AlertDecisions.WithLabelValues("store_error").Inc()
		logger.Errorf("Error checking rate limit for error %v, fail-%v policy allows: %v; %v", code, l.policy, allow, err)
		return allow
	}

	if !allowed {
		metrics.AlertDecisions.WithLabelValues("blocked").Inc()
		logger.Infof("Rate limit: notification for error %v was sent recently, skipping", code)
		return false
	}

	metrics.AlertDecisions.WithLabelValues("allowed").Inc()

	return true
}
