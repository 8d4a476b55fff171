package task

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultUserLimit is the in-flight ceiling applied to users without an
// explicit limit.
const DefaultUserLimit = 5

// AdmissionConfig configures per-user admission control.
type AdmissionConfig struct {
	// DefaultLimit applies to users without an override. Values <= 0 fall
	// back to DefaultUserLimit.
	DefaultLimit int

	// SubmitRate is the sustained per-user submissions per second. Zero
	// disables rate limiting.
	SubmitRate float64

	// SubmitBurst is the token bucket size when SubmitRate is set.
	SubmitBurst int
}

// Admission tracks in-flight work per user and gates new submissions.
//
// The limit is a best-effort soft bound: it is checked at submit time
// against tasks currently executing, while the count itself only grows when
// a worker dequeues the task. Submissions racing with dequeues for the same
// user can therefore admit slightly more than the limit.
type Admission struct {
	mu           sync.Mutex
	defaultLimit int
	limits       map[string]int
	inFlight     map[string]int
	limiters     map[string]*rate.Limiter
	submitRate   rate.Limit
	submitBurst  int
}

// NewAdmission creates an admission controller.
func NewAdmission(cfg AdmissionConfig) *Admission {
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = DefaultUserLimit
	}
	burst := cfg.SubmitBurst
	if burst <= 0 {
		burst = 1
	}
	return &Admission{
		defaultLimit: limit,
		limits:       make(map[string]int),
		inFlight:     make(map[string]int),
		limiters:     make(map[string]*rate.Limiter),
		submitRate:   rate.Limit(cfg.SubmitRate),
		submitBurst:  burst,
	}
}

// TryAdmit returns ErrQuotaExceeded when userID is at or over its limit or
// has exhausted its submission rate.
func (a *Admission) TryAdmit(userID string) error {
	if userID == SystemUserID {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	limit := a.limitLocked(userID)
	if n := a.inFlight[userID]; n >= limit {
		return fmt.Errorf("%w: user %s has %d of %d tasks in flight", ErrQuotaExceeded, userID, n, limit)
	}

	if a.submitRate > 0 {
		l, ok := a.limiters[userID]
		if !ok {
			l = rate.NewLimiter(a.submitRate, a.submitBurst)
			a.limiters[userID] = l
		}
		if !l.Allow() {
			return fmt.Errorf("%w: user %s is submitting too fast", ErrQuotaExceeded, userID)
		}
	}
	return nil
}

// Acquire marks one task for userID as in flight.
func (a *Admission) Acquire(userID string) {
	if userID == SystemUserID {
		return
	}
	a.mu.Lock()
	a.inFlight[userID]++
	a.mu.Unlock()
}

// Release marks one in-flight task for userID as finished. The count never
// drops below zero.
func (a *Admission) Release(userID string) {
	if userID == SystemUserID {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch n := a.inFlight[userID]; {
	case n <= 1:
		delete(a.inFlight, userID)
	default:
		a.inFlight[userID] = n - 1
	}
}

// SetLimit overrides the limit for userID. A limit <= 0 blocks all new
// admissions without touching work already in flight.
func (a *Admission) SetLimit(userID string, n int) {
	if n < 0 {
		n = 0
	}
	a.mu.Lock()
	a.limits[userID] = n
	a.mu.Unlock()
}

// Limit returns the effective limit for userID.
func (a *Admission) Limit(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limitLocked(userID)
}

// InFlight returns the number of tasks userID currently has executing.
func (a *Admission) InFlight(userID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight[userID]
}

// Snapshot copies the in-flight counts of every user with running work.
func (a *Admission) Snapshot() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.inFlight))
	for user, n := range a.inFlight {
		out[user] = n
	}
	return out
}

// Forget drops the rate limiter of a user whose session ended. Limits and
// in-flight counts are kept.
func (a *Admission) Forget(userID string) {
	a.mu.Lock()
	delete(a.limiters, userID)
	a.mu.Unlock()
}

func (a *Admission) limitLocked(userID string) int {
	if n, ok := a.limits[userID]; ok {
		return n
	}
	return a.defaultLimit
}
