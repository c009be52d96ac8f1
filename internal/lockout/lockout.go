// Package lockout implements the two-state account lockout machine.
//
// An account is Unlocked while LockoutUntil is nil or in the past and
// Locked while it lies in the future.  Unlocking is purely time driven:
// there is no background job and no manual unlock.
package lockout

import (
	"math"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// Policy holds the lockout threshold and duration.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// State is the persisted part of the machine.
type State struct {
	FailedAttempts int
	LockoutUntil   *time.Time
}

// NewPolicy fills zero values with the defaults.
func NewPolicy(threshold int, duration time.Duration) Policy {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Policy{Threshold: threshold, Duration: duration}
}

// Locked reports whether s rejects logins at now and how long the lock
// still holds.
func (p Policy) Locked(s State, now time.Time) (bool, time.Duration) {
	if s.LockoutUntil == nil || !s.LockoutUntil.After(now) {
		return false, 0
	}
	return true, s.LockoutUntil.Sub(now)
}

// Fail applies a failed password verification.  The returned bool is true
// when this failure moved the account into Locked; in that case the counter
// is reset to zero.  A lock that already elapsed is cleared first.
func (p Policy) Fail(s State, now time.Time) (State, bool) {
	if s.LockoutUntil != nil && !s.LockoutUntil.After(now) {
		s = State{}
	}
	s.FailedAttempts++
	if s.FailedAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		return State{FailedAttempts: 0, LockoutUntil: &until}, true
	}
	return s, false
}

// Succeed applies a successful verification.
func (p Policy) Succeed(State) State {
	return State{}
}

// RemainingMinutes rounds d up to whole minutes with a floor of one.
func RemainingMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
