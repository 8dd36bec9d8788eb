// Package engine derives round lifecycle state from wall-clock time.
//
// Nothing here stores a phase: every answer is recomputed from the current
// time and the round's timestamps, so clock jumps and suspended processes
// correct themselves on the next evaluation.
package engine

import (
	"time"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// PhaseAt returns the phase of a round spanning [start, end) at now.
func PhaseAt(now, start, end time.Time) model.RoundPhase {
	switch {
	case now.Before(start):
		return model.PhaseCooldown
	case now.Before(end):
		return model.PhaseActive
	default:
		return model.PhaseFinished
	}
}

// Remaining returns the whole seconds left until target, never negative.
func Remaining(now, target time.Time) time.Duration {
	d := target.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// Status is the evaluated state of a round at one instant.
type Status struct {
	Phase model.RoundPhase
	// Remaining counts down to the start in COOLDOWN and to the end in
	// ACTIVE. It is zero in FINISHED.
	Remaining time.Duration
}

// Over reports whether results can be shown: the round is finished or its
// countdown has reached zero.
func (s Status) Over() bool {
	return s.Phase == model.PhaseFinished || (s.Phase == model.PhaseActive && s.Remaining == 0)
}

// Evaluate computes the status of round at now.
func Evaluate(now time.Time, round model.Round) Status {
	phase := PhaseAt(now, round.StartTime, round.EndTime)
	switch phase {
	case model.PhaseCooldown:
		return Status{Phase: phase, Remaining: Remaining(now, round.StartTime)}
	case model.PhaseActive:
		return Status{Phase: phase, Remaining: Remaining(now, round.EndTime)}
	default:
		return Status{Phase: phase}
	}
}
