package engine

import (
	"time"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// Tracker holds the state of one round view: the fetched round, the stats
// snapshot once loaded, the user's counters, and the in-flight requests.
// It is not safe for concurrent use; callers drive it from a single loop.
type Tracker struct {
	round     *model.Round
	stats     *model.RoundStats
	top       []model.TopStat
	taps      int
	score     int
	tapping   bool
	fetching  bool
	statsErrs int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetRound installs a round loaded at now. Embedded counters are applied when
// present; an embedded leaderboard counts as the final result only when the
// round had already finished at now.
func (t *Tracker) SetRound(detail model.RoundDetail, now time.Time) {
	round := detail.Round
	t.round = &round
	if detail.MyStats != nil {
		t.taps = detail.MyStats.Taps
		t.score = detail.MyStats.Score
	}
	if PhaseAt(now, round.StartTime, round.EndTime) != model.PhaseFinished {
		return
	}
	if stats, ok := detail.EmbeddedStats(); ok {
		t.stats = &stats
		t.top = append([]model.TopStat(nil), detail.TopStats...)
	}
}

// Leaderboard returns the embedded leaderboard, if the server sent one.
func (t *Tracker) Leaderboard() []model.TopStat {
	return t.top
}

// Round returns the loaded round.
func (t *Tracker) Round() (model.Round, bool) {
	if t.round == nil {
		return model.Round{}, false
	}
	return *t.round, true
}

// Status evaluates the round at now. ok is false until a round is loaded.
func (t *Tracker) Status(now time.Time) (Status, bool) {
	if t.round == nil {
		return Status{}, false
	}
	return Evaluate(now, *t.round), true
}

// Stats returns the stats snapshot once it has been loaded.
func (t *Tracker) Stats() (model.RoundStats, bool) {
	if t.stats == nil {
		return model.RoundStats{}, false
	}
	return *t.stats, true
}

// ShouldFetchStats reports whether a stats request must be sent now: the
// round is over, no stats are held and no stats request is running. The
// condition holds again after a failed fetch, so the caller's next tick
// retries until one succeeds.
func (t *Tracker) ShouldFetchStats(now time.Time) bool {
	if t.stats != nil || t.fetching {
		return false
	}
	status, ok := t.Status(now)
	return ok && status.Over()
}

// BeginStatsFetch marks a stats request as running.
func (t *Tracker) BeginStatsFetch() {
	t.fetching = true
}

// FinishStatsFetch records the outcome of a stats request.
func (t *Tracker) FinishStatsFetch(stats model.RoundStats, err error) {
	t.fetching = false
	if err != nil {
		t.statsErrs++
		return
	}
	t.stats = &stats
}

// StatsFailures returns how many stats requests have failed in this view.
func (t *Tracker) StatsFailures() int {
	return t.statsErrs
}

// CanTap reports whether a tap may be sent at now: the round is ACTIVE and
// no tap request is outstanding.
func (t *Tracker) CanTap(now time.Time) bool {
	if t.tapping {
		return false
	}
	status, ok := t.Status(now)
	return ok && status.Phase == model.PhaseActive
}

// Tapping reports whether a tap request is outstanding.
func (t *Tracker) Tapping() bool {
	return t.tapping
}

// BeginTap marks a tap request as outstanding.
func (t *Tracker) BeginTap() {
	t.tapping = true
}

// FinishTap records the outcome of a tap request. The server's counters
// replace the local ones.
func (t *Tracker) FinishTap(result model.TapResult, err error) {
	t.tapping = false
	if err != nil {
		return
	}
	t.taps = result.Taps
	t.score = result.Score
}

// Counters returns the user's taps and score in this round.
func (t *Tracker) Counters() (taps, score int) {
	return t.taps, t.score
}
