package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/tapgoose/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func roundAt(start, end time.Duration) model.Round {
	return model.Round{ID: "r1", StartTime: base.Add(start), EndTime: base.Add(end)}
}

func TestPhaseAtIsExhaustiveAndExclusive(t *testing.T) {
	start := base
	end := base.Add(time.Minute)
	for offset := -90 * time.Second; offset <= 90*time.Second; offset += 250 * time.Millisecond {
		now := base.Add(offset)
		got := PhaseAt(now, start, end)
		var want model.RoundPhase
		switch {
		case now.Before(start):
			want = model.PhaseCooldown
		case !now.Before(start) && now.Before(end):
			want = model.PhaseActive
		case !now.Before(end):
			want = model.PhaseFinished
		}
		require.Equal(t, want, got, "offset %v", offset)
	}
}

func TestPhaseAtBoundaries(t *testing.T) {
	start := base
	end := base.Add(time.Minute)
	assert.Equal(t, model.PhaseCooldown, PhaseAt(start.Add(-time.Nanosecond), start, end))
	assert.Equal(t, model.PhaseActive, PhaseAt(start, start, end))
	assert.Equal(t, model.PhaseActive, PhaseAt(end.Add(-time.Nanosecond), start, end))
	assert.Equal(t, model.PhaseFinished, PhaseAt(end, start, end))
}

func TestRemainingNeverNegative(t *testing.T) {
	assert.Equal(t, time.Duration(0), Remaining(base.Add(time.Hour), base))
	assert.Equal(t, time.Duration(0), Remaining(base, base))
	assert.Equal(t, time.Duration(0), Remaining(base, base.Add(999*time.Millisecond)))
	assert.Equal(t, 59*time.Second, Remaining(base, base.Add(59500*time.Millisecond)))
}

func TestEvaluateCountsToTheRightTarget(t *testing.T) {
	round := roundAt(60*time.Second, 120*time.Second)

	st := Evaluate(base, round)
	assert.Equal(t, model.PhaseCooldown, st.Phase)
	assert.Equal(t, 60*time.Second, st.Remaining)
	assert.False(t, st.Over())

	st = Evaluate(base.Add(90*time.Second), round)
	assert.Equal(t, model.PhaseActive, st.Phase)
	assert.Equal(t, 30*time.Second, st.Remaining)
	assert.False(t, st.Over())

	st = Evaluate(base.Add(119500*time.Millisecond), round)
	assert.Equal(t, model.PhaseActive, st.Phase)
	assert.Equal(t, time.Duration(0), st.Remaining)
	assert.True(t, st.Over())

	st = Evaluate(base.Add(5*time.Minute), round)
	assert.Equal(t, model.PhaseFinished, st.Phase)
	assert.Equal(t, time.Duration(0), st.Remaining)
	assert.True(t, st.Over())
}

func TestTrackerWithoutRound(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Status(base)
	assert.False(t, ok)
	assert.False(t, tr.CanTap(base))
	assert.False(t, tr.ShouldFetchStats(base))
}

func TestTrackerStatsTriggerRetriesUntilSuccess(t *testing.T) {
	tr := NewTracker()
	tr.SetRound(model.RoundDetail{Round: roundAt(60*time.Second, 120*time.Second)}, base)

	assert.False(t, tr.ShouldFetchStats(base), "cooldown must not fetch")

	finished := base.Add(121 * time.Second)
	require.True(t, tr.ShouldFetchStats(finished))
	tr.BeginStatsFetch()
	assert.False(t, tr.ShouldFetchStats(finished.Add(time.Second)), "in-flight fetch must not be duplicated")

	tr.FinishStatsFetch(model.RoundStats{}, errors.New("boom"))
	assert.Equal(t, 1, tr.StatsFailures())
	require.True(t, tr.ShouldFetchStats(finished.Add(2*time.Second)), "failed fetch must be retried")

	tr.BeginStatsFetch()
	tr.FinishStatsFetch(model.RoundStats{TotalTaps: 3}, nil)
	for i := 0; i < 100; i++ {
		assert.False(t, tr.ShouldFetchStats(finished.Add(time.Duration(i)*time.Second)))
	}
	stats, ok := tr.Stats()
	require.True(t, ok)
	assert.Equal(t, 3, stats.TotalTaps)
}

func TestTrackerEmbeddedStatsSuppressFetch(t *testing.T) {
	tr := NewTracker()
	tr.SetRound(model.RoundDetail{
		Round:    roundAt(-2*time.Minute, -time.Minute),
		TopStats: []model.TopStat{{Username: "bob", Score: 70}},
		MyStats:  &model.MyStats{Taps: 2, Score: 20},
	}, base)
	assert.False(t, tr.ShouldFetchStats(base))
	taps, score := tr.Counters()
	assert.Equal(t, 2, taps)
	assert.Equal(t, 20, score)
	require.Len(t, tr.Leaderboard(), 1)
	assert.Equal(t, "bob", tr.Leaderboard()[0].Username)
}

func TestTrackerEmbeddedStatsIgnoredBeforeFinish(t *testing.T) {
	tr := NewTracker()
	tr.SetRound(model.RoundDetail{
		Round:    roundAt(-time.Minute, time.Minute),
		TopStats: []model.TopStat{{Username: "bob", Score: 70}},
		MyStats:  &model.MyStats{Taps: 2, Score: 20},
	}, base)
	_, held := tr.Stats()
	assert.False(t, held, "a live leaderboard is not a final result")
	assert.Empty(t, tr.Leaderboard())
	_, score := tr.Counters()
	assert.Equal(t, 20, score)
	assert.True(t, tr.ShouldFetchStats(base.Add(2*time.Minute)))
}

func TestTrackerTapGating(t *testing.T) {
	tr := NewTracker()
	tr.SetRound(model.RoundDetail{Round: roundAt(60*time.Second, 120*time.Second)}, base)

	assert.False(t, tr.CanTap(base), "cooldown")
	active := base.Add(90 * time.Second)
	require.True(t, tr.CanTap(active))

	tr.BeginTap()
	assert.True(t, tr.Tapping())
	assert.False(t, tr.CanTap(active), "outstanding tap")

	tr.FinishTap(model.TapResult{Taps: 5, Score: 50}, nil)
	taps, score := tr.Counters()
	assert.Equal(t, 5, taps)
	assert.Equal(t, 50, score)
	assert.True(t, tr.CanTap(active))

	tr.BeginTap()
	tr.FinishTap(model.TapResult{}, errors.New("rejected"))
	_, score = tr.Counters()
	assert.Equal(t, 50, score, "failed tap keeps the last server value")

	assert.False(t, tr.CanTap(base.Add(120*time.Second)), "finished")
}

func recvTick(t *testing.T, ctx context.Context, ticks <-chan time.Time) time.Time {
	t.Helper()
	select {
	case now := <-ticks:
		return now
	case <-ctx.Done():
		t.Fatalf("timed out waiting for tick")
		return time.Time{}
	}
}

func TestLoopStopsWhenCallbackReturnsFalse(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ticks := make(chan time.Time, 10)
	done := make(chan error, 1)
	go func() {
		calls := 0
		done <- Loop(ctx, clock, time.Second, func(now time.Time) bool {
			calls++
			ticks <- now
			return calls < 3
		})
	}()

	first := recvTick(t, ctx, ticks)
	assert.True(t, first.Equal(base))
	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		recvTick(t, ctx, ticks)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatalf("loop did not stop")
	}
	assert.Empty(t, ticks)
}

func TestLoopCancellation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	ctx, cancel := context.WithCancel(context.Background())
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	ticks := make(chan time.Time, 10)
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, clock, time.Second, func(now time.Time) bool {
			ticks <- now
			return true
		})
	}()

	recvTick(t, waitCtx, ticks)
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-waitCtx.Done():
		t.Fatalf("loop ignored cancellation")
	}
}

func TestLoopScenarioFetchesStatsOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	tr := NewTracker()
	tr.SetRound(model.RoundDetail{Round: roundAt(60*time.Second, 120*time.Second)}, base)

	first, _ := tr.Status(clock.Now())
	assert.Equal(t, model.PhaseCooldown, first.Phase)
	assert.Equal(t, 60*time.Second, first.Remaining)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fetches := 0
	done := make(chan error, 1)
	go func() {
		done <- Loop(ctx, clock, time.Second, func(now time.Time) bool {
			if tr.ShouldFetchStats(now) {
				tr.BeginStatsFetch()
				fetches++
				tr.FinishStatsFetch(model.RoundStats{TotalTaps: 1}, nil)
			}
			_, held := tr.Stats()
			return !held
		})
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Minute)
	require.NoError(t, <-done)

	final, _ := tr.Status(clock.Now())
	assert.Equal(t, model.PhaseFinished, final.Phase)
	assert.Equal(t, 1, fetches)
}
