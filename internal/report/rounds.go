package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/model"
)

const usernameWidth = 24

// Rounds renders the rounds listing with the phase derived at now.
func Rounds(rounds []model.Round, now time.Time) []string {
	if len(rounds) == 0 {
		return []string{"No rounds yet."}
	}
	rows := make([][]string, 0, len(rounds))
	for _, r := range rounds {
		rows = append(rows, []string{
			r.ID,
			Timestamp(r.StartTime),
			Timestamp(r.EndTime),
			PhaseLabel(engine.PhaseAt(now, r.StartTime, r.EndTime)),
		})
	}
	return Table([]string{"ID", "Start", "End", "Status"}, rows, nil)
}

// Leaderboard renders ranked players.
func Leaderboard(top []model.TopStat) []string {
	if len(top) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(top))
	for i, s := range top {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			Truncate(s.Username, usernameWidth),
			strconv.Itoa(s.Taps),
			Score(s.Score),
		})
	}
	return Table([]string{"#", "Player", "Taps", "Score"}, rows, map[int]bool{0: true, 2: true, 3: true})
}

// Status renders the live line of a round: phase and countdown, or the
// user's score while active.
func Status(st engine.Status, score int) string {
	switch {
	case st.Phase == model.PhaseCooldown:
		return fmt.Sprintf("Cooldown: starts in %s", Countdown(st.Remaining))
	case st.Over():
		return "Round finished"
	default:
		return fmt.Sprintf("Active: %s left · my score %s", Countdown(st.Remaining), Score(score))
	}
}

// Summary renders the results of a finished round.
func Summary(stats model.RoundStats) []string {
	rows := [][]string{{"Total", Score(stats.TotalTaps)}}
	if stats.Winner != nil {
		rows = append(rows, []string{
			"Winner - " + Truncate(stats.Winner.Username, usernameWidth),
			Score(stats.Winner.Score),
		})
	}
	rows = append(rows, []string{"My score", Score(stats.PersonalScore)})
	return Table(nil, rows, map[int]bool{1: true})
}
