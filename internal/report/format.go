package report

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// TimeLayout is used for absolute round timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Countdown formats d as mm:ss, or h:mm:ss past one hour. Negative is 00:00.
func Countdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// PhaseLabel is the human label of a phase.
func PhaseLabel(phase model.RoundPhase) string {
	switch phase {
	case model.PhaseCooldown:
		return "Cooldown"
	case model.PhaseActive:
		return "Active"
	case model.PhaseFinished:
		return "Finished"
	default:
		return string(phase)
	}
}

// Timestamp renders t in local time.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(TimeLayout)
}

// Relative renders t relative to now, e.g. "2 minutes from now".
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Score renders a score with thousands separators.
func Score(v int) string {
	return humanize.Comma(int64(v))
}

// Truncate shortens s to width display cells, ending in an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
