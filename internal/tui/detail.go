package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tapgoose/internal/api"
	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/report"
)

const (
	boardWidth     = 44
	boardMaxHeight = 8
)

type detailModel struct {
	roundID string
	tracker *engine.Tracker
	now     time.Time
	loading bool
	err     string
	tapErr  string
	board   viewport.Model
	spinner spinner.Model
}

func newDetailModel(roundID string, now time.Time) *detailModel {
	return &detailModel{
		roundID: roundID,
		tracker: engine.NewTracker(),
		now:     now,
		loading: true,
		board:   viewport.New(boardWidth, 1),
		spinner: newSpinner(),
	}
}

func (m *detailModel) resize(width, height int) {
	m.board.Width = minInt(boardWidth, maxInt(10, width-4))
	m.board.Height = minInt(m.board.Height, maxInt(1, height-20))
}

func (m *detailModel) refreshBoard() {
	lines := report.Leaderboard(m.tracker.Leaderboard())
	m.board.SetContent(strings.Join(lines, "\n"))
	m.board.Height = maxInt(1, minInt(len(lines), boardMaxHeight))
}

// settled reports whether nothing on the screen can change any more.
func (m *detailModel) settled() bool {
	status, ok := m.tracker.Status(m.now)
	if !ok {
		return false
	}
	_, held := m.tracker.Stats()
	return status.Phase == model.PhaseFinished && held
}

func (a *App) updateDetail(msg tea.Msg) tea.Cmd {
	m := a.detail
	switch msg := msg.(type) {
	case roundMsg:
		m.loading = false
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				return a.expire()
			}
			log.Warn().Err(msg.err).Str("round_id", m.roundID).Msg("round request failed")
			m.err = msg.err.Error()
			return nil
		}
		m.now = a.clock.Now()
		m.tracker.SetRound(msg.detail, m.now)
		m.refreshBoard()
		return a.evaluate()
	case statsMsg:
		m.tracker.FinishStatsFetch(msg.stats, msg.err)
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				return a.expire()
			}
			log.Warn().Err(msg.err).Str("round_id", m.roundID).
				Int("failures", m.tracker.StatsFailures()).
				Msg("stats request failed, retrying on next tick")
		}
		return nil
	case tapMsg:
		m.tracker.FinishTap(msg.result, msg.err)
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				return a.expire()
			}
			m.tapErr = msg.err.Error()
		}
		return nil
	case tickMsg:
		m.now = a.clock.Now()
		cmd := a.evaluate()
		if m.err != "" || m.settled() {
			return cmd
		}
		return tea.Batch(cmd, a.scheduleTick(a.view))
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		switch msg.String() {
		case " ", "space", "enter":
			return a.tap()
		case "b", "esc":
			return a.showRounds()
		case "o":
			return a.logout()
		case "q":
			return tea.Quit
		}
		var cmd tea.Cmd
		m.board, cmd = m.board.Update(msg)
		return cmd
	}
	return nil
}

// evaluate issues the stats request once the round is over and no stats
// are held. A failed request is retried by the next evaluation.
func (a *App) evaluate() tea.Cmd {
	m := a.detail
	if !m.tracker.ShouldFetchStats(m.now) {
		return nil
	}
	m.tracker.BeginStatsFetch()
	return a.fetchStats(a.view, m.roundID)
}

// tap sends one tap while the round is active and no tap is outstanding.
func (a *App) tap() tea.Cmd {
	m := a.detail
	m.now = a.clock.Now()
	if !m.tracker.CanTap(m.now) {
		return nil
	}
	m.tracker.BeginTap()
	m.tapErr = ""
	return a.sendTap(a.view, m.roundID)
}

func (a *App) viewDetail() string {
	m := a.detail
	header := spread(
		titleStyle.Render("Round "+report.Truncate(m.roundID, 24)),
		mutedStyle.Render(a.session.Get().Username),
		boardWidth,
	)
	help := helpStyle.Render("space: tap  b: back  o: logout  q: quit")

	if m.loading {
		return lipgloss.JoinVertical(lipgloss.Left, header, "", m.spinner.View()+" Loading round...", "", help)
	}
	if m.err != "" {
		return lipgloss.JoinVertical(lipgloss.Left, header, "", errorStyle.Render(m.err), "", help)
	}

	status, _ := m.tracker.Status(m.now)
	lines := []string{header, "", a.renderGoose(status), ""}
	lines = append(lines, a.renderStatus(status)...)
	if m.tapErr != "" {
		lines = append(lines, "", errorStyle.Render(m.tapErr))
	}
	lines = append(lines, "", help)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) renderGoose(status engine.Status) string {
	m := a.detail
	switch {
	case m.tracker.Tapping():
		return gooseTapStyle.Render(goose)
	case status.Phase == model.PhaseActive && !status.Over():
		return gooseLiveStyle.Render(goose)
	default:
		return gooseStyle.Render(mutedStyle.Render(goose))
	}
}

func (a *App) renderStatus(status engine.Status) []string {
	m := a.detail
	_, score := m.tracker.Counters()
	switch {
	case status.Phase == model.PhaseCooldown:
		return []string{
			titleStyle.Render("Cooldown"),
			mutedStyle.Render("starts in " + report.Countdown(status.Remaining)),
		}
	case !status.Over():
		return []string{
			activeStyle.Render("Round is active!"),
			mutedStyle.Render(report.Countdown(status.Remaining) + " left"),
			fmt.Sprintf("My score: %s", valueStyle.Render(report.Score(score))),
		}
	}

	stats, ok := m.tracker.Stats()
	if !ok {
		return []string{m.spinner.View() + " Loading results..."}
	}
	lines := []string{titleStyle.Render("Round finished")}
	lines = append(lines, report.Summary(stats)...)
	if len(m.tracker.Leaderboard()) > 0 {
		lines = append(lines, "", m.board.View())
	}
	return lines
}
