package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/tapgoose/internal/model"
)

// viewMsg is a reply addressed to the view that requested it.
type viewMsg interface {
	viewID() int
}

type viewTag struct {
	view int
}

func (t viewTag) viewID() int {
	return t.view
}

type tickMsg struct {
	viewTag
}

type loginMsg struct {
	viewTag
	result model.LoginResult
	err    error
}

type roundsMsg struct {
	viewTag
	page model.RoundsPage
	more bool
	err  error
}

type createdMsg struct {
	viewTag
	round model.Round
	err   error
}

type roundMsg struct {
	viewTag
	detail model.RoundDetail
	err    error
}

type statsMsg struct {
	viewTag
	stats model.RoundStats
	err   error
}

type tapMsg struct {
	viewTag
	result model.TapResult
	err    error
}

type logoutMsg struct {
	err error
}

func (a *App) login(view int, username, password string) tea.Cmd {
	ctx, client := a.ctx, a.api
	return func() tea.Msg {
		res, err := client.Login(ctx, username, password)
		return loginMsg{viewTag{view}, res, err}
	}
}

func (a *App) fetchRounds(view int, cursor string) tea.Cmd {
	ctx, client, token := a.ctx, a.api, a.token()
	return func() tea.Msg {
		page, err := client.ListRounds(ctx, token, cursor)
		return roundsMsg{viewTag{view}, page, cursor != "", err}
	}
}

func (a *App) createRound(view int) tea.Cmd {
	ctx, client, token := a.ctx, a.api, a.token()
	return func() tea.Msg {
		round, err := client.CreateRound(ctx, token)
		return createdMsg{viewTag{view}, round, err}
	}
}

func (a *App) fetchRound(view int, id string) tea.Cmd {
	ctx, client, token := a.ctx, a.api, a.token()
	return func() tea.Msg {
		detail, err := client.GetRound(ctx, token, id)
		return roundMsg{viewTag{view}, detail, err}
	}
}

func (a *App) fetchStats(view int, id string) tea.Cmd {
	ctx, client, token := a.ctx, a.api, a.token()
	return func() tea.Msg {
		stats, err := client.GetRoundStats(ctx, token, id)
		return statsMsg{viewTag{view}, stats, err}
	}
}

func (a *App) sendTap(view int, id string) tea.Cmd {
	ctx, client, token := a.ctx, a.api, a.token()
	return func() tea.Msg {
		res, err := client.Tap(ctx, token, id)
		return tapMsg{viewTag{view}, res, err}
	}
}
