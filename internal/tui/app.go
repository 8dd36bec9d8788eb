// Package tui provides the Bubble Tea screens of the client: sign in, the
// rounds list and a single round.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/session"
)

const sessionExpiredText = "session expired, please sign in again"

// API is the part of the backend client the screens call.
type API interface {
	Login(ctx context.Context, username, password string) (model.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ListRounds(ctx context.Context, token, cursor string) (model.RoundsPage, error)
	GetRound(ctx context.Context, token, id string) (model.RoundDetail, error)
	CreateRound(ctx context.Context, token string) (model.Round, error)
	Tap(ctx context.Context, token, id string) (model.TapResult, error)
	GetRoundStats(ctx context.Context, token, id string) (model.RoundStats, error)
}

// Options tunes an App.
type Options struct {
	// Tick is the re-evaluation period of the rounds and round screens.
	Tick  time.Duration
	Clock clockwork.Clock
}

type screen int

const (
	screenAuth screen = iota
	screenRounds
	screenDetail
)

// App is the root model. Every screen change starts a new view; replies to
// requests issued by an earlier view are dropped.
type App struct {
	ctx     context.Context
	api     API
	session *session.Manager
	clock   clockwork.Clock
	tick    time.Duration
	after   func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

	screen screen
	view   int
	width  int
	height int

	auth   *authModel
	rounds *roundsModel
	detail *detailModel
}

// NewApp constructs the root model.
func NewApp(ctx context.Context, client API, sess *session.Manager, opts Options) *App {
	if opts.Tick <= 0 {
		opts.Tick = engine.DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &App{
		ctx:     ctx,
		api:     client,
		session: sess,
		clock:   opts.Clock,
		tick:    opts.Tick,
		after:   tea.Tick,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	if a.session.IsAuthenticated() {
		return a.showRounds()
	}
	return a.showAuth("")
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, tea.Quit
		}
	case logoutMsg:
		if msg.err != nil {
			log.Warn().Err(msg.err).Msg("server logout failed")
		}
		return a, nil
	case viewMsg:
		if msg.viewID() != a.view {
			return a, nil
		}
	}

	switch a.screen {
	case screenAuth:
		return a, a.updateAuth(msg)
	case screenRounds:
		return a, a.updateRounds(msg)
	default:
		return a, a.updateDetail(msg)
	}
}

// View implements tea.Model.
func (a *App) View() string {
	var body string
	switch a.screen {
	case screenAuth:
		body = a.viewAuth()
	case screenRounds:
		body = a.viewRounds()
	default:
		body = a.viewDetail()
	}
	if a.width == 0 || a.height == 0 {
		return body
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, body)
}

func (a *App) enter(s screen) int {
	a.view++
	a.screen = s
	a.auth, a.rounds, a.detail = nil, nil, nil
	return a.view
}

func (a *App) showAuth(notice string) tea.Cmd {
	a.enter(screenAuth)
	a.auth = newAuthModel(notice)
	return nil
}

func (a *App) showRounds() tea.Cmd {
	if !a.session.IsAuthenticated() {
		return a.showAuth("")
	}
	view := a.enter(screenRounds)
	a.rounds = newRoundsModel(a.session.Get())
	a.resize()
	a.rounds.loading = true
	return tea.Batch(a.fetchRounds(view, ""), a.rounds.spinner.Tick, a.scheduleTick(view))
}

func (a *App) showDetail(roundID string) tea.Cmd {
	if !a.session.IsAuthenticated() {
		return a.showAuth("")
	}
	view := a.enter(screenDetail)
	a.detail = newDetailModel(roundID, a.clock.Now())
	a.resize()
	return tea.Batch(a.fetchRound(view, roundID), a.detail.spinner.Tick, a.scheduleTick(view))
}

// expire ends a session the server no longer accepts.
func (a *App) expire() tea.Cmd {
	if err := a.session.ClearAuth(a.ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}
	return a.showAuth(sessionExpiredText)
}

// logout clears the session and tells the server in the background. The
// server's answer is only logged.
func (a *App) logout() tea.Cmd {
	token := a.session.Get().Token
	if err := a.session.ClearAuth(a.ctx); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}
	ctx, client := a.ctx, a.api
	call := func() tea.Msg {
		return logoutMsg{err: client.Logout(ctx, token)}
	}
	return tea.Batch(call, a.showAuth(""))
}

func (a *App) scheduleTick(view int) tea.Cmd {
	return a.after(a.tick, func(time.Time) tea.Msg {
		return tickMsg{viewTag{view}}
	})
}

func (a *App) resize() {
	if a.width == 0 || a.height == 0 {
		return
	}
	switch {
	case a.rounds != nil:
		a.rounds.resize(a.width, a.height)
	case a.detail != nil:
		a.detail.resize(a.width, a.height)
	}
}

func (a *App) token() string {
	return a.session.Get().Token
}
