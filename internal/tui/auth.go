package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

type authModel struct {
	username textinput.Model
	password textinput.Model
	focus    int
	spinner  spinner.Model
	loading  bool
	err      string
	notice   string
}

func newAuthModel(notice string) *authModel {
	m := &authModel{
		username: newInput("Username: ", false),
		password: newInput("Password: ", true),
		spinner:  newSpinner(),
		notice:   notice,
	}
	m.username.Focus()
	return m
}

func (m *authModel) setFocus(idx int) {
	m.focus = idx
	if idx == 0 {
		m.username.Focus()
		m.password.Blur()
		return
	}
	m.username.Blur()
	m.password.Focus()
}

func (a *App) updateAuth(msg tea.Msg) tea.Cmd {
	m := a.auth
	switch msg := msg.(type) {
	case loginMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err.Error()
			return nil
		}
		res := msg.result
		if err := a.session.SetAuth(a.ctx, res.Token, res.Username, res.IsAdmin); err != nil {
			log.Error().Err(err).Msg("failed to persist session")
		}
		log.Info().Str("username", res.Username).Bool("admin", res.IsAdmin).Msg("signed in")
		return a.showRounds()
	case spinner.TickMsg:
		if !m.loading {
			return nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		if m.loading {
			return nil
		}
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			m.setFocus(1 - m.focus)
			return nil
		case "enter":
			if m.focus == 0 && m.password.Value() == "" {
				m.setFocus(1)
				return nil
			}
			return a.submitLogin()
		}
		var cmd tea.Cmd
		if m.focus == 0 {
			m.username, cmd = m.username.Update(msg)
		} else {
			m.password, cmd = m.password.Update(msg)
		}
		return cmd
	}
	return nil
}

func (a *App) submitLogin() tea.Cmd {
	m := a.auth
	username := strings.TrimSpace(m.username.Value())
	password := m.password.Value()
	if username == "" || password == "" {
		m.err = "enter username and password"
		return nil
	}
	m.err = ""
	m.notice = ""
	m.loading = true
	return tea.Batch(a.login(a.view, username, password), m.spinner.Tick)
}

func (a *App) viewAuth() string {
	m := a.auth
	lines := []string{
		titleStyle.Render("Tap the goose"),
		"",
		m.username.View(),
		m.password.View(),
		"",
	}
	switch {
	case m.loading:
		lines = append(lines, m.spinner.View()+" Signing in...")
	case m.err != "":
		lines = append(lines, errorStyle.Render(m.err))
	case m.notice != "":
		lines = append(lines, noticeStyle.Render(m.notice))
	default:
		lines = append(lines, "")
	}
	lines = append(lines, "", helpStyle.Render("tab: switch field  enter: sign in  ctrl+c: quit"))
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
