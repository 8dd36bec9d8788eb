package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/tapgoose/internal/api"
	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/report"
)

const (
	idColWidth     = 14
	timeColWidth   = len(report.TimeLayout)
	statusColWidth = 9
	// lines around the table: title, blank, blank, status, help
	roundsChrome = 5
)

const notAdminText = "only admins can create rounds"

type roundsModel struct {
	user        model.Session
	list        model.RoundList
	table       table.Model
	spinner     spinner.Model
	loading     bool
	loadingMore bool
	creating    bool
	err         string
}

func newRoundsModel(user model.Session) *roundsModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: idColWidth},
			{Title: "Start", Width: timeColWidth},
			{Title: "End", Width: timeColWidth},
			{Title: "Status", Width: statusColWidth},
		}),
		table.WithHeight(10),
		table.WithFocused(true),
	)
	t.SetStyles(roundsTableStyles())
	return &roundsModel{
		user:    user,
		table:   t,
		spinner: newSpinner(),
	}
}

func (m *roundsModel) resize(_, height int) {
	m.table.SetHeight(maxInt(3, height-roundsChrome-2))
}

func (m *roundsModel) refreshRows(now time.Time) {
	rows := make([]table.Row, 0, len(m.list.Items))
	for _, r := range m.list.Items {
		rows = append(rows, table.Row{
			report.Truncate(r.ID, idColWidth),
			report.Timestamp(r.StartTime),
			report.Timestamp(r.EndTime),
			report.PhaseLabel(engine.PhaseAt(now, r.StartTime, r.EndTime)),
		})
	}
	m.table.SetRows(rows)
	if cur := m.table.Cursor(); cur >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m *roundsModel) selected() (model.Round, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.list.Items) {
		return model.Round{}, false
	}
	return m.list.Items[idx], true
}

func (m *roundsModel) busy() bool {
	return m.loading || m.loadingMore || m.creating
}

func (a *App) updateRounds(msg tea.Msg) tea.Cmd {
	m := a.rounds
	switch msg := msg.(type) {
	case roundsMsg:
		m.loading = false
		m.loadingMore = false
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				return a.expire()
			}
			log.Warn().Err(msg.err).Bool("more", msg.more).Msg("rounds request failed")
			m.err = msg.err.Error()
			return nil
		}
		m.err = ""
		if msg.more {
			m.list.Append(msg.page)
		} else {
			m.list.Reset(msg.page)
		}
		m.refreshRows(a.clock.Now())
		return nil
	case createdMsg:
		m.creating = false
		if msg.err != nil {
			if api.IsUnauthorized(msg.err) {
				return a.expire()
			}
			m.err = msg.err.Error()
			return nil
		}
		log.Info().Str("round_id", msg.round.ID).Msg("round created")
		return a.showDetail(msg.round.ID)
	case tickMsg:
		m.refreshRows(a.clock.Now())
		return a.scheduleTick(a.view)
	case spinner.TickMsg:
		if !m.busy() {
			return nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd
	case tea.KeyMsg:
		return a.roundsKey(msg)
	}
	return nil
}

func (a *App) roundsKey(msg tea.KeyMsg) tea.Cmd {
	m := a.rounds
	switch msg.String() {
	case "q":
		return tea.Quit
	case "o":
		return a.logout()
	case "m":
		if m.busy() || !m.list.CanLoadMore() {
			return nil
		}
		m.loadingMore = true
		return tea.Batch(a.fetchRounds(a.view, m.list.NextCursor), m.spinner.Tick)
	case "r":
		if m.busy() {
			return nil
		}
		m.loading = true
		return tea.Batch(a.fetchRounds(a.view, ""), m.spinner.Tick)
	case "n":
		if !m.user.IsAdmin {
			m.err = notAdminText
			return nil
		}
		if m.busy() {
			return nil
		}
		m.creating = true
		m.err = ""
		return tea.Batch(a.createRound(a.view), m.spinner.Tick)
	case "enter":
		round, ok := m.selected()
		if !ok {
			return nil
		}
		return a.showDetail(round.ID)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return cmd
}

func (a *App) viewRounds() string {
	m := a.rounds
	header := titleStyle.Render("Rounds")
	who := mutedStyle.Render(m.user.Username)
	if m.user.IsAdmin {
		who += noticeStyle.Render(" (admin)")
	}

	var body string
	switch {
	case m.loading && len(m.list.Items) == 0:
		body = m.spinner.View() + " Loading rounds..."
	case len(m.list.Items) == 0:
		body = mutedStyle.Render("No rounds yet.")
	default:
		body = m.table.View()
	}

	var status string
	switch {
	case m.loadingMore:
		status = m.spinner.View() + " Loading more..."
	case m.creating:
		status = m.spinner.View() + " Creating round..."
	case m.loading:
		status = m.spinner.View() + " Reloading..."
	case m.err != "":
		status = errorStyle.Render(m.err)
	case m.list.CanLoadMore():
		status = mutedStyle.Render("More rounds available (m)")
	}

	help := []string{"enter: open", "m: more", "r: reload"}
	if m.user.IsAdmin {
		help = append(help, "n: new round")
	}
	help = append(help, "o: logout", "q: quit")

	width := lipgloss.Width(body)
	return lipgloss.JoinVertical(lipgloss.Left,
		spread(header, who, maxInt(width, 40)),
		"",
		body,
		"",
		status,
		helpStyle.Render(strings.Join(help, "  ")),
	)
}
