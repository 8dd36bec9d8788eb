package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/tapgoose/internal/engine"
	"github.com/verte-zerg/tapgoose/internal/model"
	"github.com/verte-zerg/tapgoose/internal/report"
	"github.com/verte-zerg/tapgoose/internal/tui"
)

var (
	loginUsername      string
	loginPasswordStdin bool

	roundsAll bool

	tapCount int
)

func runTUICmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	app := tui.NewApp(ctx, env.client, env.session, tui.Options{Tick: cfg.Tick})
	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE:  runLoginCmd,
	}
	cmd.Flags().StringVar(&loginUsername, "username", "", "username (prompted when empty)")
	cmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func runLoginCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	in := bufio.NewReader(cmd.InOrStdin())

	username := strings.TrimSpace(loginUsername)
	if username == "" {
		if _, err := fmt.Fprint(cmd.ErrOrStderr(), "Username: "); err != nil {
			return fmt.Errorf("failed to write prompt: %w", err)
		}
		line, err := readLine(in)
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("username must not be empty")
	}
	password, err := readPassword(cmd, in)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := env.session.SetAuth(ctx, res.Token, res.Username, res.IsAdmin); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	log.Info().Str("username", res.Username).Bool("admin", res.IsAdmin).Msg("signed in")
	return printLines(cmd, "Signed in as "+describeUser(env.session.Get()))
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if loginPasswordStdin {
		return readLine(in)
	}
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for the password prompt; use --password-stdin")
	}
	if _, err := fmt.Fprint(cmd.ErrOrStderr(), "Password: "); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	data, err := term.ReadPassword(fd)
	cmd.PrintErrln()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}

func describeUser(s model.Session) string {
	if s.IsAdmin {
		return s.Username + " (admin)"
	}
	return s.Username
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE:  runLogoutCmd,
	}
}

func runLogoutCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	current := env.session.Get()
	if !current.Authenticated() {
		return printLines(cmd, "Not signed in.")
	}
	if err := env.client.Logout(ctx, current.Token); err != nil {
		log.Warn().Err(err).Msg("server logout failed")
		logErrf("warning: server logout failed: %v\n", err)
	}
	if err := env.session.ClearAuth(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return printLines(cmd, "Signed out.")
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runWhoamiCmd,
	}
}

func runWhoamiCmd(cmd *cobra.Command, _ []string) error {
	env, err := openClientEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	current := env.session.Get()
	if !current.Authenticated() {
		return errNotSignedIn
	}
	return printLines(cmd, describeUser(current))
}

func newRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "List rounds",
		Args:  cobra.NoArgs,
		RunE:  runRoundsCmd,
	}
	cmd.Flags().BoolVar(&roundsAll, "all", false, "follow pagination to the last page")
	return cmd
}

func runRoundsCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	token, err := env.token()
	if err != nil {
		return err
	}

	var list model.RoundList
	page, err := env.client.ListRounds(ctx, token, "")
	if err := env.check(ctx, err); err != nil {
		return err
	}
	list.Reset(page)
	for roundsAll && list.CanLoadMore() {
		page, err := env.client.ListRounds(ctx, token, list.NextCursor)
		if err := env.check(ctx, err); err != nil {
			return err
		}
		list.Append(page)
	}

	lines := report.Rounds(list.Items, time.Now())
	if list.CanLoadMore() {
		lines = append(lines, "", "More rounds available; use --all to list them.")
	}
	return printLines(cmd, lines...)
}

func newRoundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "round <id>",
		Short: "Show one round",
		Args:  cobra.ExactArgs(1),
		RunE:  runRoundCmd,
	}
}

func runRoundCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	token, err := env.token()
	if err != nil {
		return err
	}

	detail, err := env.client.GetRound(ctx, token, args[0])
	if err := env.check(ctx, err); err != nil {
		return err
	}
	tr := engine.NewTracker()
	tr.SetRound(detail, time.Now())
	now := time.Now()
	if tr.ShouldFetchStats(now) {
		tr.BeginStatsFetch()
		stats, err := env.client.GetRoundStats(ctx, token, detail.ID)
		tr.FinishStatsFetch(stats, err)
		if err := env.check(ctx, err); err != nil {
			if errors.Is(err, errSessionExpired) {
				return err
			}
			logErrf("warning: %v\n", err)
		}
	}
	return printLines(cmd, roundLines(tr, now)...)
}

// roundLines renders a tracked round at now: its timing, the live status
// line and, once over, the results.
func roundLines(tr *engine.Tracker, now time.Time) []string {
	round, _ := tr.Round()
	status, _ := tr.Status(now)
	_, score := tr.Counters()
	lines := report.Table(nil, [][]string{
		{"Round", round.ID},
		{"Start", fmt.Sprintf("%s (%s)", report.Timestamp(round.StartTime), report.Relative(round.StartTime, now))},
		{"End", fmt.Sprintf("%s (%s)", report.Timestamp(round.EndTime), report.Relative(round.EndTime, now))},
		{"Status", report.PhaseLabel(status.Phase)},
	}, nil)
	lines = append(lines, "")
	stats, ok := tr.Stats()
	if !status.Over() || !ok {
		return append(lines, report.Status(status, score))
	}
	lines = append(lines, report.Summary(stats)...)
	if board := report.Leaderboard(tr.Leaderboard()); len(board) > 0 {
		lines = append(lines, "")
		lines = append(lines, board...)
	}
	return lines
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a round (admin only)",
		Args:  cobra.NoArgs,
		RunE:  runCreateCmd,
	}
}

func runCreateCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	token, err := env.token()
	if err != nil {
		return err
	}
	if !env.session.Get().IsAdmin {
		return fmt.Errorf("only admins can create rounds")
	}

	round, err := env.client.CreateRound(ctx, token)
	if err := env.check(ctx, err); err != nil {
		return err
	}
	log.Info().Str("round_id", round.ID).Msg("round created")
	return printLines(cmd, report.Rounds([]model.Round{round}, time.Now())...)
}

func newTapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tap <id>",
		Short: "Tap the goose in an active round",
		Args:  cobra.ExactArgs(1),
		RunE:  runTapCmd,
	}
	cmd.Flags().IntVar(&tapCount, "count", 1, "number of taps to send, one after another")
	return cmd
}

func runTapCmd(cmd *cobra.Command, args []string) error {
	if tapCount <= 0 {
		return fmt.Errorf("--count must be > 0")
	}
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	token, err := env.token()
	if err != nil {
		return err
	}

	detail, err := env.client.GetRound(ctx, token, args[0])
	if err := env.check(ctx, err); err != nil {
		return err
	}
	tr := engine.NewTracker()
	tr.SetRound(detail, time.Now())

	sent := 0
	for sent < tapCount {
		now := time.Now()
		if !tr.CanTap(now) {
			status, _ := tr.Status(now)
			if sent == 0 {
				return fmt.Errorf("round is not active (%s)", report.PhaseLabel(status.Phase))
			}
			break
		}
		tr.BeginTap()
		res, err := env.client.Tap(ctx, token, detail.ID)
		tr.FinishTap(res, err)
		if err := env.check(ctx, err); err != nil {
			return err
		}
		sent++
	}
	taps, score := tr.Counters()
	return printLines(cmd, fmt.Sprintf("Taps: %d  Score: %s", taps, report.Score(score)))
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a round's countdown and print its results",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchCmd,
	}
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openClientEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	token, err := env.token()
	if err != nil {
		return err
	}

	detail, err := env.client.GetRound(ctx, token, args[0])
	if err := env.check(ctx, err); err != nil {
		return err
	}
	tr := engine.NewTracker()
	tr.SetRound(detail, time.Now())

	out := cmd.OutOrStdout()
	live := isTerminal(out)
	var runErr error
	loopErr := engine.Loop(ctx, clockwork.NewRealClock(), cfg.Tick, func(now time.Time) bool {
		if tr.ShouldFetchStats(now) {
			tr.BeginStatsFetch()
			stats, err := env.client.GetRoundStats(ctx, token, detail.ID)
			tr.FinishStatsFetch(stats, err)
			if err != nil {
				if checked := env.check(ctx, err); errors.Is(checked, errSessionExpired) {
					runErr = checked
					return false
				}
				log.Warn().Err(err).Str("round_id", detail.ID).
					Int("failures", tr.StatsFailures()).
					Msg("stats request failed, retrying on next tick")
			}
		}
		status, _ := tr.Status(now)
		if _, ok := tr.Stats(); ok && status.Over() {
			if live {
				_, runErr = fmt.Fprint(out, "\r\033[K")
			}
			if runErr == nil {
				runErr = printLines(cmd, roundLines(tr, now)...)
			}
			return false
		}
		_, score := tr.Counters()
		line := report.Status(status, score)
		if live {
			_, runErr = fmt.Fprintf(out, "\r\033[K%s", line)
		} else {
			_, runErr = fmt.Fprintln(out, line)
		}
		return runErr == nil
	})
	if runErr != nil {
		return runErr
	}
	return loopErr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
