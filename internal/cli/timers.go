package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// timerStore is the subset of the timer store the timers commands use.
type timerStore interface {
	List(ctx context.Context, issueKey string) ([]domain.Timer, error)
	Clear(ctx context.Context, issueKey string) (int64, error)
}

// AddTimersCommand adds the timers command group to the root command.
func AddTimersCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "timers",
		Short: "Inspect or clear a ticket's rule timers",
	}
	cmd.AddCommand(
		newTimersCmd(flags, "list <ISSUE-KEY>", "Show every timer recorded for a ticket", runTimersList),
		newTimersCmd(flags, "clear <ISSUE-KEY>", "Delete every timer recorded for a ticket", runTimersClear),
	)
	root.AddCommand(cmd)
}

type timersRunner func(ctx context.Context, w io.Writer, format string, store timerStore, key string, now time.Time) error

func newTimersCmd(flags *GlobalFlags, use, short string, run timersRunner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, flags, nil)
			if err != nil {
				return err
			}
			store, err := openTimers(ctx, cfg, GetLogger())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return run(ctx, os.Stdout, flags.Output, store, args[0], time.Now())
		},
	}
}

// timerView is the printable form of a timer.
type timerView struct {
	IssueKey         string            `json:"issue_key"`
	RuleID           string            `json:"rule_id"`
	RearmKey         string            `json:"rearm_key"`
	State            domain.TimerState `json:"state"`
	StartedAt        time.Time         `json:"started_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
	DurationSeconds  int64             `json:"duration_seconds"`
	RemainingSeconds int64             `json:"remaining_seconds"`
}

func runTimersList(ctx context.Context, w io.Writer, format string, store timerStore, key string, now time.Time) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	timers, err := store.List(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to list timers for %s: %w", key, err)
	}

	views := make([]timerView, len(timers))
	for i := range timers {
		t := &timers[i]
		views[i] = timerView{
			IssueKey:         t.IssueKey,
			RuleID:           t.RuleID,
			RearmKey:         t.RearmKey,
			State:            t.State,
			StartedAt:        t.StartedAt,
			ExpiresAt:        t.ExpiresAt(),
			DurationSeconds:  int64(t.Duration / time.Second),
			RemainingSeconds: int64(t.Remaining(now) / time.Second),
		}
	}

	if format == OutputJSON {
		return tui.NewOutput(w, OutputJSON).JSON(views)
	}

	tui.CheckNoColor()
	if len(views) == 0 {
		tui.NewOutput(w, OutputText).Info("no timers for " + key)
		return nil
	}

	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{
			v.RuleID,
			string(v.State),
			v.StartedAt.Local().Format(time.DateTime),
			(time.Duration(v.DurationSeconds) * time.Second).String(),
			(time.Duration(v.RemainingSeconds) * time.Second).String(),
			v.RearmKey,
		}
	}
	cols := tui.FitColumns([]tui.TableColumn{
		{Name: "RULE"},
		{Name: "STATE"},
		{Name: "STARTED"},
		{Name: "DURATION", Align: tui.AlignRight},
		{Name: "REMAINING", Align: tui.AlignRight},
		{Name: "REARM KEY"},
	}, rows, 48)

	table := tui.NewTable(w, cols)
	table.WriteHeader()
	for _, row := range rows {
		table.WriteRow(row...)
	}
	return nil
}

func runTimersClear(ctx context.Context, w io.Writer, format string, store timerStore, key string, _ time.Time) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	n, err := store.Clear(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to clear timers for %s: %w", key, err)
	}

	if format == OutputJSON {
		return tui.NewOutput(w, OutputJSON).JSON(map[string]any{"issue_key": key, "cleared": n})
	}
	tui.CheckNoColor()
	tui.NewOutput(w, OutputText).Success(fmt.Sprintf("cleared %d timer(s) for %s", n, key))
	return nil
}
