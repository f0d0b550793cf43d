package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/config"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/poller"
	"github.com/mrz1836/rackbrain/internal/signal"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// pollOptions holds the poll command's flags.
type pollOptions struct {
	Apply        bool
	Once         bool
	SkipCommands bool
	JQL          string
	Interval     time.Duration
}

// AddPollCommand adds the poll command to the root command.
func AddPollCommand(root *cobra.Command, flags *GlobalFlags) {
	root.AddCommand(newPollCmd(flags))
}

func newPollCmd(flags *GlobalFlags) *cobra.Command {
	var opts pollOptions

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Search Jira and process every matching ticket",
		Long: `Run the configured JQL search, then every enabled extra query, and process
the tickets found with a bounded worker pool. Loops on polling.interval until
interrupted unless --once is given.

Examples:
  rackbrain poll --once
  rackbrain poll --apply --interval 5m
  rackbrain poll --once --jql 'project = MFG AND status = Open'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoll(cmd.Context(), flags, os.Stdout, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "perform the actions instead of a dry run")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single poll cycle and exit")
	cmd.Flags().BoolVar(&opts.SkipCommands, "skip-commands", false, "do not run remote command steps")
	cmd.Flags().StringVar(&opts.JQL, "jql", "", "override the primary search")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "override polling.interval")

	return cmd
}

func runPoll(ctx context.Context, flags *GlobalFlags, w io.Writer, opts pollOptions) error {
	logger := GetLogger()

	overrides := &config.Config{Polling: config.PollingConfig{JQL: opts.JQL, Interval: opts.Interval}}
	cfg, err := loadConfig(ctx, flags, overrides)
	if err != nil {
		return err
	}
	pcfg, err := pollerConfig(cfg, opts)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sh := signal.NewHandler(ctx, signal.WithNotify(func(sig os.Signal) {
		logger.Warn().Str("signal", sig.String()).Msg("shutdown requested, finishing current cycle (repeat to force)")
	}))
	defer sh.Stop()

	return runPollWithDeps(sh.Context(), w, flags.Output, a.jira, a.proc, a.rules, pcfg, opts.Once, logger)
}

// runPollWithDeps runs the poller and prints a summary after every cycle.
func runPollWithDeps(ctx context.Context, w io.Writer, format string, search poller.Searcher,
	proc poller.TicketProcessor, rules []domain.Rule, cfg poller.Config, once bool, logger zerolog.Logger,
) error {
	p := poller.New(search, proc, rules, cfg, logger, poller.WithReporter(func(r poller.Report) {
		writeReport(w, format, r)
	}))
	return p.Run(ctx, once)
}

// pollerConfig builds the poller settings from configuration and flags.
func pollerConfig(cfg *config.Config, opts pollOptions) (poller.Config, error) {
	pc := cfg.Polling

	jql := strings.TrimSpace(pc.JQL)
	if jql == "" {
		if pc.ProjectKey == "" {
			return poller.Config{}, errors.Wrap(errors.ErrConfigInvalidPolling, "set polling.jql or polling.project_key")
		}
		jql = poller.BuildDefaultJQL(pc.ProjectKey, pc.AllowedStatuses, pc.LookbackHours)
	}

	out := poller.Config{
		JQL:          jql,
		Interval:     pc.Interval,
		MaxWorkers:   pc.MaxWorkers,
		MaxResults:   pc.MaxResults,
		DryRun:       !opts.Apply,
		SkipCommands: opts.SkipCommands,
		StateDir:     cfg.Paths.StateDir,
	}
	if cfg.Audit.Enabled {
		out.AuditDir = cfg.Audit.LogDir
	}
	for _, q := range pc.ExtraQueries {
		out.ExtraQueries = append(out.ExtraQueries, poller.Query{
			Name:        q.Name,
			JQL:         q.JQL,
			OnlyRuleIDs: q.OnlyRuleIDs,
			MaxResults:  q.MaxResults,
			Disabled:    !q.IsEnabled(),
		})
	}
	return out, nil
}

// pollReport is the JSON form of one cycle summary.
type pollReport struct {
	Cycle       int          `json:"cycle"`
	Stats       poller.Stats `json:"stats"`
	EditedToday []string     `json:"edited_today,omitempty"`
}

func writeReport(w io.Writer, format string, r poller.Report) {
	if format == OutputJSON {
		_ = tui.NewOutput(w, OutputJSON).JSON(pollReport{Cycle: r.Cycle, Stats: r.Stats, EditedToday: r.EditedToday})
		return
	}

	tui.CheckNoColor()
	o := tui.NewOutput(w, OutputText)
	s := r.Stats
	o.Heading(fmt.Sprintf("cycle %d %s", r.Cycle, s.CycleID))
	_, _ = fmt.Fprintf(w, "  found %d, processed %d, succeeded %d, failed %d\n",
		s.TotalFound, s.Processed, s.Succeeded, s.Failed)
	if len(s.Edited) > 0 {
		o.Success("edited: " + strings.Join(s.Edited, ", "))
	}
	if r.EditedToday != nil {
		_, _ = fmt.Fprintf(w, "  edited today (%d): %s\n", len(r.EditedToday), orDash(strings.Join(r.EditedToday, ", ")))
	}
}
