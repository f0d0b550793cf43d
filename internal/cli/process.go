package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/poller"
	"github.com/mrz1836/rackbrain/internal/processor"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// processOptions holds the process command's flags.
type processOptions struct {
	Apply        bool
	SkipCommands bool
}

// AddProcessCommand adds the process command to the root command.
func AddProcessCommand(root *cobra.Command, flags *GlobalFlags) {
	root.AddCommand(newProcessCmd(flags))
}

func newProcessCmd(flags *GlobalFlags) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process <ISSUE-KEY>",
		Short: "Classify and handle a single ticket",
		Long: `Fetch one ticket, match it against the loaded rules and run the matched
rule's workflow. Without --apply nothing is written to Jira and no timer is
started; the would-be comment and actions are printed instead.

Examples:
  rackbrain process MFG-1234
  rackbrain process MFG-1234 --apply
  rackbrain process MFG-1234 --skip-commands -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), flags, os.Stdout, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "perform the actions instead of a dry run")
	cmd.Flags().BoolVar(&opts.SkipCommands, "skip-commands", false, "do not run remote command steps")

	return cmd
}

// runProcess wires the production app and processes one ticket.
func runProcess(ctx context.Context, flags *GlobalFlags, w io.Writer, key string, opts processOptions) error {
	logger := GetLogger()

	cfg, err := loadConfig(ctx, flags, nil)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return runProcessWithDeps(ctx, w, flags.Output, a.proc, a.rules, key, opts, logger)
}

// runProcessWithDeps processes key with proc and prints the outcome.
func runProcessWithDeps(ctx context.Context, w io.Writer, format string, proc poller.TicketProcessor,
	rules []domain.Rule, key string, opts processOptions, logger zerolog.Logger,
) error {
	key = strings.ToUpper(strings.TrimSpace(key))
	logger.Debug().Str("issue_key", key).Bool("dry_run", !opts.Apply).Msg("processing ticket")

	out, err := proc.Process(ctx, key, processor.Options{
		DryRun:       !opts.Apply,
		SkipCommands: opts.SkipCommands,
		Rules:        rules,
	})
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", key, err)
	}

	if format == OutputJSON {
		return tui.NewOutput(w, OutputJSON).JSON(out)
	}
	writeOutcome(w, out)
	return nil
}

// writeOutcome prints a human-readable outcome.
func writeOutcome(w io.Writer, out *processor.Outcome) {
	tui.CheckNoColor()
	o := tui.NewOutput(w, OutputText)

	mode := "applied"
	if out.DryRun {
		mode = "dry run"
	}
	o.Heading(fmt.Sprintf("%s (%s)", out.IssueKey, mode))

	if !out.Matched {
		o.Warning("no rule matched")
	} else {
		rule := out.RuleID
		if out.RuleName != "" {
			rule += " (" + out.RuleName + ")"
		}
		o.Field("rule", rule)
		if out.Confidence != nil {
			o.Field("confidence", strconv.FormatFloat(*out.Confidence, 'f', 2, 64))
		}
	}

	action := out.Action()
	o.Field("action", tui.ActionStyle(action).Render(orDash(action)))
	o.Field("edited", strconv.FormatBool(out.Edited))
	if out.TimerSeconds != nil {
		o.Field("timer", (time.Duration(*out.TimerSeconds) * time.Second).String())
	}

	if out.Comment != "" {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, tui.StyleDim.Render("comment:"))
		for _, line := range strings.Split(out.Comment, "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
