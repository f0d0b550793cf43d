package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/constants"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// AddMetricsCommand adds the metrics command to the root command.
func AddMetricsCommand(root *cobra.Command, flags *GlobalFlags) {
	var date string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarize one day of processing logs",
		Long: `Report the automation rate, outcome counts and most matched rules for one
day, read from the processing logs under audit.log_dir.

Examples:
  rackbrain metrics
  rackbrain metrics --date 2026-10-17 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			return runMetrics(os.Stdout, flags.Output, cfg.Audit.LogDir, date, time.Now())
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (default today)")

	root.AddCommand(cmd)
}

func runMetrics(w io.Writer, format, dir, date string, now time.Time) error {
	if date != "" {
		if _, err := time.ParseInLocation(audit.DayLayout, date, time.Local); err != nil {
			return errors.NewExitCode2Error(fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date))
		}
	}

	summary, err := audit.DailySummary(dir, date, now, constants.MetricsRetentionDays)
	if err != nil {
		return err
	}

	if format == OutputJSON {
		return tui.NewOutput(w, OutputJSON).JSON(summary)
	}

	tui.CheckNoColor()
	o := tui.NewOutput(w, OutputText)
	a := summary.Automation
	o.Heading("Processing summary for " + summary.Date)
	o.Field("automation", strconv.FormatFloat(a.Rate, 'f', 2, 64)+"%")
	o.Field("processed", strconv.Itoa(a.Total))
	o.Field("successful", strconv.Itoa(a.Successful))
	o.Field("failed", strconv.Itoa(a.Failed))
	o.Field("no match", strconv.Itoa(a.NoMatch))
	o.Field("dry run", strconv.Itoa(a.DryRun))

	if len(summary.TopRules) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	rows := make([][]string, len(summary.TopRules))
	for i, r := range summary.TopRules {
		rows[i] = []string{
			r.RuleID,
			strconv.Itoa(r.MatchCount),
			strconv.FormatFloat(r.AvgConfidence, 'f', 2, 64),
			r.RuleName,
		}
	}
	cols := tui.FitColumns([]tui.TableColumn{
		{Name: "RULE"},
		{Name: "MATCHES", Align: tui.AlignRight},
		{Name: "AVG CONF", Align: tui.AlignRight},
		{Name: "NAME"},
	}, rows, 48)
	table := tui.NewTable(w, cols)
	table.WriteHeader()
	for _, row := range rows {
		table.WriteRow(row...)
	}
	_, _ = fmt.Fprintf(w, "\n  %d rule(s) matched\n", summary.TotalRulesMatched)
	return nil
}
