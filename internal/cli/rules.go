package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/config"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/rules"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// AddRulesCommand adds the rules command group to the root command.
func AddRulesCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the configured rule files",
	}
	cmd.AddCommand(newRulesValidateCmd(flags), newRulesListCmd(flags))
	root.AddCommand(cmd)
}

func newRulesValidateCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse every rule file and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			return runRulesValidate(cmd.Context(), os.Stdout, flags.Output, cfg)
		},
	}
}

func newRulesListCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List loaded rules in declaration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			loaded, err := loadRules(cfg)
			if err != nil {
				return err
			}
			return runRulesList(os.Stdout, flags.Output, loaded)
		},
	}
}

// ruleFileResult is the outcome of validating one rule file.
type ruleFileResult struct {
	File  string `json:"file"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

// runRulesValidate loads each rule file on its own so every broken file is
// reported, not just the first.
func runRulesValidate(ctx context.Context, w io.Writer, format string, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(cfg.Rules.Files) == 0 {
		return errors.Wrap(errors.ErrConfigInvalidRules, "no rules files configured under rules.files")
	}

	loader := rules.NewLoader(cfg.BaseDir)
	results := make([]ruleFileResult, 0, len(cfg.Rules.Files))
	var firstErr error
	for _, file := range cfg.Rules.Files {
		res := ruleFileResult{File: file}
		loaded, err := loader.LoadFile(file)
		if err != nil {
			res.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		res.Rules = len(loaded)
		results = append(results, res)
	}

	if format == OutputJSON {
		if err := tui.NewOutput(w, OutputJSON).JSON(results); err != nil {
			return err
		}
		return firstErr
	}

	tui.CheckNoColor()
	o := tui.NewOutput(w, OutputText)
	for _, res := range results {
		if res.Error != "" {
			o.Warning(fmt.Sprintf("%s: %s", res.File, res.Error))
			continue
		}
		o.Success(fmt.Sprintf("%s: %d rules", res.File, res.Rules))
	}
	return firstErr
}

func runRulesList(w io.Writer, format string, loaded []domain.Rule) error {
	if format == OutputJSON {
		return tui.NewOutput(w, OutputJSON).JSON(loaded)
	}

	tui.CheckNoColor()
	rows := make([][]string, len(loaded))
	for i, r := range loaded {
		rows[i] = []string{r.ID, strconv.Itoa(r.Priority), strconv.Itoa(len(r.Patterns)), r.Name}
	}
	cols := tui.FitColumns([]tui.TableColumn{
		{Name: "ID"},
		{Name: "PRIORITY", Align: tui.AlignRight},
		{Name: "PATTERNS", Align: tui.AlignRight},
		{Name: "NAME"},
	}, rows, 60)

	table := tui.NewTable(w, cols)
	table.WriteHeader()
	for _, row := range rows {
		table.WriteRow(row...)
	}
	return nil
}
