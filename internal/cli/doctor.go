package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/rackbrain/internal/config"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/history"
	"github.com/mrz1836/rackbrain/internal/remote"
	"github.com/mrz1836/rackbrain/internal/rules"
	"github.com/mrz1836/rackbrain/internal/timer"
	"github.com/mrz1836/rackbrain/internal/tui"
)

// Doctor check statuses.
const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

// errDoctorFailed is returned when at least one check failed.
var errDoctorFailed = stderrors.New("doctor found problems")

// doctorCheck is one diagnostic result.
type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// pinger verifies database connectivity.
type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

// doctorDeps lets tests replace the database connection.
type doctorDeps struct {
	openDB func(cfg history.Config) (pinger, error)
}

// AddDoctorCommand adds the doctor command to the root command.
func AddDoctorCommand(root *cobra.Command, flags *GlobalFlags) {
	var checkDB bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and local tooling",
		Long: `Report where configuration was loaded from and whether every collaborator
rackbrain needs is reachable: rule files, the Jira PAT, the remote command
wrapper, the TestView cookie and the hyvetest database settings.

Examples:
  rackbrain doctor
  rackbrain doctor --check-db -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), flags, nil)
			if err != nil {
				return err
			}
			deps := doctorDeps{openDB: func(c history.Config) (pinger, error) {
				return history.Open(c, GetLogger())
			}}
			return runDoctor(cmd.Context(), os.Stdout, flags.Output, cfg, checkDB, deps)
		},
	}
	cmd.Flags().BoolVar(&checkDB, "check-db", false, "connect to the hyvetest database")

	root.AddCommand(cmd)
}

func runDoctor(ctx context.Context, w io.Writer, format string, cfg *config.Config, checkDB bool, deps doctorDeps) error {
	checks := doctorChecks(ctx, cfg, checkDB, deps)

	failed := false
	for _, c := range checks {
		if c.Status == checkFail {
			failed = true
		}
	}

	if format == OutputJSON {
		if err := tui.NewOutput(w, OutputJSON).JSON(map[string]any{"ok": !failed, "checks": checks}); err != nil {
			return err
		}
	} else {
		writeChecks(w, checks)
	}

	if failed {
		return errDoctorFailed
	}
	return nil
}

func doctorChecks(ctx context.Context, cfg *config.Config, checkDB bool, deps doctorDeps) []doctorCheck {
	source := cfg.Source
	if source == "" {
		source = "defaults only"
	}
	checks := []doctorCheck{
		{Name: "config", Status: checkOK, Detail: fmt.Sprintf("%s (base dir %s)", source, cfg.BaseDir)},
		rulesCheck(cfg),
		jiraCheck(cfg),
		{Name: "timer store", Status: checkOK, Detail: timer.ResolvePath(cfg.Timer.DBPath)},
		wrapperCheck(cfg),
		testviewCheck(cfg),
	}
	return append(checks, databaseCheck(ctx, cfg, checkDB, deps), cinderCheck(cfg))
}

func rulesCheck(cfg *config.Config) doctorCheck {
	c := doctorCheck{Name: "rules"}
	if len(cfg.Rules.Files) == 0 {
		c.Status, c.Detail = checkFail, "rules.files is empty"
		return c
	}
	loaded, err := rules.NewLoader(cfg.BaseDir).LoadFiles(cfg.Rules.Files)
	if err != nil {
		c.Status, c.Detail = checkFail, err.Error()
		return c
	}
	c.Status = checkOK
	c.Detail = fmt.Sprintf("%d rules from %d file(s)", len(loaded), len(cfg.Rules.Files))
	return c
}

func jiraCheck(cfg *config.Config) doctorCheck {
	c := doctorCheck{Name: "jira"}
	switch {
	case cfg.Jira.BaseURL == "":
		c.Status, c.Detail = checkFail, "jira.base_url is not set"
	case cfg.Jira.Token() == "":
		c.Status, c.Detail = checkFail, fmt.Sprintf("no PAT in jira.pat or $%s", cfg.Jira.PATEnv)
	default:
		c.Status = checkOK
		c.Detail = fmt.Sprintf("%s (PAT from %s)", cfg.Jira.BaseURL, cfg.Jira.TokenSource())
	}
	return c
}

func wrapperCheck(cfg *config.Config) doctorCheck {
	c := doctorCheck{Name: "remote wrapper"}
	if path := remote.FindWrapper(cfg.Remote.WrapperPath); path != "" {
		c.Status, c.Detail = checkOK, path
		return c
	}
	// Command steps fail without the wrapper; everything else still works.
	c.Status, c.Detail = checkWarn, errors.ErrRemoteWrapperMissing.Error()
	return c
}

func testviewCheck(cfg *config.Config) doctorCheck {
	c := doctorCheck{Name: "testview"}
	switch {
	case cfg.Testview.BaseURL == "":
		c.Status, c.Detail = checkWarn, "testview.base_url is not set"
	case cfg.Testview.CookieValue() == "":
		c.Status, c.Detail = checkWarn, fmt.Sprintf("no cookie in testview.cookie or $%s", cfg.Testview.CookieEnv)
	default:
		c.Status, c.Detail = checkOK, cfg.Testview.BaseURL
	}
	return c
}

func databaseCheck(ctx context.Context, cfg *config.Config, checkDB bool, deps doctorDeps) doctorCheck {
	c := doctorCheck{Name: "database"}
	hc := historyConfig(cfg.Database)
	if missing := hc.Missing(); len(missing) > 0 {
		c.Status = checkWarn
		c.Detail = "lookups disabled, missing " + strings.Join(missing, ", ")
		return c
	}
	target := fmt.Sprintf("%s@%s:%d/%s", hc.User, hc.Host, hc.Port, hc.Name)
	if !checkDB {
		c.Status, c.Detail = checkOK, target+" (not contacted)"
		return c
	}

	db, err := deps.openDB(hc)
	if err != nil {
		c.Status, c.Detail = checkFail, err.Error()
		return c
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(ctx); err != nil {
		c.Status, c.Detail = checkFail, err.Error()
		return c
	}
	c.Status, c.Detail = checkOK, target+" reachable"
	return c
}

// cinderCheck reports whether cinder verification reports can be built.
// Only cinder verification tickets need it, so gaps are warnings.
func cinderCheck(cfg *config.Config) doctorCheck {
	c := doctorCheck{Name: "cinder"}
	hc := historyConfig(cfg.Cinder.ResolvedDatabase(cfg.Database))
	switch {
	case strings.TrimSpace(cfg.Cinder.SeizoBaseURL) == "":
		c.Status, c.Detail = checkWarn, "reports disabled, cinder.seizo_base_url is not set (RACKBRAIN_SEIZO_BASE)"
	case len(hc.Missing()) > 0:
		c.Status, c.Detail = checkWarn, "reports disabled, missing outpost_fru database settings"
	default:
		c.Status = checkOK
		c.Detail = fmt.Sprintf("%s, outpost_fru via %s@%s/%s", cfg.Cinder.SeizoBaseURL, hc.User, hc.Host, hc.Name)
	}
	return c
}

func writeChecks(w io.Writer, checks []doctorCheck) {
	tui.CheckNoColor()
	s := tui.NewOutputStyles()
	for _, c := range checks {
		style := s.Success
		switch c.Status {
		case checkWarn:
			style = s.Warning
		case checkFail:
			style = s.Error
		}
		_, _ = fmt.Fprintf(w, "%s %-15s %s\n", style.Render(fmt.Sprintf("[%-4s]", c.Status)), c.Name, c.Detail)
	}
}
