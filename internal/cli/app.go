package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mrz1836/rackbrain/internal/audit"
	"github.com/mrz1836/rackbrain/internal/cinder"
	"github.com/mrz1836/rackbrain/internal/clock"
	"github.com/mrz1836/rackbrain/internal/config"
	"github.com/mrz1836/rackbrain/internal/domain"
	"github.com/mrz1836/rackbrain/internal/enrich"
	"github.com/mrz1836/rackbrain/internal/errors"
	"github.com/mrz1836/rackbrain/internal/history"
	"github.com/mrz1836/rackbrain/internal/jira"
	"github.com/mrz1836/rackbrain/internal/processor"
	"github.com/mrz1836/rackbrain/internal/remote"
	"github.com/mrz1836/rackbrain/internal/render"
	"github.com/mrz1836/rackbrain/internal/rules"
	"github.com/mrz1836/rackbrain/internal/steps"
	"github.com/mrz1836/rackbrain/internal/testview"
	"github.com/mrz1836/rackbrain/internal/timer"
)

// app holds the production collaborators built from configuration.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	rules   []domain.Rule
	jira    *jira.Client
	timers  *timer.Store
	history *history.Client
	proc    *processor.Processor

	closers []func() error
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig(ctx context.Context, flags *GlobalFlags, overrides *config.Config) (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(ctx, flags.Config, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadRules loads every configured rule file in order.
func loadRules(cfg *config.Config) ([]domain.Rule, error) {
	if len(cfg.Rules.Files) == 0 {
		return nil, errors.Wrap(errors.ErrConfigInvalidRules, "no rules files configured under rules.files")
	}
	return rules.NewLoader(cfg.BaseDir).LoadFiles(cfg.Rules.Files)
}

// openTimers opens the timer store at the configured location.
func openTimers(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*timer.Store, error) {
	store, err := timer.Open(ctx, timer.ResolvePath(cfg.Timer.DBPath), timer.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open timer store: %w", err)
	}
	return store, nil
}

// historyConfig maps a database section onto the lookup settings.
func historyConfig(db config.DatabaseConfig) history.Config {
	return history.Config{
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		Name:     db.Name,
		Timeout:  db.Timeout,
	}
}

// newCinderReporter builds the cinder report adapter. It shares the
// history client unless the cinder section names another database.
func (a *app) newCinderReporter() (*cinder.Reporter, error) {
	cfg := a.cfg
	logger := a.logger.With().Str("component", "cinder").Logger()

	fru := a.history
	if hc := historyConfig(cfg.Cinder.ResolvedDatabase(cfg.Database)); hc != historyConfig(cfg.Database) {
		own, err := history.Open(hc, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, own.Close)
		fru = own
	}

	return cinder.New(cinder.Options{
		BaseURL:        cfg.Cinder.SeizoBaseURL,
		ListPath:       cfg.Cinder.ListPath,
		ExecPath:       cfg.Cinder.ExecPath,
		Timeout:        cfg.Cinder.Timeout,
		MaxReportChars: cfg.Cinder.MaxReportChars,
		FRU:            fru,
		Logger:         logger,
	}), nil
}

// processorConfig maps the processing section onto the workflow policy.
func processorConfig(cfg *config.Config) processor.Config {
	p := cfg.Processing
	return processor.Config{
		MinConfidence:                p.MinConfidence,
		MaxSLTAttempts:               p.MaxSLTAttempts,
		SameFailureThreshold:         p.SameFailureThreshold,
		RequiredCombinedTextContains: p.RequiredCombinedTextContains,
		AllowedStatuses:              p.AllowedStatuses,
		TransitionTo:                 p.TransitionTo,
		MyselfAssignee:               p.MyselfAssignee,
		RandomAssignees:              p.RandomAssignees,
		RepairReleaseAssignees:       p.RepairReleaseAssignees,
	}
}

// newApp wires every collaborator of the processor. The caller must Close
// the returned app.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if a.rules, err = loadRules(cfg); err != nil {
		return nil, err
	}
	logger.Info().Int("rules", len(a.rules)).Strs("files", cfg.Rules.Files).Msg("rules loaded")

	a.jira, err = jira.New(jira.Options{
		BaseURL: cfg.Jira.BaseURL,
		PAT:     cfg.Jira.Token(),
		Timeout: cfg.Jira.Timeout,
		Logger:  logger.With().Str("component", "jira").Logger(),
	})
	if err != nil {
		return nil, err
	}

	if a.timers, err = openTimers(ctx, cfg, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.timers.Close)

	if a.history, err = history.Open(historyConfig(cfg.Database), logger.With().Str("component", "history").Logger()); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.history.Close)

	runner := remote.NewRunner(remote.Options{
		WrapperPath: cfg.Remote.WrapperPath,
		RunnerPath:  cfg.Remote.RunnerPath,
		Timeout:     cfg.Remote.Timeout,
		Logger:      logger.With().Str("component", "remote").Logger(),
	})

	tvLogger := logger.With().Str("component", "testview").Logger()
	tvClient := testview.New(testview.Options{
		BaseURL:   cfg.Testview.BaseURL,
		Cookie:    cfg.Testview.CookieValue(),
		Timeout:   cfg.Testview.Timeout,
		VerifyTLS: cfg.Testview.VerifyTLS,
		Logger:    tvLogger,
	})

	reporter, err := a.newCinderReporter()
	if err != nil {
		return nil, err
	}

	deps := processor.Deps{
		Jira:     a.jira,
		Timers:   a.timers,
		Enricher: &enrich.Builder{History: a.history, Remote: runner, Logger: logger},
		Steps:    steps.NewExecutor(runner, logger.With().Str("component", "steps").Logger()),
		Renderer: render.New(render.Options{
			Signature: cfg.Processing.Signature,
			Exempt:    cfg.Processing.SignatureExemptRules,
		}),
		Testview: testview.NewService(a.history, tvClient, tvLogger),
		Cinder:   reporter,
	}

	clk := clock.RealClock{}
	if cfg.Audit.Enabled {
		plog, perr := audit.OpenProcessingLog(cfg.Audit.LogDir, clk, logger)
		if perr != nil {
			return nil, perr
		}
		a.closers = append(a.closers, plog.Close)
		deps.Audit = plog
	}
	if cfg.Audit.HistoryEnabled {
		matches, merr := audit.NewMatchHistory(cfg.Audit.LogDir, cfg.Audit.HistoryIncludeDryRuns, clk)
		if merr != nil {
			return nil, merr
		}
		deps.Matches = matches
	}

	if a.proc, err = processor.New(deps, processorConfig(cfg), logger); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the app's resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return stderrors.Join(errs...)
}
