package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vineetdaniels2108/npi-data-dashboard/config"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/cache"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/registry"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/tabular"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/pipeline"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/usecase"
)

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	configFile        string
	logLevel          string
	logFormat         string
	outDir            string
	registryReference string
}

// app holds the state built once flags are parsed
type app struct {
	flags globalFlags
	cfg   *config.Config
	log   *zerolog.Logger
}

func newApp() *app {
	return &app{}
}

func (a *app) logger() *zerolog.Logger {
	if a.log == nil {
		return &log.Logger
	}
	return a.log
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "npimatch",
		Short: "Match practice names to NPI holders and validate the results",
		Long: `npimatch enriches provider alignment files with National Provider Identifiers,
matches practice names against a reference dataset, measures reference coverage
and validates fuzzy matches by identifier.

Every stage writes a timestamped run directory under the output root with a
manifest.yaml describing inputs, parameters and results.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default is ./npimatch.yaml)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format: auto, json, console")
	pf.StringVar(&a.flags.outDir, "out-dir", "", "output root for stage runs")
	pf.StringVar(&a.flags.registryReference, "registry-reference", "",
		"answer registry lookups from this complete dataset CSV instead of the live API")

	root.AddCommand(
		a.normalizeCommand(),
		a.enhanceCommand(),
		a.matchCommand(),
		a.coverageCommand(),
		a.validateCommand(),
		a.runCommand(),
		a.serveRegistryCommand(),
	)
	return root
}

// setup loads configuration, applies global flag overrides and builds the logger
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}

	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		cfg.Log.Format = a.flags.logFormat
	}
	if a.flags.outDir != "" {
		cfg.Output.Dir = a.flags.outDir
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logger, err := logging.New(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = &logger
	return nil
}

// revalidate re-checks configuration after command flag overrides
func (a *app) revalidate() error {
	if err := config.Validate(a.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// lookupRegistry returns the registry lookups go to: the offline reference
// index when --registry-reference is set, the live API otherwise.
func (a *app) lookupRegistry() (domain.RegistryClient, error) {
	if a.flags.registryReference != "" {
		reg, err := a.referenceRegistry(a.flags.registryReference)
		if err != nil {
			return nil, err
		}
		return reg, nil
	}

	rc := a.cfg.Registry
	return registry.NewClient(registry.ClientConfig{
		BaseURL:           rc.BaseURL,
		Version:           rc.Version,
		Timeout:           rc.Timeout,
		RequestsPerSecond: rc.RequestsPerSecond,
		Burst:             rc.Burst,
		MaxAttempts:       rc.MaxAttempts,
		Backoff:           rc.Backoff,
		ResultLimit:       rc.ResultLimit,
	}, *a.log), nil
}

func (a *app) referenceRegistry(path string) (*usecase.ReferenceRegistry, error) {
	table, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return usecase.NewReferenceRegistry(table, *a.log), nil
}

// runner builds a pipeline runner. Registry access is only set up for
// commands that make lookups.
func (a *app) runner(cmd *cobra.Command, lookups bool) (*pipeline.Runner, error) {
	deps := pipeline.Dependencies{Out: cmd.OutOrStdout()}
	if lookups {
		reg, err := a.lookupRegistry()
		if err != nil {
			return nil, err
		}
		deps.Registry = reg
		deps.Cache = cache.NewMemoryCache(a.cfg.Enhance.CacheTTL, 2*a.cfg.Enhance.CacheTTL)
	}
	return pipeline.NewRunner(a.cfg, deps, *a.log), nil
}

func (a *app) reportResult(cmd *cobra.Command, res *pipeline.StageResult) {
	a.log.Info().
		Str("stage", res.Stage).
		Str("run_dir", res.Dir).
		Int64("errors", res.Summary.Total()).
		Msg("stage finished")
	fmt.Fprintf(cmd.OutOrStdout(), "%s output: %s\n", res.Stage, res.Dir)
}
