package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpDelivery "github.com/vineetdaniels2108/npi-data-dashboard/internal/delivery/http"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/pipeline"
)

func (a *app) normalizeCommand() *cobra.Command {
	var (
		input string
		opts  pipeline.NormalizeOptions
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Clean name and identifier columns of a CSV file",
		Example: `  npimatch normalize --input alignment.csv
  npimatch normalize --input alignment.csv --name-fields "Practice Name"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := a.runner(cmd, false)
			if err != nil {
				return err
			}
			res, err := runner.Normalize(cmd.Context(), input, opts)
			if err != nil {
				return err
			}
			a.reportResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CSV file to normalize")
	cmd.Flags().StringSliceVar(&opts.NameFields, "name-fields", nil, "name columns (default from config)")
	cmd.Flags().StringSliceVar(&opts.IDFields, "id-fields", nil, "identifier columns (default from config)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) enhanceCommand() *cobra.Command {
	var (
		input string
		opts  pipeline.EnhanceOptions
	)

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Look up missing NPIs in the registry",
		Long: `Look up missing provider and practice NPIs. Without --input the newest
normalize output is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := a.runner(cmd, true)
			if err != nil {
				return err
			}
			path, err := runner.ResolveInput(input, pipeline.StageNormalize, pipeline.FileNormalized)
			if err != nil {
				return err
			}
			res, err := runner.Enhance(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			a.reportResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CSV file to enhance (default: latest normalize output)")
	cmd.Flags().IntVar(&opts.Sample, "sample", 0, "only enhance the first N records")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "look up records that already carry an NPI")
	return cmd
}

func (a *app) matchCommand() *cobra.Command {
	var (
		targets    string
		candidates string
		threshold  float64
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match target practice names against candidate names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("threshold") {
				a.cfg.Match.Threshold = threshold
				if err := a.revalidate(); err != nil {
					return err
				}
			}
			runner, err := a.runner(cmd, false)
			if err != nil {
				return err
			}
			path, err := runner.ResolveInput(targets, pipeline.StageEnhance, pipeline.FileEnhanced)
			if err != nil {
				return err
			}
			res, err := runner.Match(cmd.Context(), path, candidates)
			if err != nil {
				return err
			}
			a.reportResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&targets, "targets", "", "CSV file with target names (default: latest enhance output)")
	cmd.Flags().StringVar(&candidates, "candidates", "", "CSV file with candidate names")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score 0-100 (default from config)")
	_ = cmd.MarkFlagRequired("candidates")
	return cmd
}

func (a *app) coverageCommand() *cobra.Command {
	var (
		analyzed  string
		reference string
		topN      int
	)

	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Measure how many analyzed identifiers appear in the reference dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("top-n") {
				a.cfg.Coverage.TopN = topN
				if err := a.revalidate(); err != nil {
					return err
				}
			}
			runner, err := a.runner(cmd, false)
			if err != nil {
				return err
			}
			path, err := runner.ResolveInput(analyzed, pipeline.StageEnhance, pipeline.FileEnhanced)
			if err != nil {
				return err
			}
			res, err := runner.Coverage(cmd.Context(), path, reference)
			if err != nil {
				return err
			}
			a.reportResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&analyzed, "analyzed", "", "CSV file to analyze (default: latest enhance output)")
	cmd.Flags().StringVar(&reference, "reference", "", "complete dataset CSV")
	cmd.Flags().IntVar(&topN, "top-n", 0, "number of top identifiers to report (default from config)")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	var (
		matches        string
		resolveUnknown bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check fuzzy matches by comparing identifiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("resolve-unknown") {
				a.cfg.Validate.ResolveUnknown = resolveUnknown
			}
			runner, err := a.runner(cmd, a.cfg.Validate.ResolveUnknown)
			if err != nil {
				return err
			}
			path, err := runner.ResolveInput(matches, pipeline.StageMatch, pipeline.FileMatches)
			if err != nil {
				return err
			}
			res, err := runner.Validate(cmd.Context(), path)
			if err != nil {
				return err
			}
			a.reportResult(cmd, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&matches, "matches", "", "match results CSV (default: latest match output)")
	cmd.Flags().BoolVar(&resolveUnknown, "resolve-unknown", false, "look up identifiers missing from match rows")
	return cmd
}

func (a *app) runCommand() *cobra.Command {
	var (
		in   pipeline.RunInputs
		opts pipeline.EnhanceOptions
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run normalize, enhance, match, coverage and validate in order",
		Example: `  npimatch run --alignment alignment.csv --reference complete.csv
  npimatch run --alignment alignment.csv --reference complete.csv --registry-reference complete.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := a.runner(cmd, true)
			if err != nil {
				return err
			}
			results, err := runner.RunAll(cmd.Context(), in, opts)
			for _, res := range results {
				a.reportResult(cmd, res)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&in.Alignment, "alignment", "", "provider alignment CSV")
	cmd.Flags().StringVar(&in.Reference, "reference", "", "complete dataset CSV")
	cmd.Flags().StringVar(&in.Candidates, "candidates", "", "candidate names CSV (default: --reference)")
	cmd.Flags().IntVar(&opts.Sample, "sample", 0, "only enhance the first N records")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "look up records that already carry an NPI")
	_ = cmd.MarkFlagRequired("alignment")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func (a *app) serveRegistryCommand() *cobra.Command {
	var (
		reference string
		port      string
	)

	cmd := &cobra.Command{
		Use:   "serve-registry",
		Short: "Serve a complete dataset through the NPI Registry API",
		Long: `Serve a complete dataset CSV on the NPI Registry API search path so the
enhancer can run against it by pointing registry.base_url at this server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				a.cfg.Server.Port = port
			}
			reg, err := a.referenceRegistry(reference)
			if err != nil {
				return err
			}

			handler := httpDelivery.NewHandler(reg, *a.log)
			router := httpDelivery.SetupRouter(a.cfg, handler, *a.log)

			return serve(cmd.Context(), a, &http.Server{
				Addr:              ":" + a.cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}, reg.Size())
		},
	}

	cmd.Flags().StringVar(&reference, "reference", "", "complete dataset CSV")
	cmd.Flags().StringVar(&port, "port", "", "listen port (default from config)")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

// serve runs srv until ctx is canceled, then shuts it down
func serve(ctx context.Context, a *app, srv *http.Server, holders int) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Int("holders", holders).Msg("registry server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("registry server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.log.Info().Msg("shutting down registry server")
	return srv.Shutdown(shutdownCtx)
}
