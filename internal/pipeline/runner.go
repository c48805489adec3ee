// Package pipeline runs the matching stages over files: it reads stage inputs,
// calls the services, and writes versioned outputs with a manifest per run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/config"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/artifact"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/tabular"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/report"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/usecase"
)

// Stage names, also the stage directories under the output root
const (
	StageNormalize = "normalize"
	StageEnhance   = "enhance"
	StageMatch     = "match"
	StageCoverage  = "coverage"
	StageValidate  = "validate"
)

// Output file names
const (
	FileNormalized             = "normalized.csv"
	FileEnhanced               = "enhanced.csv"
	FileMatches                = "matches.csv"
	FileCoverage               = "coverage.csv"
	FileReferenceFrequency     = "reference_frequency.csv"
	FileReferenceNameFrequency = "reference_name_frequency.csv"
	FileCoverageRecords        = "coverage_records.csv"
	FileValidation             = "validation.csv"
	FileValidationBands        = "validation_bands.csv"
)

// Dependencies are the collaborators a runner needs besides configuration.
type Dependencies struct {
	// Registry answers enhancer lookups and validator resolution. Optional
	// for stages that make no lookups.
	Registry domain.RegistryClient

	// Cache is the within-run lookup cache. Optional.
	Cache domain.LookupCache

	// Out receives the end-of-stage summary tables. Defaults to io.Discard.
	Out io.Writer
}

// Runner executes stages against files.
type Runner struct {
	cfg      *config.Config
	store    *artifact.Store
	registry domain.RegistryClient
	cache    domain.LookupCache
	out      io.Writer
	logger   zerolog.Logger
}

// StageResult describes one finished stage run.
type StageResult struct {
	Stage    string
	Dir      string
	Outputs  map[string]string
	Summary  *domain.Summary
	Manifest *artifact.Manifest
}

// Output returns the path of a named output file.
func (r *StageResult) Output(name string) string {
	return r.Outputs[name]
}

// NewRunner creates a runner writing under cfg.Output.Dir.
func NewRunner(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Runner {
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		cfg:      cfg,
		store:    artifact.NewStore(cfg.Output.Dir),
		registry: deps.Registry,
		cache:    deps.Cache,
		out:      out,
		logger:   logger,
	}
}

// Store returns the artifact store used by the runner.
func (r *Runner) Store() *artifact.Store {
	return r.store
}

// ResolveInput returns path, or the named file of the newest finished run of
// stage when path is empty.
func (r *Runner) ResolveInput(path, stage, file string) (string, error) {
	if path != "" {
		return path, nil
	}
	latest, err := r.store.LatestFile(stage, file)
	if err != nil {
		return "", fmt.Errorf("no input given and no previous %s output: %w", stage, err)
	}
	return latest, nil
}

// stageRun bundles the state shared by one stage execution.
type stageRun struct {
	run     *artifact.Run
	summary *domain.Summary
	result  *StageResult
	logger  zerolog.Logger
}

func (r *Runner) begin(stage, pipelineID string) (*stageRun, error) {
	run, err := r.store.Create(stage, pipelineID)
	if err != nil {
		return nil, err
	}
	logger := r.logger.With().Str("stage", stage).Str("run_id", run.ID()).Logger()
	logger.Info().Str("dir", run.Dir).Msg("stage started")
	return &stageRun{
		run:     run,
		summary: domain.NewSummary(),
		result:  &StageResult{Stage: stage, Dir: run.Dir, Outputs: map[string]string{}},
		logger:  logger,
	}, nil
}

func (s *stageRun) write(name string, header []string, rows [][]string) error {
	path, err := s.run.WriteTable(name, header, rows)
	if err != nil {
		return err
	}
	s.result.Outputs[name] = path
	return nil
}

func (r *Runner) finish(s *stageRun) (*StageResult, error) {
	manifest, err := s.run.Finish(s.summary)
	if err != nil {
		return nil, err
	}
	s.result.Summary = s.summary
	s.result.Manifest = manifest

	for _, kind := range domain.ErrorKinds {
		if n := s.summary.Count(kind); n > 0 {
			s.logger.Warn().Str("kind", string(kind)).Int64("count", n).Msg("stage errors")
		}
	}
	s.logger.Info().Int64("errors", s.summary.Total()).Msg("stage finished")

	if err := report.Errors(r.out, s.summary); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render error summary")
	}
	return s.result, nil
}

func readInput(s *stageRun, role, path string) (*domain.Table, error) {
	s.run.AddInput(role, path)
	table, err := tabular.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s input: %w", role, err)
	}
	s.logger.Info().Str("input", role).Str("path", path).Int("records", len(table.Records)).Msg("input loaded")
	return table, nil
}

// NormalizeOptions selects the columns of the normalize stage. Empty lists use
// the configured name and identifier columns.
type NormalizeOptions struct {
	NameFields []string
	IDFields   []string
}

// Normalize writes a normalized copy of the input file.
func (r *Runner) Normalize(ctx context.Context, input string, opts NormalizeOptions) (*StageResult, error) {
	return r.normalize(ctx, input, opts, "")
}

func (r *Runner) normalize(ctx context.Context, input string, opts NormalizeOptions, pipelineID string) (*StageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := r.begin(StageNormalize, pipelineID)
	if err != nil {
		return nil, err
	}

	table, err := readInput(s, "input", input)
	if err != nil {
		return nil, err
	}

	nameFields := opts.NameFields
	if len(nameFields) == 0 {
		nameFields = distinct(r.cfg.Match.TargetField, r.cfg.Enhance.PracticeNameField,
			r.cfg.Enhance.ProviderFirstNameField, r.cfg.Enhance.ProviderLastNameField)
	}
	idFields := opts.IDFields
	if len(idFields) == 0 {
		idFields = distinct(r.cfg.Enhance.ProviderNPIField, r.cfg.Enhance.PracticeNPIField)
	}
	s.run.SetParameter("name_fields", strings.Join(nameFields, ","))
	s.run.SetParameter("identifier_fields", strings.Join(idFields, ","))

	normalizer := usecase.NewNormalizer(usecase.NormalizerConfig{NameFields: nameFields, IdentifierFields: idFields}, s.logger)
	normalized := normalizer.NormalizeTable(table, s.summary)

	if err := s.write(FileNormalized, normalized.Header, normalized.Rows()); err != nil {
		return nil, err
	}
	s.run.SetMetric("records", strconv.Itoa(len(normalized.Records)))
	return r.finish(s)
}

// EnhanceOptions tunes one enhance run on top of configuration.
type EnhanceOptions struct {
	Sample int
	Force  bool
}

// Enhance looks up missing identifiers for every record of the input file.
func (r *Runner) Enhance(ctx context.Context, input string, opts EnhanceOptions) (*StageResult, error) {
	return r.enhance(ctx, input, opts, "")
}

func (r *Runner) enhance(ctx context.Context, input string, opts EnhanceOptions, pipelineID string) (*StageResult, error) {
	if r.registry == nil {
		return nil, fmt.Errorf("%w: no registry configured", domain.ErrRegistryUnavailable)
	}
	s, err := r.begin(StageEnhance, pipelineID)
	if err != nil {
		return nil, err
	}

	table, err := readInput(s, "input", input)
	if err != nil {
		return nil, err
	}

	cfg := r.cfg.Enhance
	sample := cfg.Sample
	if opts.Sample > 0 {
		sample = opts.Sample
	}
	table = table.Limit(sample)

	roles := []usecase.RoleSpec{
		{
			Type:           domain.HolderIndividual,
			IDField:        cfg.ProviderNPIField,
			FirstNameField: cfg.ProviderFirstNameField,
			LastNameField:  cfg.ProviderLastNameField,
		},
		{
			Type:      domain.HolderOrganization,
			IDField:   cfg.PracticeNPIField,
			NameField: cfg.PracticeNameField,
		},
	}

	enhancer := usecase.NewEnhancementService(r.registry, r.cache, usecase.EnhancementConfig{
		Roles:       roles,
		Concurrency: cfg.Concurrency,
		CallTimeout: r.cfg.Registry.Timeout,
		CacheTTL:    cfg.CacheTTL,
		Force:       cfg.Force || opts.Force,
		FlagField:   cfg.FlagField,
	}, s.logger)

	s.run.SetParameter("concurrency", strconv.Itoa(cfg.Concurrency))
	s.run.SetParameter("timeout", r.cfg.Registry.Timeout.String())
	s.run.SetParameter("requests_per_second", formatFloat(r.cfg.Registry.RequestsPerSecond))
	s.run.SetParameter("force", strconv.FormatBool(cfg.Force || opts.Force))
	s.run.SetParameter("sample", strconv.Itoa(sample))

	result, err := enhancer.Enhance(ctx, table.Records, s.summary)
	if err != nil {
		return nil, err
	}

	enhanced := EncodeEnhanced(table, result)
	if err := s.write(FileEnhanced, enhanced.Header, enhanced.Rows()); err != nil {
		return nil, err
	}

	for _, st := range result.Stats {
		prefix := st.Role.Label()
		s.run.SetMetric(prefix+"_enhanced", strconv.Itoa(st.Enhanced))
		s.run.SetMetric(prefix+"_attempted", strconv.Itoa(st.Attempted()))
		s.run.SetMetric(prefix+"_success_rate", formatFloat(st.SuccessRate()))
	}
	s.run.SetMetric("lookups", strconv.FormatInt(result.Lookups, 10))
	s.run.SetMetric("cache_hits", strconv.FormatInt(result.CacheHits, 10))
	s.run.SetMetric("query_started", result.QueryStarted.Format(time.RFC3339))
	s.run.SetMetric("query_finished", result.QueryFinished.Format(time.RFC3339))
	s.run.AddNote("registry data is re-queried on every run; enhanced values carry their retrieval time")

	if err := report.Enhancement(r.out, result); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render enhancement summary")
	}
	return r.finish(s)
}

// Match pairs target names with candidate names.
func (r *Runner) Match(ctx context.Context, targetsPath, candidatesPath string) (*StageResult, error) {
	return r.match(ctx, targetsPath, candidatesPath, "")
}

func (r *Runner) match(ctx context.Context, targetsPath, candidatesPath, pipelineID string) (*StageResult, error) {
	s, err := r.begin(StageMatch, pipelineID)
	if err != nil {
		return nil, err
	}

	targets, err := readInput(s, "targets", targetsPath)
	if err != nil {
		return nil, err
	}
	candidates, err := readInput(s, "candidates", candidatesPath)
	if err != nil {
		return nil, err
	}

	cfg := r.cfg.Match
	if err := targets.RequireColumns(cfg.TargetField); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	targetIDField := cfg.TargetNPIField
	if targetIDField != "" && !targets.HasColumn(targetIDField) {
		s.logger.Warn().Str("field", targetIDField).Msg("target identifier column not present")
		targetIDField = ""
	}

	nameFields := usecase.CandidateNameColumns(candidates, cfg.CandidateFields)
	if len(nameFields) == 0 {
		return nil, fmt.Errorf("candidates: %w: no practice or organization name column", domain.ErrMissingColumn)
	}
	if err := candidates.RequireColumns(nameFields...); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	idFields := usecase.IdentifierColumns(candidates, cfg.CandidateNPIFields)

	s.run.SetParameter("threshold", formatFloat(cfg.Threshold))
	s.run.SetParameter("target_field", cfg.TargetField)
	s.run.SetParameter("target_npi_field", targetIDField)
	s.run.SetParameter("candidate_fields", strings.Join(nameFields, ","))
	s.run.SetParameter("candidate_npi_fields", strings.Join(idFields, ","))
	s.run.SetParameter("distinct_candidates", strconv.FormatBool(cfg.DistinctCandidates))
	s.run.SetParameter("strip_legal_suffixes", strconv.FormatBool(cfg.StripLegalSuffixes))

	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		Threshold:          cfg.Threshold,
		StripLegalSuffixes: cfg.StripLegalSuffixes,
		DistinctCandidates: cfg.DistinctCandidates,
		EnableDebugLogging: s.logger.GetLevel() <= zerolog.DebugLevel,
	}, s.logger)

	targetInputs := usecase.TargetInputs(s.logger, targets, cfg.TargetField, targetIDField, s.summary)
	candidateInputs := usecase.CandidateInputs(s.logger, candidates, nameFields, idFields, s.summary)

	matches, err := matcher.Match(ctx, targetInputs, candidateInputs, s.summary)
	if err != nil {
		return nil, err
	}

	if err := s.write(FileMatches, MatchHeader, EncodeMatches(matches)); err != nil {
		return nil, err
	}
	s.run.SetMetric("targets", strconv.Itoa(len(targetInputs)))
	s.run.SetMetric("candidates", strconv.Itoa(len(candidateInputs)))
	s.run.SetMetric("rows", strconv.Itoa(len(matches)))

	if err := report.Matches(r.out, matches, len(targetInputs)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render match summary")
	}
	return r.finish(s)
}

// Coverage compares the analyzed file's identifiers with the reference file.
func (r *Runner) Coverage(ctx context.Context, analyzedPath, referencePath string) (*StageResult, error) {
	return r.coverage(ctx, analyzedPath, referencePath, "")
}

func (r *Runner) coverage(ctx context.Context, analyzedPath, referencePath, pipelineID string) (*StageResult, error) {
	s, err := r.begin(StageCoverage, pipelineID)
	if err != nil {
		return nil, err
	}

	analyzed, err := readInput(s, "analyzed", analyzedPath)
	if err != nil {
		return nil, err
	}
	reference, err := readInput(s, "reference", referencePath)
	if err != nil {
		return nil, err
	}

	cfg := r.cfg.Coverage
	categories := make([]usecase.CoverageCategory, len(cfg.Categories))
	for i, c := range cfg.Categories {
		categories[i] = usecase.CoverageCategory{Name: c.Name, IDField: c.IDField, NameField: c.NameField, StateField: c.StateField}
	}
	overlaps := make([]usecase.OverlapPair, len(cfg.Overlaps))
	for i, o := range cfg.Overlaps {
		overlaps[i] = usecase.OverlapPair{Left: o.Left, Right: o.Right}
	}

	s.run.SetParameter("top_n", strconv.Itoa(cfg.TopN))
	s.run.SetParameter("reference_npi_fields", strings.Join(cfg.ReferenceNPIFields, ","))
	s.run.SetParameter("reference_name_fields", strings.Join(cfg.ReferenceNameFields, ","))

	analyzer := usecase.NewCoverageService(usecase.CoverageConfig{
		TopN:                cfg.TopN,
		Categories:          categories,
		ReferenceIDFields:   cfg.ReferenceNPIFields,
		ReferenceNameFields: cfg.ReferenceNameFields,
		Overlaps:            overlaps,
	}, s.logger)

	result, err := analyzer.Analyze(ctx, analyzed, reference, s.summary)
	if err != nil {
		return nil, err
	}

	if err := s.write(FileCoverage, CoverageHeader, EncodeCoverage(result)); err != nil {
		return nil, err
	}
	if err := s.write(FileReferenceFrequency, FrequencyHeader, EncodeFrequencies(result.ReferenceByIdentifier)); err != nil {
		return nil, err
	}
	if err := s.write(FileReferenceNameFrequency, FrequencyHeader, EncodeFrequencies(result.ReferenceByName)); err != nil {
		return nil, err
	}
	header, rows := EncodeRecordCoverage(result)
	if err := s.write(FileCoverageRecords, header, rows); err != nil {
		return nil, err
	}

	for _, c := range result.Categories {
		s.run.SetMetric(c.Category+"_coverage_percent", formatFloat(c.CoveragePercent))
		s.run.SetMetric(c.Category+"_top_n_coverage_percent", formatFloat(c.TopNCoveragePercent))
		s.run.SetMetric(c.Category+"_concentration", string(c.Concentration))
	}
	s.run.SetMetric("overall_coverage_percent", formatFloat(result.OverallCoveragePercent))
	s.run.SetMetric("reference_unique", strconv.Itoa(result.ReferenceUnique))

	if err := report.Coverage(r.out, result); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render coverage summary")
	}
	return r.finish(s)
}

// Validate checks the fuzzy rows of a matches file against identifiers.
func (r *Runner) Validate(ctx context.Context, matchesPath string) (*StageResult, error) {
	return r.validate(ctx, matchesPath, "")
}

func (r *Runner) validate(ctx context.Context, matchesPath, pipelineID string) (*StageResult, error) {
	s, err := r.begin(StageValidate, pipelineID)
	if err != nil {
		return nil, err
	}

	table, err := readInput(s, "matches", matchesPath)
	if err != nil {
		return nil, err
	}
	matches, err := DecodeMatches(table, s.summary)
	if err != nil {
		return nil, fmt.Errorf("matches input: %w", err)
	}

	cfg := r.cfg.Validate
	resolveType := domain.ParseHolderType(cfg.ResolveType)
	s.run.SetParameter("resolve_unknown", strconv.FormatBool(cfg.ResolveUnknown))
	s.run.SetParameter("resolve_type", string(resolveType))

	validator := usecase.NewValidationService(r.registry, usecase.ValidationConfig{
		ResolveUnknown: cfg.ResolveUnknown,
		ResolveType:    resolveType,
	}, s.logger)

	result, err := validator.Validate(ctx, matches, s.summary)
	if err != nil {
		return nil, err
	}

	if err := s.write(FileValidation, ValidationHeader, EncodeValidation(result.Verdicts)); err != nil {
		return nil, err
	}
	if err := s.write(FileValidationBands, BandHeader, EncodeBands(result.Bands)); err != nil {
		return nil, err
	}

	s.run.SetMetric("fuzzy", strconv.Itoa(result.TotalFuzzy))
	s.run.SetMetric("verified", strconv.Itoa(result.Verified))
	s.run.SetMetric("agree", strconv.Itoa(result.Agree))
	s.run.SetMetric("disagree", strconv.Itoa(result.Disagree))
	s.run.SetMetric("unverifiable", strconv.Itoa(result.Unverifiable))
	s.run.SetMetric("accuracy", formatFloat(result.Accuracy))
	s.run.SetMetric("accuracy_defined", strconv.FormatBool(result.AccuracyDefined))
	s.run.AddNote(report.Verdict(result))

	if err := report.Validation(r.out, result); err != nil {
		s.logger.Warn().Err(err).Msg("failed to render validation summary")
	}
	return r.finish(s)
}

// RunInputs names the source files of a full run. Candidates defaults to Reference.
type RunInputs struct {
	Alignment  string
	Reference  string
	Candidates string
}

// RunAll chains normalize, enhance, match, coverage and validate under one pipeline id.
// It stops at the first stage that fails.
func (r *Runner) RunAll(ctx context.Context, in RunInputs, opts EnhanceOptions) ([]*StageResult, error) {
	pipelineID := uuid.NewString()
	logger := r.logger.With().Str("pipeline_id", pipelineID).Logger()
	logger.Info().Str("alignment", in.Alignment).Str("reference", in.Reference).Msg("pipeline started")

	candidates := in.Candidates
	if candidates == "" {
		candidates = in.Reference
	}

	var results []*StageResult
	step := func(res *StageResult, err error) error {
		if err != nil {
			return err
		}
		results = append(results, res)
		return nil
	}

	normalized, err := r.normalize(ctx, in.Alignment, NormalizeOptions{}, pipelineID)
	if err := step(normalized, err); err != nil {
		return results, fmt.Errorf("%s: %w", StageNormalize, err)
	}

	enhanced, err := r.enhance(ctx, normalized.Output(FileNormalized), opts, pipelineID)
	if err := step(enhanced, err); err != nil {
		return results, fmt.Errorf("%s: %w", StageEnhance, err)
	}

	matched, err := r.match(ctx, enhanced.Output(FileEnhanced), candidates, pipelineID)
	if err := step(matched, err); err != nil {
		return results, fmt.Errorf("%s: %w", StageMatch, err)
	}

	covered, err := r.coverage(ctx, enhanced.Output(FileEnhanced), in.Reference, pipelineID)
	if err := step(covered, err); err != nil {
		return results, fmt.Errorf("%s: %w", StageCoverage, err)
	}

	validated, err := r.validate(ctx, matched.Output(FileMatches), pipelineID)
	if err := step(validated, err); err != nil {
		return results, fmt.Errorf("%s: %w", StageValidate, err)
	}

	logger.Info().Int("stages", len(results)).Msg("pipeline finished")
	return results, nil
}

func distinct(values ...string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
