package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineetdaniels2108/npi-data-dashboard/config"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/artifact"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/cache"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/infrastructure/tabular"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/usecase"
)

func testConfig(outDir string) *config.Config {
	return &config.Config{
		Output:   config.OutputConfig{Dir: outDir},
		Registry: config.RegistryConfig{Timeout: time.Second, MaxAttempts: 1, RequestsPerSecond: 100, Burst: 1},
		Enhance: config.EnhanceConfig{
			Concurrency:            2,
			CacheTTL:               time.Minute,
			ProviderFirstNameField: "PROVIDER_FIRST_NAME",
			ProviderLastNameField:  "PROVIDER_LAST_NAME",
			ProviderNPIField:       "NPI",
			PracticeNameField:      "Practice Name",
			PracticeNPIField:       "Practice NPI",
		},
		Match: config.MatchConfig{
			Threshold:          70,
			TargetField:        "Practice Name",
			TargetNPIField:     "NPI-2",
			DistinctCandidates: true,
		},
		Coverage: config.CoverageConfig{
			TopN: 10,
			Categories: []config.CategoryConfig{
				{Name: "NPI-1", IDField: "NPI-1", NameField: "NPI-1_Name", StateField: "NPI-1_State"},
				{Name: "NPI-2", IDField: "NPI-2", NameField: "NPI-2_Name", StateField: "NPI-2_State"},
			},
			ReferenceNameFields: []string{"organization_name", "first_name+last_name"},
			Overlaps:            []config.OverlapConfig{{Left: "NPI", Right: "NPI-1"}, {Left: "Practice NPI", Right: "NPI-2"}},
		},
		Validate: config.ValidateConfig{ResolveType: "NPI-2"},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func writeCSV(t *testing.T, path string, header []string, rows [][]string) string {
	t.Helper()
	require.NoError(t, tabular.WriteFile(path, header, rows))
	return path
}

func fixtures(t *testing.T) (alignment, reference string) {
	t.Helper()
	dir := t.TempDir()

	alignment = writeCSV(t, filepath.Join(dir, "alignment.csv"),
		[]string{"PROVIDER_FIRST_NAME", "PROVIDER_LAST_NAME", "NPI", "Practice Name", "Practice NPI"},
		[][]string{
			{"Amardeep", "Majhail", "", "City General Hospital", ""},
			{"Jane", "Doe", "1333333333", "Valley Medical Grp", "1444444444"},
			{"John", "Roe", "1043325483.0", "Sunrise Pediatrics", "nan"},
		})

	reference = writeCSV(t, filepath.Join(dir, "complete.csv"),
		[]string{"npi", "record_type", "organization_name", "first_name", "last_name", "state", "primary_hospital"},
		[][]string{
			{"1043325483", "provider", "", "Amardeep", "Majhail", "CA", "City General Hospital, Inc."},
			{"1568131365", "organization", "City General Hospital", "", "", "CA", ""},
			{"1333333333", "provider", "", "Jane", "Doe", "NY", "Valley Medical Group"},
			{"1444444444", "organization", "Valley Medical Group", "", "", "NY", ""},
		})
	return alignment, reference
}

func newTestRunner(t *testing.T, reference string) (*Runner, *bytes.Buffer) {
	t.Helper()
	refTable, err := tabular.ReadFile(reference)
	require.NoError(t, err)

	var out bytes.Buffer
	runner := NewRunner(testConfig(t.TempDir()), Dependencies{
		Registry: usecase.NewReferenceRegistry(refTable, zerolog.Nop()),
		Cache:    cache.NewMemoryCache(time.Minute, 0),
		Out:      &out,
	}, zerolog.Nop())
	return runner, &out
}

func TestRunAll(t *testing.T) {
	alignment, reference := fixtures(t)
	runner, out := newTestRunner(t, reference)

	results, err := runner.RunAll(context.Background(), RunInputs{Alignment: alignment, Reference: reference}, EnhanceOptions{})
	require.NoError(t, err)
	require.Len(t, results, 5)

	stages := make([]string, len(results))
	for i, r := range results {
		stages[i] = r.Stage
		assert.Equal(t, results[0].Manifest.PipelineID, r.Manifest.PipelineID)
		assert.FileExists(t, filepath.Join(r.Dir, artifact.ManifestFile))
	}
	assert.Equal(t, []string{StageNormalize, StageEnhance, StageMatch, StageCoverage, StageValidate}, stages)
	assert.NotEmpty(t, results[0].Manifest.PipelineID)

	t.Run("normalize nulls malformed identifiers", func(t *testing.T) {
		assert.Equal(t, int64(1), results[0].Summary.Count(domain.KindMalformedRecord))

		table, err := tabular.ReadFile(results[0].Output(FileNormalized))
		require.NoError(t, err)
		assert.Equal(t, "", table.Records[2].Get("NPI"))
		assert.Equal(t, "city general hospital", table.Records[0].Get("Practice Name_normalized"))
	})

	t.Run("enhance fills identifiers per role", func(t *testing.T) {
		table, err := tabular.ReadFile(results[1].Output(FileEnhanced))
		require.NoError(t, err)

		assert.Equal(t, "1043325483", table.Records[0].Get("NPI-1"))
		assert.Equal(t, "enhanced", table.Records[0].Get("NPI-1_Status"))
		assert.Equal(t, "1568131365", table.Records[0].Get("NPI-2"))
		assert.NotEmpty(t, table.Records[0].Get("NPI-2_Retrieved_At"))

		assert.Equal(t, "existing", table.Records[1].Get("NPI-1_Status"))
		assert.Equal(t, "1444444444", table.Records[1].Get("NPI-2"))

		assert.Equal(t, "unenhanced", table.Records[2].Get("NPI-1_Status"))
		assert.Equal(t, "not_found", table.Records[2].Get("NPI-2_Reason"))
		assert.Equal(t, "John", table.Records[2].Get("PROVIDER_FIRST_NAME"))

		assert.Equal(t, int64(2), results[1].Summary.Count(domain.KindLookupFailure))
		assert.Equal(t, "0.5", results[1].Manifest.Metrics["individual_success_rate"])
		assert.Equal(t, "0.5", results[1].Manifest.Metrics["organization_success_rate"])
	})

	t.Run("match keeps exact, fuzzy and unmatched rows", func(t *testing.T) {
		table, err := tabular.ReadFile(results[2].Output(FileMatches))
		require.NoError(t, err)
		assert.Equal(t, MatchHeader, table.Header)

		matches, err := DecodeMatches(table, domain.NewSummary())
		require.NoError(t, err)
		require.Len(t, matches, 5)

		assert.Equal(t, domain.MatchExact, matches[0].Kind)
		assert.Equal(t, domain.MatchExact, matches[1].Kind)
		assert.Equal(t, domain.MatchFuzzy, matches[2].Kind)
		assert.Equal(t, 90.0, matches[2].Score)
		assert.True(t, matches[2].Ambiguous)
		assert.Equal(t, domain.MatchNone, matches[4].Kind)
		assert.Equal(t, "Not Matched", table.Records[4].Get("Matching_Status"))

		assert.Equal(t, int64(1), results[2].Summary.Count(domain.KindAmbiguousMatch))
	})

	t.Run("coverage reports presence and overlaps", func(t *testing.T) {
		table, err := tabular.ReadFile(results[3].Output(FileCoverage))
		require.NoError(t, err)
		require.Len(t, table.Records, 4)
		for _, rec := range table.Records {
			assert.Equal(t, "Found", rec.Get("Coverage_Status"))
		}
		assert.Equal(t, "100", results[3].Manifest.Metrics["overall_coverage_percent"])

		records, err := tabular.ReadFile(results[3].Output(FileCoverageRecords))
		require.NoError(t, err)
		assert.Equal(t, "no_npi", records.Records[2].Get("NPI-1_Coverage"))
	})

	t.Run("validate splits agreeing and disagreeing fuzzy pairs", func(t *testing.T) {
		manifest := results[4].Manifest
		assert.Equal(t, "2", manifest.Metrics["fuzzy"])
		assert.Equal(t, "1", manifest.Metrics["agree"])
		assert.Equal(t, "1", manifest.Metrics["disagree"])
		assert.Equal(t, "0.5", manifest.Metrics["accuracy"])
		assert.NotEmpty(t, manifest.Notes)

		table, err := tabular.ReadFile(results[4].Output(FileValidation))
		require.NoError(t, err)
		assert.Equal(t, ValidationHeader, table.Header)
		require.Len(t, table.Records, 2)
		assert.Equal(t, "NPIs Don't Match", table.Records[0].Get("Validation_Status"))
		assert.Equal(t, "NPIs Match", table.Records[1].Get("Validation_Status"))
	})

	assert.Contains(t, out.String(), "unverifiable_pair")
}

func TestRunner_StagesResolveLatestInputs(t *testing.T) {
	alignment, reference := fixtures(t)
	runner, _ := newTestRunner(t, reference)
	ctx := context.Background()

	_, err := runner.ResolveInput("", StageEnhance, FileEnhanced)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	enhanced, err := runner.Enhance(ctx, alignment, EnhanceOptions{Sample: 2})
	require.NoError(t, err)

	path, err := runner.ResolveInput("", StageEnhance, FileEnhanced)
	require.NoError(t, err)
	assert.Equal(t, enhanced.Output(FileEnhanced), path)
	assert.Equal(t, "2", enhanced.Manifest.Parameters["sample"])

	table, err := tabular.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, table.Records, 2)

	explicit, err := runner.ResolveInput("given.csv", StageEnhance, FileEnhanced)
	require.NoError(t, err)
	assert.Equal(t, "given.csv", explicit)
}

func TestRunner_MissingInputIsFatal(t *testing.T) {
	_, reference := fixtures(t)
	runner, _ := newTestRunner(t, reference)

	_, err := runner.Coverage(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), reference)
	assert.ErrorIs(t, err, domain.ErrInputUnreadable)

	// the failed run is never picked up as a latest output
	_, err = runner.Store().Latest(StageCoverage)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunner_MissingTargetColumnIsFatal(t *testing.T) {
	alignment, reference := fixtures(t)
	runner, _ := newTestRunner(t, reference)
	runner.cfg.Match.TargetField = "Organization"

	_, err := runner.Match(context.Background(), alignment, reference)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
}

func TestRunner_EnhanceNeedsRegistry(t *testing.T) {
	alignment, _ := fixtures(t)
	runner := NewRunner(testConfig(t.TempDir()), Dependencies{}, zerolog.Nop())

	_, err := runner.Enhance(context.Background(), alignment, EnhanceOptions{})
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
}

func TestRunner_ValidateResolvesUnknownTargets(t *testing.T) {
	_, reference := fixtures(t)
	runner, _ := newTestRunner(t, reference)
	runner.cfg.Validate.ResolveUnknown = true

	matches := writeCSV(t, filepath.Join(t.TempDir(), "matches.csv"), MatchHeader, EncodeMatches([]domain.MatchCandidate{
		{TargetIndex: 0, TargetName: "Valley Medical Group", CandidateIndex: 3, CandidateName: "Valley Medical Grp", CandidateID: "1444444444", Kind: domain.MatchFuzzy, Score: 90},
	}))

	result, err := runner.Validate(context.Background(), matches)
	require.NoError(t, err)
	assert.Equal(t, "1", result.Manifest.Metrics["agree"])
	assert.Equal(t, "true", result.Manifest.Parameters["resolve_unknown"])
}
