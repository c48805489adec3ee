package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, []string{"Name", "Count"}, [][]string{{"alpha", "1"}, {"beta", "22"}}, 1))

	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "22")
}

func TestErrors(t *testing.T) {
	summary := domain.NewSummary()
	summary.Add(domain.KindLookupFailure, 3)

	var buf bytes.Buffer
	require.NoError(t, Errors(&buf, summary))
	assert.Contains(t, buf.String(), "lookup_failure")
	assert.Contains(t, buf.String(), "3")
}

func TestMatches_CountsMatchedTargetsOnce(t *testing.T) {
	matches := []domain.MatchCandidate{
		{TargetIndex: 0, Kind: domain.MatchExact, Score: 100},
		{TargetIndex: 0, Kind: domain.MatchExact, Score: 100},
		{TargetIndex: 1, Kind: domain.MatchNone, CandidateIndex: domain.NoCandidate},
		{TargetIndex: 2, Kind: domain.MatchFuzzy, Score: 82},
	}

	var buf bytes.Buffer
	require.NoError(t, Matches(&buf, matches, 3))

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "matched targets") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, "2")
	assert.NotContains(t, line, "3")
}

func TestValidation_FullPrecisionAccuracy(t *testing.T) {
	r := &domain.ValidationReport{TotalFuzzy: 1000, Verified: 1000, Agree: 1, Disagree: 999, Accuracy: 0.001, AccuracyDefined: true}

	var buf bytes.Buffer
	require.NoError(t, Validation(&buf, r))

	assert.Contains(t, buf.String(), "0.001 (1/1000)")
	assert.Contains(t, buf.String(), "unreliable")
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name     string
		report   domain.ValidationReport
		contains string
	}{
		{"undefined", domain.ValidationReport{}, "candidates only"},
		{"reliable", domain.ValidationReport{Accuracy: 0.97, AccuracyDefined: true}, "spot checks"},
		{"review", domain.ValidationReport{Accuracy: 0.6, AccuracyDefined: true}, "manual review"},
		{"unreliable", domain.ValidationReport{Accuracy: 0, AccuracyDefined: true}, "unreliable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, Verdict(&tt.report), tt.contains)
		})
	}
}

func TestEnhancement_SeparateRoles(t *testing.T) {
	r := &domain.EnhancementReport{Stats: []domain.RoleStats{
		{Role: domain.HolderIndividual, Records: 4, Enhanced: 2, Unenhanced: 2},
		{Role: domain.HolderOrganization, Records: 4, Enhanced: 1, Unenhanced: 3},
	}}

	var buf bytes.Buffer
	require.NoError(t, Enhancement(&buf, r))
	assert.Contains(t, buf.String(), "50.00%")
	assert.Contains(t, buf.String(), "25.00%")
}

func TestCoverage(t *testing.T) {
	r := &domain.CoverageReport{
		Categories: []domain.CategoryCoverage{{Category: "NPI-2", TotalEntries: 3, UniqueIdentifiers: 2, Present: 1, CoveragePercent: 50, TopN: 2, TopNPresent: 1, Concentration: domain.ConcentrationHigh, Skewed: true}},
		Overlaps:   []domain.Overlap{{Left: "NPI", Right: "NPI-1", Both: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, Coverage(&buf, r))
	assert.Contains(t, buf.String(), "NPI-2")
	assert.Contains(t, buf.String(), "NPI x NPI-1")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.0001234", FormatFloat(0.0001234))
	assert.Equal(t, "1", FormatFloat(1))
}
