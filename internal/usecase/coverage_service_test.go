package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

func coverageTables() (*domain.Table, *domain.Table) {
	analyzed := domain.NewTable([]string{"NPI", "NPI-1", "NPI-1_Name", "NPI-1_State", "NPI-2", "NPI-2_Name", "NPI-2_State"})
	analyzed.Append(map[string]string{"NPI": "1043325483", "NPI-1": "1043325483", "NPI-1_Name": "Dr A Majhail", "NPI-1_State": "CA", "NPI-2": "1568131365", "NPI-2_Name": "City General Hospital", "NPI-2_State": "CA"})
	analyzed.Append(map[string]string{"NPI": "1043325483", "NPI-1": "1043325483", "NPI-1_Name": "Amardeep Majhail", "NPI-1_State": "CA", "NPI-2": "1568131365", "NPI-2_Name": "CITY GENERAL HOSPITAL"})
	analyzed.Append(map[string]string{"NPI": "9999999999", "NPI-1": "1111111112", "NPI-1_Name": "Jane Doe", "NPI-1_State": "NY", "NPI-2": ""})
	analyzed.Append(map[string]string{"NPI": "", "NPI-1": "1043325483.0", "NPI-2": "2222222223", "NPI-2_Name": "Absent Org"})

	reference := domain.NewTable([]string{"npi", "organization_name", "first_name", "last_name", "state"})
	reference.Append(map[string]string{"npi": "1043325483", "first_name": "Amardeep", "last_name": "Majhail", "state": "CA"})
	reference.Append(map[string]string{"npi": "1568131365", "organization_name": "City General Hospital", "state": "CA"})
	reference.Append(map[string]string{"npi": "1568131365", "organization_name": "CITY GENERAL HOSPITAL, INC.", "state": "CA"})
	reference.Append(map[string]string{"npi": "3333333334", "organization_name": "Other Org", "state": "TX"})

	return analyzed, reference
}

func newTestCoverage(topN int) *CoverageService {
	return NewCoverageService(CoverageConfig{
		TopN: topN,
		Categories: []CoverageCategory{
			{Name: "NPI-1", IDField: "NPI-1", NameField: "NPI-1_Name", StateField: "NPI-1_State"},
			{Name: "NPI-2", IDField: "NPI-2", NameField: "NPI-2_Name", StateField: "NPI-2_State"},
			{Name: "Missing", IDField: "Not There"},
		},
		Overlaps: []OverlapPair{{Left: "NPI", Right: "NPI-1"}, {Left: "NPI", Right: "Not There"}},
	}, zerolog.Nop())
}

func categoryByName(t *testing.T, report *domain.CoverageReport, name string) domain.CategoryCoverage {
	t.Helper()
	for _, c := range report.Categories {
		if c.Category == name {
			return c
		}
	}
	t.Fatalf("category %q not in report", name)
	return domain.CategoryCoverage{}
}

func TestCoverage_SameIdentifierUnderTwoNamesCountsTwice(t *testing.T) {
	analyzed, reference := coverageTables()
	summary := domain.NewSummary()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, summary)
	require.NoError(t, err)

	individuals := categoryByName(t, report, "NPI-1")
	require.Len(t, individuals.Identifiers, 2)

	top := individuals.Identifiers[0]
	assert.Equal(t, domain.NPI("1043325483"), top.NPI)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 2, top.Frequency)
	assert.Equal(t, 2, top.NameVariants)
	assert.Equal(t, "Dr A Majhail", top.Name)
	assert.Equal(t, "CA", top.State)
	assert.True(t, top.InReference)
	assert.Equal(t, 1, top.ReferenceFrequency)
	assert.Equal(t, "Found", top.Status())

	// malformed "1043325483.0" is nulled and counted, never coerced
	assert.Equal(t, 3, individuals.TotalEntries)
	assert.Equal(t, int64(1), summary.Count(domain.KindMalformedRecord))
}

func TestCoverage_AbsentIsAResultNotAnError(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	individuals := categoryByName(t, report, "NPI-1")
	absent := individuals.Identifiers[1]
	assert.Equal(t, domain.NPI("1111111112"), absent.NPI)
	assert.False(t, absent.InReference)
	assert.Equal(t, 0, absent.ReferenceFrequency)
	assert.Equal(t, "Absent", absent.Status())

	assert.Equal(t, 1, individuals.Present)
	assert.InDelta(t, 50.0, individuals.CoveragePercent, 1e-9)

	orgs := categoryByName(t, report, "NPI-2")
	assert.Equal(t, 3, orgs.TotalEntries)
	assert.Equal(t, 2, orgs.UniqueIdentifiers)
	assert.Equal(t, 2, orgs.Identifiers[0].ReferenceFrequency)
	assert.Equal(t, 1, orgs.Identifiers[0].NameVariants)

	assert.Equal(t, 4, report.OverallUnique)
	assert.Equal(t, 2, report.OverallPresent)
	assert.InDelta(t, 50.0, report.OverallCoveragePercent, 1e-9)
}

func TestCoverage_SkipsCategoriesWithoutColumn(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, "NPI-1", report.Categories[0].Category)
	assert.Equal(t, "NPI-2", report.Categories[1].Category)
}

func TestCoverage_ReferenceFrequencies(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	assert.Equal(t, 4, report.ReferenceRows)
	assert.Equal(t, 3, report.ReferenceUnique)

	byID := report.ReferenceByIdentifier
	require.Len(t, byID, 3)
	assert.Equal(t, "1568131365", byID[0].Key)
	assert.Equal(t, 2, byID[0].Count)
	assert.Equal(t, "City General Hospital", byID[0].DisplayName)
	assert.Equal(t, 2, byID[0].NameVariants)
	assert.Equal(t, "1043325483", byID[1].Key)
	assert.Equal(t, "Amardeep Majhail", byID[1].DisplayName)

	for _, entries := range [][]domain.FrequencyEntry{report.ReferenceByIdentifier, report.ReferenceByName} {
		sum := 0.0
		for _, e := range entries {
			sum += e.Percent
		}
		assert.InDelta(t, 100.0, sum, 1e-9)
	}
}

func TestCoverage_TopNAndConcentration(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(1).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	individuals := categoryByName(t, report, "NPI-1")
	assert.Equal(t, 1, individuals.TopN)
	assert.Equal(t, 1, individuals.TopNPresent)
	assert.InDelta(t, 100.0, individuals.TopNCoveragePercent, 1e-9)
	assert.InDelta(t, 200.0/3.0, individuals.TopShare, 1e-9)
	assert.Equal(t, domain.ConcentrationHigh, individuals.Concentration)
	assert.True(t, individuals.Skewed)
}

func TestCoverage_Overlaps(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	require.Len(t, report.Overlaps, 1)
	assert.Equal(t, domain.Overlap{Left: "NPI", Right: "NPI-1", Both: 1, LeftOnly: 1, RightOnly: 1}, report.Overlaps[0])
}

func TestCoverage_RecordStatuses(t *testing.T) {
	analyzed, reference := coverageTables()

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	require.Len(t, report.Records, 4)
	assert.Equal(t, domain.RecordFound, report.Records[0].Statuses["NPI-1"])
	assert.Equal(t, domain.RecordFound, report.Records[0].Statuses["NPI-2"])
	assert.Equal(t, domain.RecordAbsent, report.Records[2].Statuses["NPI-1"])
	assert.Equal(t, domain.RecordNoNPI, report.Records[2].Statuses["NPI-2"])
	assert.Equal(t, domain.RecordNoNPI, report.Records[3].Statuses["NPI-1"])
	assert.Equal(t, domain.RecordAbsent, report.Records[3].Statuses["NPI-2"])
	assert.Equal(t, domain.NPI("2222222223"), report.Records[3].NPIs["NPI-2"])
}

func TestCoverage_DoesNotModifyInputs(t *testing.T) {
	analyzed, reference := coverageTables()
	analyzedBefore, referenceBefore := analyzed.Clone(), reference.Clone()

	_, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	assert.Equal(t, analyzedBefore, analyzed)
	assert.Equal(t, referenceBefore, reference)
}

func TestCoverage_EmptyReference(t *testing.T) {
	analyzed, _ := coverageTables()
	reference := domain.NewTable([]string{"npi"})

	report, err := newTestCoverage(10).Analyze(context.Background(), analyzed, reference, domain.NewSummary())
	require.NoError(t, err)

	assert.Zero(t, report.OverallPresent)
	assert.Zero(t, report.OverallCoveragePercent)
	assert.Empty(t, report.ReferenceByIdentifier)
}

func TestCoverage_ContextCanceled(t *testing.T) {
	analyzed, reference := coverageTables()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCoverage(10).Analyze(ctx, analyzed, reference, domain.NewSummary())
	assert.ErrorIs(t, err, context.Canceled)
}
