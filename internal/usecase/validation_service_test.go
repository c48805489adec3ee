package usecase

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

func fuzzyMatch(target string, targetID domain.NPI, candidate string, candidateID domain.NPI, score float64) domain.MatchCandidate {
	return domain.MatchCandidate{
		TargetName:    target,
		TargetID:      targetID,
		CandidateName: candidate,
		CandidateID:   candidateID,
		Kind:          domain.MatchFuzzy,
		Score:         score,
		Method:        domain.MethodTokenSortLevenshtein,
	}
}

func TestValidate_Verdicts(t *testing.T) {
	matches := []domain.MatchCandidate{
		fuzzyMatch("Valley Medical Group", "1568131365", "Valley Medical Grp", "1568131365", 90),
		fuzzyMatch("City General", "1568131365", "City Generals", "9999999999", 85),
		fuzzyMatch("Alpha Clinic", domain.NoNPI, "Alpha Clinit", "1111111112", 91.7),
		fuzzyMatch("Beta Clinic", "1222222222", "Beta Clinix", domain.NoNPI, 75),
		fuzzyMatch("Gamma", domain.NoNPI, "Gamme", domain.NoNPI, 80),
		{TargetName: "Exact", TargetID: "1", Kind: domain.MatchExact, Score: 100},
		{TargetName: "None", Kind: domain.MatchNone, CandidateIndex: domain.NoCandidate},
	}
	summary := domain.NewSummary()

	report, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(context.Background(), matches, summary)
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 5)
	assert.Equal(t, domain.VerdictAgree, report.Verdicts[0].Verdict)
	assert.Equal(t, "NPIs Match", report.Verdicts[0].Status())

	assert.Equal(t, domain.VerdictDisagree, report.Verdicts[1].Verdict)
	assert.Equal(t, "NPIs Don't Match", report.Verdicts[1].Status())

	assert.Equal(t, domain.ReasonTargetUnknown, report.Verdicts[2].Reason)
	assert.Equal(t, domain.ReasonCandidateUnknown, report.Verdicts[3].Reason)
	assert.Equal(t, domain.ReasonBothUnknown, report.Verdicts[4].Reason)
	assert.Equal(t, "Unverifiable", report.Verdicts[4].Status())

	assert.Equal(t, 5, report.TotalFuzzy)
	assert.Equal(t, 2, report.Verified)
	assert.Equal(t, 3, report.Unverifiable)
	assert.Equal(t, report.TotalFuzzy, report.Verified+report.Unverifiable)
	assert.Equal(t, 0.5, report.Accuracy)
	assert.True(t, report.AccuracyDefined)
	assert.Equal(t, 90.0, report.MeanScoreAgree)
	assert.Equal(t, 85.0, report.MeanScoreDisagree)
	assert.Equal(t, int64(3), summary.Count(domain.KindUnverifiablePair))

	// the match rows are carried through untouched
	assert.Equal(t, matches[1], report.Verdicts[1].Match)
}

func TestValidate_DisagreementCountsInDenominator(t *testing.T) {
	matches := []domain.MatchCandidate{
		fuzzyMatch("City General Hospital", "1568131365", "City General Hosp", "9999999999", 88),
	}

	report, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Verified)
	assert.Equal(t, 1, report.Disagree)
	assert.Equal(t, 0.0, report.Accuracy)
	assert.True(t, report.AccuracyDefined)
}

func TestValidate_NearZeroAccuracyIsNotRounded(t *testing.T) {
	matches := []domain.MatchCandidate{fuzzyMatch("A Clinic", "1000000001", "A Clinik", "1000000001", 80)}
	for i := 0; i < 999; i++ {
		matches = append(matches, fuzzyMatch("B Clinic", "1000000002", "B Clinik", "1000000003", 80))
	}

	report, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)

	assert.Equal(t, 0.001, report.Accuracy)
	assert.GreaterOrEqual(t, report.Accuracy, 0.0)
	assert.LessOrEqual(t, report.Accuracy, 1.0)
}

func TestValidate_NothingVerifiable(t *testing.T) {
	matches := []domain.MatchCandidate{fuzzyMatch("Gamma", domain.NoNPI, "Gamme", domain.NoNPI, 80)}

	report, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)

	assert.Zero(t, report.Verified)
	assert.Zero(t, report.Accuracy)
	assert.False(t, report.AccuracyDefined)
}

func TestValidate_ScoreBands(t *testing.T) {
	matches := []domain.MatchCandidate{
		fuzzyMatch("a", "1000000001", "a", "1000000001", 71),
		fuzzyMatch("b", "1000000001", "b", "1000000002", 79.9),
		fuzzyMatch("c", "1000000001", "c", domain.NoNPI, 80),
		fuzzyMatch("d", "1000000001", "d", "1000000001", 100),
	}

	report, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)

	require.Len(t, report.Bands, 3)
	assert.Equal(t, domain.ScoreBand{Low: 70, High: 80, Agree: 1, Disagree: 1}, report.Bands[0])
	assert.Equal(t, domain.ScoreBand{Low: 80, High: 90, Unverifiable: 1}, report.Bands[1])
	assert.Equal(t, domain.ScoreBand{Low: 90, High: 100, Agree: 1}, report.Bands[2])
	assert.Equal(t, 0.5, report.Bands[0].Accuracy())
	assert.Zero(t, report.Bands[1].Accuracy())
}

func TestValidate_ResolveUnknown(t *testing.T) {
	registry := newMockRegistry()
	registry.add("Alpha Clinic", &domain.LookupResult{NPI: "1111111112", Type: domain.HolderOrganization})
	registry.add("Person Name", &domain.LookupResult{NPI: "1333333333", Type: domain.HolderIndividual})

	matches := []domain.MatchCandidate{
		fuzzyMatch("Alpha Clinic", domain.NoNPI, "Alpha Clinit", "1111111112", 90),
		fuzzyMatch("ALPHA CLINIC.", domain.NoNPI, "Alpha Klinic", "1111111112", 85),
		fuzzyMatch("Unknown Org", domain.NoNPI, "Unknown Orgs", "1222222222", 80),
		fuzzyMatch("Person Name", domain.NoNPI, "Person Names", "1333333333", 80),
	}
	svc := NewValidationService(registry, ValidationConfig{ResolveUnknown: true}, zerolog.Nop())

	report, err := svc.Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictAgree, report.Verdicts[0].Verdict)
	assert.Equal(t, domain.NPI("1111111112"), report.Verdicts[0].TargetID)
	assert.Equal(t, domain.VerdictAgree, report.Verdicts[1].Verdict)
	assert.Equal(t, domain.VerdictUnverifiable, report.Verdicts[2].Verdict)
	// wrong holder type is left unknown
	assert.Equal(t, domain.VerdictUnverifiable, report.Verdicts[3].Verdict)

	assert.Equal(t, 2, report.Resolved)
	// one lookup per distinct name
	assert.Equal(t, int32(3), registry.calls.Load())
	// the match rows keep their original identifiers
	assert.Equal(t, domain.NoNPI, report.Verdicts[0].Match.TargetID)
}

func TestValidate_ResolveDisabledWithoutResolver(t *testing.T) {
	matches := []domain.MatchCandidate{fuzzyMatch("Alpha Clinic", domain.NoNPI, "Alpha Clinit", "1111111112", 90)}

	report, err := NewValidationService(nil, ValidationConfig{ResolveUnknown: true}, zerolog.Nop()).Validate(context.Background(), matches, domain.NewSummary())
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictUnverifiable, report.Verdicts[0].Verdict)
}

func TestValidate_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewValidationService(nil, ValidationConfig{}, zerolog.Nop()).Validate(ctx, []domain.MatchCandidate{fuzzyMatch("a", "1000000001", "b", "1000000001", 80)}, domain.NewSummary())
	assert.ErrorIs(t, err, context.Canceled)
}
