package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// DefaultMatchThreshold is the minimum fuzzy score kept when none is configured
const DefaultMatchThreshold = 70.0

// exactScore is the score of every containment match
const exactScore = 100.0

// practiceColumnTerms pick candidate name columns when none are configured
var practiceColumnTerms = []string{
	"practice", "organization", "medical group", "company", "facility",
	"clinic", "hospital", "group", "affiliation", "health", "system",
}

// MatchConfig holds configuration for the matching service
type MatchConfig struct {
	Threshold          float64
	StripLegalSuffixes bool
	DistinctCandidates bool
	EnableDebugLogging bool
}

// MatchInput is one named entry on either side of a match.
type MatchInput struct {
	Index int
	Field string
	Name  string
	ID    domain.NPI
}

// MatchingService pairs target names with candidate names.
//
// For every target, all candidates whose normalized name contains the target's
// normalized name (or is contained by it) are exact matches with score 100.
// Only a target with no exact match is fuzzy-scored against every candidate;
// fuzzy matches at or above the threshold are kept, best score first, with
// equal scores in candidate input order. A target with neither gets a single
// "no match" row.
type MatchingService struct {
	threshold          float64
	stripLegalSuffixes bool
	distinctCandidates bool
	enableDebugLogging bool
	logger             zerolog.Logger
}

// NewMatchingService creates a new matching service with the given configuration
func NewMatchingService(config MatchConfig, logger zerolog.Logger) *MatchingService {
	threshold := config.Threshold
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}

	return &MatchingService{
		threshold:          threshold,
		stripLegalSuffixes: config.StripLegalSuffixes,
		distinctCandidates: config.DistinctCandidates,
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logging.Component(logger, "matcher"),
	}
}

// Threshold returns the effective fuzzy threshold.
func (s *MatchingService) Threshold() float64 {
	return s.threshold
}

// preparedName caches the forms of a name used for scoring.
type preparedName struct {
	input      MatchInput
	normalized string
	sorted     string
}

func (s *MatchingService) prepare(in MatchInput) preparedName {
	name := NormalizeName(in.Name)
	if s.stripLegalSuffixes {
		name = CanonicalOrganization(name)
	}
	return preparedName{
		input:      in,
		normalized: name.String(),
		sorted:     sortTokens(name.String()),
	}
}

// Match computes the match list. The result has at least one row per target,
// in target order.
func (s *MatchingService) Match(
	ctx context.Context,
	targets []MatchInput,
	candidates []MatchInput,
	summary *domain.Summary,
) ([]domain.MatchCandidate, error) {
	prepared := s.prepareCandidates(candidates)

	s.logger.Info().
		Int("targets", len(targets)).
		Int("candidates", len(candidates)).
		Int("eligible_candidates", len(prepared)).
		Float64("threshold", s.threshold).
		Msg("matching started")

	results := make([]domain.MatchCandidate, 0, len(targets))
	var exact, fuzzy, none int

	for _, target := range targets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows := s.matchTarget(target, prepared, summary)
		switch rows[0].Kind {
		case domain.MatchExact:
			exact++
		case domain.MatchFuzzy:
			fuzzy++
		default:
			none++
		}
		results = append(results, rows...)
	}

	s.logger.Info().
		Int("rows", len(results)).
		Int("targets_exact", exact).
		Int("targets_fuzzy", fuzzy).
		Int("targets_unmatched", none).
		Msg("matching finished")

	return results, nil
}

// prepareCandidates normalizes candidates and drops the ones with empty names.
func (s *MatchingService) prepareCandidates(candidates []MatchInput) []preparedName {
	prepared := make([]preparedName, 0, len(candidates))
	seen := make(map[string]bool)

	for _, c := range candidates {
		p := s.prepare(c)
		if p.normalized == "" {
			continue
		}
		if s.distinctCandidates {
			key := p.normalized + "\x00" + c.ID.String()
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		prepared = append(prepared, p)
	}

	return prepared
}

func (s *MatchingService) matchTarget(target MatchInput, candidates []preparedName, summary *domain.Summary) []domain.MatchCandidate {
	t := s.prepare(target)
	if t.normalized == "" || domain.IsPlaceholder(target.Name) {
		return []domain.MatchCandidate{noMatch(target)}
	}

	var exact []domain.MatchCandidate
	for _, c := range candidates {
		if strings.Contains(c.normalized, t.normalized) || strings.Contains(t.normalized, c.normalized) {
			exact = append(exact, newMatch(target, c.input, domain.MatchExact, exactScore, domain.MethodContainment))
		}
	}
	if len(exact) > 0 {
		if s.enableDebugLogging {
			s.logger.Debug().Str("target", target.Name).Int("hits", len(exact)).Msg("exact matches")
		}
		return exact
	}

	var fuzzy []domain.MatchCandidate
	for _, c := range candidates {
		score := tokenSortRatio(t.sorted, c.sorted)
		if s.enableDebugLogging {
			s.logger.Debug().Str("target", target.Name).Str("candidate", c.input.Name).Float64("score", score).Msg("fuzzy score")
		}
		if score >= s.threshold {
			fuzzy = append(fuzzy, newMatch(target, c.input, domain.MatchFuzzy, score, domain.MethodTokenSortLevenshtein))
		}
	}
	if len(fuzzy) == 0 {
		return []domain.MatchCandidate{noMatch(target)}
	}

	// Stable sort keeps candidate input order among equal scores
	sort.SliceStable(fuzzy, func(i, j int) bool {
		return fuzzy[i].Score > fuzzy[j].Score
	})

	tied := 1
	for tied < len(fuzzy) && fuzzy[tied].Score == fuzzy[0].Score {
		tied++
	}
	if tied > 1 {
		for i := 0; i < tied; i++ {
			fuzzy[i].Ambiguous = true
		}
		summary.Add(domain.KindAmbiguousMatch, 1)
		s.logger.Debug().Str("target", target.Name).Int("tied", tied).Float64("score", fuzzy[0].Score).Msg("ambiguous fuzzy match")
	}

	return fuzzy
}

func newMatch(target, candidate MatchInput, kind domain.MatchKind, score float64, method string) domain.MatchCandidate {
	return domain.MatchCandidate{
		TargetIndex:    target.Index,
		TargetName:     target.Name,
		TargetID:       target.ID,
		CandidateIndex: candidate.Index,
		CandidateField: candidate.Field,
		CandidateName:  candidate.Name,
		CandidateID:    candidate.ID,
		Kind:           kind,
		Score:          score,
		Method:         method,
	}
}

func noMatch(target MatchInput) domain.MatchCandidate {
	return domain.MatchCandidate{
		TargetIndex:    target.Index,
		TargetName:     target.Name,
		TargetID:       target.ID,
		CandidateIndex: domain.NoCandidate,
		Kind:           domain.MatchNone,
		Method:         domain.MethodNone,
	}
}

// Similarity returns the fuzzy score of two raw names.
func Similarity(a, b string) float64 {
	return tokenSortRatio(sortTokens(NormalizeName(a).String()), sortTokens(NormalizeName(b).String()))
}

// sortTokens orders the words of s so word order does not affect the score.
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// tokenSortRatio scores two token-sorted strings from 0 to 100 by edit distance
// relative to the longer string.
func tokenSortRatio(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 100
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(distance)/float64(longest))
}

// CandidateInputs expands a candidate table into match inputs, one per non-empty
// name cell, in row order then column order.
func CandidateInputs(logger zerolog.Logger, table *domain.Table, nameFields, idFields []string, summary *domain.Summary) []MatchInput {
	var inputs []MatchInput
	for _, rec := range table.Records {
		id := firstIdentifier(logger, rec, idFields, summary)
		for _, field := range nameFields {
			name := strings.TrimSpace(rec.Get(field))
			if domain.IsPlaceholder(name) {
				continue
			}
			inputs = append(inputs, MatchInput{Index: rec.Index, Field: field, Name: name, ID: id})
		}
	}
	return inputs
}

// TargetInputs builds one match input per target record. Blank names are kept so
// the target still gets its "no match" row.
func TargetInputs(logger zerolog.Logger, table *domain.Table, nameField, idField string, summary *domain.Summary) []MatchInput {
	inputs := make([]MatchInput, 0, len(table.Records))
	var idFields []string
	if idField != "" {
		idFields = []string{idField}
	}
	for _, rec := range table.Records {
		inputs = append(inputs, MatchInput{
			Index: rec.Index,
			Field: nameField,
			Name:  strings.TrimSpace(rec.Get(nameField)),
			ID:    firstIdentifier(logger, rec, idFields, summary),
		})
	}
	return inputs
}

// CandidateNameColumns returns the configured columns, or the columns that look
// like practice or organization names. Identifier columns are never name columns.
func CandidateNameColumns(table *domain.Table, configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	var cols []string
	for _, col := range table.ColumnsContaining(practiceColumnTerms...) {
		if !strings.Contains(strings.ToLower(col), "npi") {
			cols = append(cols, col)
		}
	}
	return cols
}

// IdentifierColumns returns the configured columns, or every column whose name contains "npi".
func IdentifierColumns(table *domain.Table, configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return table.ColumnsContaining("npi")
}
