package usecase

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// DefaultBandWidth is the score band width of the validation report
const DefaultBandWidth = 10.0

// ValidationConfig holds configuration for the validation service
type ValidationConfig struct {
	ResolveUnknown bool
	ResolveType    domain.HolderType
	BandWidth      float64
}

// ValidationService checks fuzzy matches against identifiers.
type ValidationService struct {
	resolver       domain.RegistryClient
	resolveUnknown bool
	resolveType    domain.HolderType
	bandWidth      float64
	logger         zerolog.Logger
}

// NewValidationService creates a new validation service. resolver may be nil
// when unknown identifiers are not to be resolved.
func NewValidationService(resolver domain.RegistryClient, config ValidationConfig, logger zerolog.Logger) *ValidationService {
	resolveType := config.ResolveType
	if resolveType == domain.HolderUnknown {
		resolveType = domain.HolderOrganization
	}
	width := config.BandWidth
	if width <= 0 {
		width = DefaultBandWidth
	}
	return &ValidationService{
		resolver:       resolver,
		resolveUnknown: config.ResolveUnknown && resolver != nil,
		resolveType:    resolveType,
		bandWidth:      width,
		logger:         logging.Component(logger, "validator"),
	}
}

// Validate derives a verdict for every fuzzy match. Exact and unmatched rows
// are ignored. The matches themselves are not modified.
func (s *ValidationService) Validate(ctx context.Context, matches []domain.MatchCandidate, summary *domain.Summary) (*domain.ValidationReport, error) {
	report := &domain.ValidationReport{}
	resolved := map[domain.NormalizedName]domain.NPI{}

	var agreeScores, disagreeScores float64
	bands := map[int]*domain.ScoreBand{}

	for _, m := range matches {
		if m.Kind != domain.MatchFuzzy {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		targetID, candidateID := m.TargetID, m.CandidateID
		if s.resolveUnknown {
			if !targetID.Known() {
				targetID = s.resolve(ctx, m.TargetName, resolved, report)
			}
			if !candidateID.Known() {
				candidateID = s.resolve(ctx, m.CandidateName, resolved, report)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		verdict := judge(m, targetID, candidateID)
		report.Verdicts = append(report.Verdicts, verdict)
		report.TotalFuzzy++

		band := s.band(bands, m.Score)
		switch verdict.Verdict {
		case domain.VerdictAgree:
			report.Agree++
			agreeScores += m.Score
			band.Agree++
		case domain.VerdictDisagree:
			report.Disagree++
			disagreeScores += m.Score
			band.Disagree++
		default:
			report.Unverifiable++
			band.Unverifiable++
			summary.Add(domain.KindUnverifiablePair, 1)
		}
	}

	report.Verified = report.Agree + report.Disagree
	if report.Verified > 0 {
		report.Accuracy = float64(report.Agree) / float64(report.Verified)
		report.AccuracyDefined = true
	}
	if report.Agree > 0 {
		report.MeanScoreAgree = agreeScores / float64(report.Agree)
	}
	if report.Disagree > 0 {
		report.MeanScoreDisagree = disagreeScores / float64(report.Disagree)
	}
	report.Bands = orderedBands(bands)

	s.logger.Info().
		Int("fuzzy", report.TotalFuzzy).
		Int("verified", report.Verified).
		Int("agree", report.Agree).
		Int("disagree", report.Disagree).
		Int("unverifiable", report.Unverifiable).
		Int("resolved", report.Resolved).
		Float64("accuracy", report.Accuracy).
		Bool("accuracy_defined", report.AccuracyDefined).
		Msg("validation complete")

	return report, nil
}

func judge(m domain.MatchCandidate, targetID, candidateID domain.NPI) domain.ValidationVerdict {
	v := domain.ValidationVerdict{Match: m, TargetID: targetID, CandidateID: candidateID}
	switch {
	case !targetID.Known() && !candidateID.Known():
		v.Verdict, v.Reason = domain.VerdictUnverifiable, domain.ReasonBothUnknown
	case !targetID.Known():
		v.Verdict, v.Reason = domain.VerdictUnverifiable, domain.ReasonTargetUnknown
	case !candidateID.Known():
		v.Verdict, v.Reason = domain.VerdictUnverifiable, domain.ReasonCandidateUnknown
	case targetID == candidateID:
		v.Verdict = domain.VerdictAgree
	default:
		v.Verdict = domain.VerdictDisagree
	}
	return v
}

// resolve looks a name up once per run; failures are remembered as NoNPI.
func (s *ValidationService) resolve(ctx context.Context, name string, seen map[domain.NormalizedName]domain.NPI, report *domain.ValidationReport) domain.NPI {
	key := NormalizeName(name)
	if key.IsEmpty() {
		return domain.NoNPI
	}
	if id, ok := seen[key]; ok {
		if id.Known() {
			report.Resolved++
		}
		return id
	}

	result, err := s.resolver.Lookup(ctx, s.query(name))
	id := domain.NoNPI
	switch {
	case err == nil && result.Type == s.resolveType:
		id = result.NPI
		report.Resolved++
	case err == nil:
		s.logger.Debug().Str("name", name).Str("type", string(result.Type)).Msg("resolved holder has wrong type")
	case ctx.Err() != nil:
		return domain.NoNPI
	default:
		s.logger.Debug().Err(err).Str("name", name).Msg("could not resolve identifier")
	}
	seen[key] = id
	return id
}

func (s *ValidationService) query(name string) domain.LookupQuery {
	q := domain.LookupQuery{Type: s.resolveType}
	if s.resolveType == domain.HolderOrganization {
		q.OrganizationName = strings.TrimSpace(name)
		return q
	}
	fields := strings.Fields(name)
	if len(fields) > 0 {
		q.FirstName = fields[0]
		q.LastName = fields[len(fields)-1]
	}
	return q
}

// band returns the band holding score. The top band is closed so 100 lands in it.
func (s *ValidationService) band(bands map[int]*domain.ScoreBand, score float64) *domain.ScoreBand {
	top := int(math.Ceil(100/s.bandWidth)) - 1
	i := int(math.Floor(score / s.bandWidth))
	if i > top {
		i = top
	}
	if i < 0 {
		i = 0
	}
	b, ok := bands[i]
	if !ok {
		b = &domain.ScoreBand{Low: float64(i) * s.bandWidth, High: math.Min(float64(i+1)*s.bandWidth, 100)}
		bands[i] = b
	}
	return b
}

func orderedBands(bands map[int]*domain.ScoreBand) []domain.ScoreBand {
	out := make([]domain.ScoreBand, 0, len(bands))
	for i := 0; len(out) < len(bands); i++ {
		if b, ok := bands[i]; ok {
			out = append(out, *b)
		}
	}
	return out
}
