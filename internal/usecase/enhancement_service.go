package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// RoleSpec describes where one role's names and identifier live in a record.
type RoleSpec struct {
	Type           domain.HolderType
	IDField        string
	FirstNameField string
	LastNameField  string
	NameField      string
}

// Query builds the lookup query for a record.
func (r RoleSpec) Query(rec domain.Record) domain.LookupQuery {
	q := domain.LookupQuery{Type: r.Type}
	if r.Type == domain.HolderOrganization {
		q.OrganizationName = strings.TrimSpace(rec.Get(r.NameField))
	} else {
		q.FirstName = strings.TrimSpace(rec.Get(r.FirstNameField))
		q.LastName = strings.TrimSpace(rec.Get(r.LastNameField))
	}
	return q
}

// EnhancementConfig holds configuration for the enhancement service
type EnhancementConfig struct {
	Roles       []RoleSpec
	Concurrency int
	CallTimeout time.Duration
	CacheTTL    time.Duration
	Force       bool
	FlagField   string
}

// EnhancementService fills in missing identifiers from the registry.
type EnhancementService struct {
	client      domain.RegistryClient
	cache       domain.LookupCache
	roles       []RoleSpec
	concurrency int
	callTimeout time.Duration
	cacheTTL    time.Duration
	force       bool
	flagField   string
	logger      zerolog.Logger
	now         func() time.Time

	lookups   atomic.Int64
	cacheHits atomic.Int64
}

// NewEnhancementService creates a new enhancement service with the given dependencies
func NewEnhancementService(
	client domain.RegistryClient,
	cache domain.LookupCache,
	config EnhancementConfig,
	logger zerolog.Logger,
) *EnhancementService {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &EnhancementService{
		client:      client,
		cache:       cache,
		roles:       config.Roles,
		concurrency: concurrency,
		callTimeout: timeout,
		cacheTTL:    config.CacheTTL,
		force:       config.Force,
		flagField:   config.FlagField,
		logger:      logging.Component(logger, "enhancer"),
		now:         time.Now,
	}
}

// Enhance resolves every role of every record. Output order matches input order.
// A failed lookup marks only that role of that record as unenhanced; the only
// error returned is the caller's context being done.
func (s *EnhancementService) Enhance(ctx context.Context, records []domain.Record, summary *domain.Summary) (*domain.EnhancementReport, error) {
	report := &domain.EnhancementReport{
		Records:      make([]domain.EnhancedRecord, len(records)),
		QueryStarted: s.now().UTC(),
	}
	startLookups, startHits := s.lookups.Load(), s.cacheHits.Load()

	s.logger.Info().
		Int("records", len(records)).
		Int("concurrency", s.concurrency).
		Dur("call_timeout", s.callTimeout).
		Msg("enhancement started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each goroutine writes only its own slot
			report.Records[i] = s.enhanceRecord(gctx, records[i], summary)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.QueryFinished = s.now().UTC()
	report.Lookups = s.lookups.Load() - startLookups
	report.CacheHits = s.cacheHits.Load() - startHits
	report.Stats = s.collectStats(report.Records)

	for _, st := range report.Stats {
		s.logger.Info().
			Str("role", st.Role.Label()).
			Int("existing", st.Existing).
			Int("enhanced", st.Enhanced).
			Int("unenhanced", st.Unenhanced).
			Int("skipped", st.Skipped).
			Float64("success_rate", st.SuccessRate()).
			Msg("enhancement role summary")
	}

	return report, nil
}

func (s *EnhancementService) enhanceRecord(ctx context.Context, rec domain.Record, summary *domain.Summary) domain.EnhancedRecord {
	out := domain.EnhancedRecord{Record: rec, Enhancements: make([]domain.Enhancement, 0, len(s.roles))}
	flagged := s.force || isTruthy(rec.Get(s.flagField))

	for _, role := range s.roles {
		out.Enhancements = append(out.Enhancements, s.enhanceRole(ctx, rec, role, flagged, summary))
	}
	return out
}

func (s *EnhancementService) enhanceRole(ctx context.Context, rec domain.Record, role RoleSpec, flagged bool, summary *domain.Summary) domain.Enhancement {
	enh := domain.Enhancement{Role: role.Type, Query: role.Query(rec)}

	existing := domain.NoNPI
	if role.IDField != "" {
		existing = sanitizeIdentifier(s.logger, rec, role.IDField, summary)
	}
	if existing.Known() && !flagged {
		enh.Status = domain.StatusExisting
		enh.NPI = existing
		return enh
	}

	if !enh.Query.Searchable() {
		enh.Status = domain.StatusSkipped
		enh.Reason = domain.ReasonNoQuery
		return enh
	}

	result, err := s.lookup(ctx, enh.Query)
	if err == nil && result.Type != role.Type {
		err = domain.ErrTypeMismatch
	}
	if err != nil {
		enh.Status = domain.StatusUnenhanced
		enh.Reason = classifyLookupError(err)
		summary.Add(domain.KindLookupFailure, 1)
		s.logger.Debug().
			Err(err).
			Int("record", rec.Index).
			Str("role", role.Type.Label()).
			Str("query", enh.Query.Name()).
			Str("reason", string(enh.Reason)).
			Msg("record left unenhanced")
		return enh
	}

	enh.Status = domain.StatusEnhanced
	enh.NPI = result.NPI
	enh.Result = result
	return enh
}

// lookup consults the run cache, then the registry under a per-call timeout.
func (s *EnhancementService) lookup(ctx context.Context, query domain.LookupQuery) (*domain.LookupResult, error) {
	key := lookupKey(query)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			s.cacheHits.Add(1)
			return cached, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	s.lookups.Add(1)
	result, err := s.client.Lookup(callCtx, query)
	if err != nil {
		if ctx.Err() == nil && callCtx.Err() != nil {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}

	// Cache whatever the registry answered; type checks happen on every use
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache lookup")
		}
	}

	return result, nil
}

func (s *EnhancementService) collectStats(records []domain.EnhancedRecord) []domain.RoleStats {
	stats := make([]domain.RoleStats, len(s.roles))
	for i, role := range s.roles {
		stats[i] = domain.RoleStats{Role: role.Type, Reasons: map[domain.FailureReason]int{}}
	}

	for _, rec := range records {
		for i, enh := range rec.Enhancements {
			st := &stats[i]
			st.Records++
			switch enh.Status {
			case domain.StatusExisting:
				st.Existing++
			case domain.StatusEnhanced:
				st.Enhanced++
			case domain.StatusUnenhanced:
				st.Unenhanced++
				st.Reasons[enh.Reason]++
			case domain.StatusSkipped:
				st.Skipped++
				st.Reasons[enh.Reason]++
			}
		}
	}
	return stats
}

// lookupKey identifies a query by holder type and normalized name
func lookupKey(query domain.LookupQuery) string {
	return string(query.Type) + "|" + NormalizeName(query.Name()).String()
}

// classifyLookupError maps a lookup error to the reason recorded on the row
func classifyLookupError(err error) domain.FailureReason {
	switch {
	case errors.Is(err, domain.ErrTypeMismatch):
		return domain.ReasonTypeMismatch
	case errors.Is(err, domain.ErrNotFound):
		return domain.ReasonNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	case errors.Is(err, domain.ErrRegistryRejected), errors.Is(err, domain.ErrInvalidQuery):
		return domain.ReasonRejected
	default:
		return domain.ReasonUnavailable
	}
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "y", "1":
		return true
	default:
		return false
	}
}
