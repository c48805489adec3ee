package usecase

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// DefaultTopN is the number of most frequent identifiers checked for top-N coverage
const DefaultTopN = 10

// CoverageCategory is one identifier column of the analyzed set.
type CoverageCategory struct {
	Name       string
	IDField    string
	NameField  string
	StateField string
}

// OverlapPair names two identifier columns of the analyzed set to compare.
type OverlapPair struct {
	Left  string
	Right string
}

// CoverageConfig holds configuration for the coverage service
type CoverageConfig struct {
	TopN                int
	Categories          []CoverageCategory
	ReferenceIDFields   []string
	ReferenceNameFields []string
	Overlaps            []OverlapPair
}

// CoverageService compares analyzed identifiers with a reference dataset.
type CoverageService struct {
	topN                int
	categories          []CoverageCategory
	referenceIDFields   []string
	referenceNameFields []string
	overlaps            []OverlapPair
	logger              zerolog.Logger
}

// NewCoverageService creates a new coverage service
func NewCoverageService(config CoverageConfig, logger zerolog.Logger) *CoverageService {
	topN := config.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &CoverageService{
		topN:                topN,
		categories:          config.Categories,
		referenceIDFields:   config.ReferenceIDFields,
		referenceNameFields: config.ReferenceNameFields,
		overlaps:            config.Overlaps,
		logger:              logging.Component(logger, "coverage"),
	}
}

// frequencyGroup accumulates occurrences of one key in first-seen order.
type frequencyGroup struct {
	key      string
	display  string
	state    string
	count    int
	order    int
	variants map[domain.NormalizedName]bool
}

// frequencyCounter counts keys and remembers first appearance.
type frequencyCounter struct {
	groups map[string]*frequencyGroup
	total  int
}

func newFrequencyCounter() *frequencyCounter {
	return &frequencyCounter{groups: map[string]*frequencyGroup{}}
}

func (f *frequencyCounter) add(key, name, state string) {
	g, ok := f.groups[key]
	if !ok {
		g = &frequencyGroup{key: key, order: len(f.groups), variants: map[domain.NormalizedName]bool{}}
		f.groups[key] = g
	}
	g.count++
	f.total++
	if g.display == "" && strings.TrimSpace(name) != "" {
		g.display = strings.TrimSpace(name)
	}
	if g.state == "" && strings.TrimSpace(state) != "" {
		g.state = strings.TrimSpace(state)
	}
	if n := NormalizeName(name); !n.IsEmpty() {
		g.variants[n] = true
	}
}

// ranked returns groups by count descending, then first appearance.
func (f *frequencyCounter) ranked() []*frequencyGroup {
	out := make([]*frequencyGroup, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].order < out[j].order
	})
	return out
}

func (f *frequencyCounter) entries() []domain.FrequencyEntry {
	ranked := f.ranked()
	entries := make([]domain.FrequencyEntry, len(ranked))
	for i, g := range ranked {
		entries[i] = domain.FrequencyEntry{
			Key:          g.key,
			DisplayName:  g.display,
			Count:        g.count,
			Percent:      percent(g.count, f.total),
			NameVariants: len(g.variants),
		}
	}
	return entries
}

// Analyze computes coverage of the analyzed table against the reference table.
// Neither table is modified.
func (s *CoverageService) Analyze(ctx context.Context, analyzed, reference *domain.Table, summary *domain.Summary) (*domain.CoverageReport, error) {
	refIDFields := IdentifierColumns(reference, s.referenceIDFields)
	refByID, refByName := s.countReference(reference, refIDFields, summary)

	s.logger.Info().
		Int("reference_rows", len(reference.Records)).
		Strs("reference_id_fields", refIDFields).
		Int("reference_unique", len(refByID.groups)).
		Msg("reference indexed")

	report := &domain.CoverageReport{
		ReferenceRows:         len(reference.Records),
		ReferenceUnique:       len(refByID.groups),
		ReferenceByIdentifier: refByID.entries(),
		ReferenceByName:       refByName.entries(),
	}

	// identifiers per category and per record, sanitized once
	categories := s.presentCategories(analyzed)
	ids := make([][]domain.NPI, len(analyzed.Records))
	for i, rec := range analyzed.Records {
		ids[i] = make([]domain.NPI, len(categories))
		for c, cat := range categories {
			ids[i][c] = sanitizeIdentifier(s.logger, rec, cat.IDField, summary)
		}
	}

	overallSeen := map[domain.NPI]bool{}
	for c, cat := range categories {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		counter := newFrequencyCounter()
		for i, rec := range analyzed.Records {
			if id := ids[i][c]; id.Known() {
				counter.add(id.String(), rec.Get(cat.NameField), rec.Get(cat.StateField))
				overallSeen[id] = true
			}
		}
		report.Categories = append(report.Categories, s.categoryCoverage(cat, counter, refByID))
	}

	for id := range overallSeen {
		report.OverallUnique++
		if _, ok := refByID.groups[id.String()]; ok {
			report.OverallPresent++
		}
	}
	report.OverallCoveragePercent = percent(report.OverallPresent, report.OverallUnique)

	report.Overlaps = s.computeOverlaps(analyzed)
	report.Records = recordCoverage(analyzed, categories, ids, refByID)

	for _, cat := range report.Categories {
		s.logger.Info().
			Str("category", cat.Category).
			Int("unique", cat.UniqueIdentifiers).
			Int("present", cat.Present).
			Float64("coverage_pct", cat.CoveragePercent).
			Float64("top_n_coverage_pct", cat.TopNCoveragePercent).
			Str("concentration", string(cat.Concentration)).
			Msg("category coverage")
	}

	return report, nil
}

// countReference groups reference rows by identifier and by holder name.
// A row counts each distinct identifier once.
func (s *CoverageService) countReference(reference *domain.Table, idFields []string, summary *domain.Summary) (*frequencyCounter, *frequencyCounter) {
	byID := newFrequencyCounter()
	byName := newFrequencyCounter()

	for _, rec := range reference.Records {
		name := s.referenceName(rec)

		seen := map[domain.NPI]bool{}
		for _, field := range idFields {
			id := sanitizeIdentifier(s.logger, rec, field, summary)
			if !id.Known() || seen[id] {
				continue
			}
			seen[id] = true
			byID.add(id.String(), name, rec.Get("state"))
		}

		if key := NormalizeName(name); !key.IsEmpty() {
			byName.add(key.String(), name, "")
		}
	}
	return byID, byName
}

// referenceName is the first non-empty configured name; "first_name last_name"
// pairs are joined when both columns are configured next to each other.
func (s *CoverageService) referenceName(rec domain.Record) string {
	fields := s.referenceNameFields
	if len(fields) == 0 {
		fields = []string{"organization_name", "first_name+last_name"}
	}
	for _, field := range fields {
		var value string
		if parts := strings.Split(field, "+"); len(parts) > 1 {
			var vals []string
			for _, p := range parts {
				if v := strings.TrimSpace(rec.Get(p)); v != "" && !domain.IsPlaceholder(v) {
					vals = append(vals, v)
				}
			}
			value = strings.Join(vals, " ")
		} else {
			value = strings.TrimSpace(rec.Get(field))
		}
		if value != "" && !domain.IsPlaceholder(value) {
			return value
		}
	}
	return ""
}

func (s *CoverageService) presentCategories(analyzed *domain.Table) []CoverageCategory {
	var present []CoverageCategory
	for _, cat := range s.categories {
		if !analyzed.HasColumn(cat.IDField) {
			s.logger.Warn().Str("category", cat.Name).Str("field", cat.IDField).Msg("identifier column not present, skipping category")
			continue
		}
		present = append(present, cat)
	}
	return present
}

func (s *CoverageService) categoryCoverage(cat CoverageCategory, counter *frequencyCounter, refByID *frequencyCounter) domain.CategoryCoverage {
	ranked := counter.ranked()
	cc := domain.CategoryCoverage{
		Category:          cat.Name,
		TotalEntries:      counter.total,
		UniqueIdentifiers: len(ranked),
		TopN:              min(s.topN, len(ranked)),
		Identifiers:       make([]domain.IdentifierCoverage, len(ranked)),
	}

	for i, g := range ranked {
		refCount := 0
		if ref, ok := refByID.groups[g.key]; ok {
			refCount = ref.count
		}
		ic := domain.IdentifierCoverage{
			Category:           cat.Name,
			Rank:               i + 1,
			NPI:                domain.NPI(g.key),
			Frequency:          g.count,
			Percent:            percent(g.count, counter.total),
			Name:               g.display,
			State:              g.state,
			NameVariants:       len(g.variants),
			InReference:        refCount > 0,
			ReferenceFrequency: refCount,
		}
		cc.Identifiers[i] = ic

		if ic.InReference {
			cc.Present++
			if i < cc.TopN {
				cc.TopNPresent++
			}
		}
		if i == 0 {
			cc.TopShare = ic.Percent
		}
		if i < 3 {
			cc.TopThreeShare += ic.Percent
		}
	}

	cc.CoveragePercent = percent(cc.Present, cc.UniqueIdentifiers)
	cc.TopNCoveragePercent = percent(cc.TopNPresent, cc.TopN)
	cc.Concentration = domain.ClassifyConcentration(cc.TopShare)
	cc.Skewed = cc.TopThreeShare > domain.SkewedTopThreeShare
	return cc
}

func (s *CoverageService) computeOverlaps(analyzed *domain.Table) []domain.Overlap {
	var overlaps []domain.Overlap
	for _, pair := range s.overlaps {
		if !analyzed.HasColumn(pair.Left) || !analyzed.HasColumn(pair.Right) {
			continue
		}
		left := map[domain.NPI]bool{}
		right := map[domain.NPI]bool{}
		for _, rec := range analyzed.Records {
			if id, err := domain.ParseNPI(rec.Get(pair.Left)); err == nil && id.Known() {
				left[id] = true
			}
			if id, err := domain.ParseNPI(rec.Get(pair.Right)); err == nil && id.Known() {
				right[id] = true
			}
		}

		o := domain.Overlap{Left: pair.Left, Right: pair.Right}
		for id := range left {
			if right[id] {
				o.Both++
			} else {
				o.LeftOnly++
			}
		}
		for id := range right {
			if !left[id] {
				o.RightOnly++
			}
		}
		overlaps = append(overlaps, o)
	}
	return overlaps
}

func recordCoverage(analyzed *domain.Table, categories []CoverageCategory, ids [][]domain.NPI, refByID *frequencyCounter) []domain.RecordCoverage {
	out := make([]domain.RecordCoverage, len(analyzed.Records))
	for i, rec := range analyzed.Records {
		rc := domain.RecordCoverage{
			Index:    rec.Index,
			NPIs:     make(map[string]domain.NPI, len(categories)),
			Statuses: make(map[string]domain.RecordCoverageStatus, len(categories)),
		}
		for c, cat := range categories {
			id := ids[i][c]
			rc.NPIs[cat.Name] = id
			switch {
			case !id.Known():
				rc.Statuses[cat.Name] = domain.RecordNoNPI
			case refByID.groups[id.String()] != nil:
				rc.Statuses[cat.Name] = domain.RecordFound
			default:
				rc.Statuses[cat.Name] = domain.RecordAbsent
			}
		}
		out[i] = rc
	}
	return out
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
