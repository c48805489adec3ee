package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// Columns of the complete dataset read by the reference registry
const (
	refColumnNPI          = "npi"
	refColumnRecordType   = "record_type"
	refColumnOrganization = "organization_name"
	refColumnFirstName    = "first_name"
	refColumnLastName     = "last_name"
	refColumnCredential   = "credential"
	refColumnAddress      = "address"
	refColumnCity         = "city"
	refColumnState        = "state"
	refColumnZip          = "zip"
	refColumnSpecialty    = "primary_specialty"
)

// referenceEntry is one holder of the complete dataset with its search keys.
type referenceEntry struct {
	result       domain.LookupResult
	first        domain.NormalizedName
	last         domain.NormalizedName
	organization domain.NormalizedName
}

// ReferenceRegistry answers registry lookups from the complete dataset.
// It is read-only after construction and safe for concurrent use.
type ReferenceRegistry struct {
	entries []referenceEntry
	byNPI   map[domain.NPI]int
	loaded  time.Time
	logger  zerolog.Logger
}

// NewReferenceRegistry indexes reference rows. Rows without a valid identifier
// are skipped; the first row seen for an identifier wins.
func NewReferenceRegistry(reference *domain.Table, logger zerolog.Logger) *ReferenceRegistry {
	r := &ReferenceRegistry{
		byNPI:  make(map[domain.NPI]int, len(reference.Records)),
		loaded: time.Now().UTC(),
		logger: logging.Component(logger, "reference_registry"),
	}

	skipped := 0
	for _, rec := range reference.Records {
		id, err := domain.ParseNPI(rec.Get(refColumnNPI))
		if err != nil || !id.Known() {
			skipped++
			continue
		}
		if _, dup := r.byNPI[id]; dup {
			continue
		}
		r.byNPI[id] = len(r.entries)
		r.entries = append(r.entries, newReferenceEntry(id, rec, r.loaded))
	}

	r.logger.Info().Int("holders", len(r.entries)).Int("skipped", skipped).Msg("reference registry indexed")
	return r
}

func newReferenceEntry(id domain.NPI, rec domain.Record, loaded time.Time) referenceEntry {
	first := cleanCell(rec.Get(refColumnFirstName))
	last := cleanCell(rec.Get(refColumnLastName))
	org := cleanCell(rec.Get(refColumnOrganization))

	holder := domain.ParseHolderType(rec.Get(refColumnRecordType))
	if holder == domain.HolderUnknown {
		switch {
		case org != "":
			holder = domain.HolderOrganization
		case first != "" || last != "":
			holder = domain.HolderIndividual
		}
	}

	name := org
	if holder == domain.HolderIndividual || name == "" {
		name = strings.TrimSpace(first + " " + last)
	}

	return referenceEntry{
		result: domain.LookupResult{
			NPI:         id,
			Type:        holder,
			Name:        name,
			Credential:  cleanCell(rec.Get(refColumnCredential)),
			Address:     cleanCell(rec.Get(refColumnAddress)),
			City:        cleanCell(rec.Get(refColumnCity)),
			State:       cleanCell(rec.Get(refColumnState)),
			PostalCode:  cleanCell(rec.Get(refColumnZip)),
			Specialty:   cleanCell(rec.Get(refColumnSpecialty)),
			RetrievedAt: loaded,
		},
		first:        NormalizeName(first),
		last:         NormalizeName(last),
		organization: NormalizeName(org),
	}
}

func cleanCell(value string) string {
	if domain.IsPlaceholder(value) {
		return ""
	}
	return strings.TrimSpace(value)
}

// Size returns the number of indexed holders.
func (r *ReferenceRegistry) Size() int {
	return len(r.entries)
}

// Get returns the holder with the given identifier.
func (r *ReferenceRegistry) Get(id domain.NPI) (*domain.LookupResult, error) {
	i, ok := r.byNPI[id]
	if !ok {
		return nil, fmt.Errorf("%w: npi %s", domain.ErrNotFound, id)
	}
	result := r.entries[i].result
	return &result, nil
}

// Search returns up to limit holders of the query type whose names match, in
// dataset order. A trailing "*" on a name is a prefix wildcard and needs at
// least two characters before it, as the public registry does.
func (r *ReferenceRegistry) Search(query domain.LookupQuery, limit int) ([]domain.LookupResult, error) {
	if !query.Searchable() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuery, query.Name())
	}

	var matchers []nameMatcher
	if query.Type == domain.HolderOrganization {
		matchers = []nameMatcher{newNameMatcher(query.OrganizationName)}
	} else {
		matchers = []nameMatcher{newNameMatcher(query.FirstName), newNameMatcher(query.LastName)}
	}

	for _, m := range matchers {
		if m.prefix && utf8.RuneCountInString(string(m.name)) < minWildcardPrefix {
			return nil, fmt.Errorf("%w: wildcard needs at least %d characters before it", domain.ErrInvalidQuery, minWildcardPrefix)
		}
	}

	var results []domain.LookupResult
	for _, e := range r.entries {
		if e.result.Type != query.Type {
			continue
		}
		var ok bool
		if query.Type == domain.HolderOrganization {
			ok = matchers[0].matches(e.organization)
		} else {
			ok = matchers[0].matches(e.first) && matchers[1].matches(e.last)
		}
		if !ok {
			continue
		}
		results = append(results, e.result)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}

// Lookup returns the first matching holder. It satisfies domain.RegistryClient.
func (r *ReferenceRegistry) Lookup(ctx context.Context, query domain.LookupQuery) (*domain.LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := r.Search(query, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s %q", domain.ErrNotFound, query.Type, query.Name())
	}
	return &results[0], nil
}

const minWildcardPrefix = 2

// nameMatcher compares normalized names, optionally by prefix.
type nameMatcher struct {
	name   domain.NormalizedName
	prefix bool
}

func newNameMatcher(raw string) nameMatcher {
	raw = strings.TrimSpace(raw)
	prefix := strings.HasSuffix(raw, "*")
	return nameMatcher{name: NormalizeName(strings.TrimSuffix(raw, "*")), prefix: prefix}
}

func (m nameMatcher) matches(candidate domain.NormalizedName) bool {
	if candidate.IsEmpty() {
		return false
	}
	if m.prefix {
		return strings.HasPrefix(string(candidate), string(m.name))
	}
	return candidate == m.name
}
