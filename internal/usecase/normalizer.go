package usecase

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/logging"
)

// strippedPunctuation is removed outright; the remaining characters are kept as-is
const strippedPunctuation = ",."

// normalizedSuffix is appended to a column name to hold its normalized form
const normalizedSuffix = "_normalized"

// legalSuffixes are trailing organization tokens that carry no identity
var legalSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "llc": true, "llp": true, "pllc": true,
	"pc": true, "pa": true, "corp": true, "corporation": true, "co": true,
	"company": true, "ltd": true,
}

// orgAbbreviations map long organization words to their usual short forms
var orgAbbreviations = map[string]string{
	"medical":    "med",
	"group":      "grp",
	"hospital":   "hosp",
	"health":     "hlth",
	"center":     "ctr",
	"centre":     "ctr",
	"services":   "svcs",
	"associates": "assoc",
}

// NormalizeName canonicalizes a raw name or address.
// The result is lower-cased, has commas and periods removed and has whitespace
// trimmed and collapsed. Blank input returns domain.EmptyName.
// NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(raw string) domain.NormalizedName {
	s := norm.NFKC.String(raw)
	// a Caser keeps state, so each call gets its own
	s = cases.Lower(language.Und).String(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedPunctuation, r) {
			return -1
		}
		return r
	}, s)
	// strings.Fields splits on any Unicode whitespace run and drops the ends
	s = strings.Join(strings.Fields(s), " ")
	// removing punctuation can put a combining mark next to its base letter
	return domain.NormalizedName(norm.NFKC.String(s))
}

// CanonicalOrganization drops trailing legal suffixes and abbreviates common
// organization words of an already normalized name.
func CanonicalOrganization(name domain.NormalizedName) domain.NormalizedName {
	tokens := strings.Fields(string(name))
	for len(tokens) > 0 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	for i, tok := range tokens {
		if short, ok := orgAbbreviations[tok]; ok {
			tokens[i] = short
		}
	}
	return domain.NormalizedName(strings.Join(tokens, " "))
}

// NormalizerConfig holds configuration for the normalization stage
type NormalizerConfig struct {
	NameFields       []string
	IdentifierFields []string
}

// Normalizer produces normalized copies of tabular inputs.
type Normalizer struct {
	nameFields       []string
	identifierFields []string
	logger           zerolog.Logger
}

// NewNormalizer creates a normalizer for the configured columns
func NewNormalizer(config NormalizerConfig, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		nameFields:       config.NameFields,
		identifierFields: config.IdentifierFields,
		logger:           logging.Component(logger, "normalizer"),
	}
}

// NormalizeTable returns a copy of the table with a normalized column per name field
// and every identifier column sanitized. Columns missing from the table are skipped.
func (n *Normalizer) NormalizeTable(table *domain.Table, summary *domain.Summary) *domain.Table {
	out := table.Clone()

	var nameFields []string
	for _, field := range n.nameFields {
		if !table.HasColumn(field) {
			n.logger.Warn().Str("field", field).Msg("name column not present, skipping")
			continue
		}
		nameFields = append(nameFields, field)
		out.AddColumn(field + normalizedSuffix)
	}

	var idFields []string
	for _, field := range n.identifierFields {
		if table.HasColumn(field) {
			idFields = append(idFields, field)
		}
	}

	empty := 0
	for i := range out.Records {
		rec := &out.Records[i]
		for _, field := range nameFields {
			normalized := NormalizeName(rec.Fields[field])
			if normalized.IsEmpty() {
				empty++
			}
			rec.Fields[field+normalizedSuffix] = normalized.String()
		}
		for _, field := range idFields {
			rec.Fields[field] = sanitizeIdentifier(n.logger, *rec, field, summary).String()
		}
	}

	n.logger.Info().
		Int("records", len(out.Records)).
		Strs("name_fields", nameFields).
		Strs("identifier_fields", idFields).
		Int("empty_names", empty).
		Msg("normalized table")

	return out
}

// sanitizeIdentifier parses an identifier cell. A malformed value is counted and
// replaced with domain.NoNPI; the record itself is kept.
func sanitizeIdentifier(logger zerolog.Logger, rec domain.Record, field string, summary *domain.Summary) domain.NPI {
	id, err := domain.ParseNPI(rec.Fields[field])
	if err != nil {
		summary.Add(domain.KindMalformedRecord, 1)
		logger.Debug().Err(err).Int("record", rec.Index).Str("field", field).Msg("nulling malformed identifier")
		return domain.NoNPI
	}
	return id
}

// firstIdentifier returns the first valid identifier among fields.
func firstIdentifier(logger zerolog.Logger, rec domain.Record, fields []string, summary *domain.Summary) domain.NPI {
	for _, field := range fields {
		if id := sanitizeIdentifier(logger, rec, field, summary); id.Known() {
			return id
		}
	}
	return domain.NoNPI
}
