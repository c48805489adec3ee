package domain

import (
	"fmt"
	"strings"
)

// NPI is a National Provider Identifier: exactly ten ASCII digits.
// The zero value NoNPI marks an absent or rejected identifier.
type NPI string

// NoNPI is the sentinel for an absent identifier.
const NoNPI NPI = ""

// npiLength is the fixed length of an NPI
const npiLength = 10

// placeholderValues are spreadsheet artifacts that mean "no value" rather than bad data
var placeholderValues = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
	"na":   true,
	"-":    true,
}

// ParseNPI validates a raw identifier cell.
// Blank and placeholder cells return NoNPI with no error. Anything else that is
// not exactly ten digits returns NoNPI and ErrMalformedIdentifier.
func ParseNPI(raw string) (NPI, error) {
	value := strings.TrimSpace(raw)
	if IsPlaceholder(value) {
		return NoNPI, nil
	}

	if len(value) != npiLength {
		return NoNPI, fmt.Errorf("%w: %q", ErrMalformedIdentifier, value)
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return NoNPI, fmt.Errorf("%w: %q", ErrMalformedIdentifier, value)
		}
	}

	return NPI(value), nil
}

// IsPlaceholder reports whether a trimmed cell carries no value.
func IsPlaceholder(value string) bool {
	return placeholderValues[strings.ToLower(strings.TrimSpace(value))]
}

// Known reports whether the identifier is present.
func (n NPI) Known() bool {
	return n != NoNPI
}

func (n NPI) String() string {
	return string(n)
}

// HolderType is the NPI enumeration type of an identifier holder.
type HolderType string

const (
	HolderUnknown      HolderType = ""
	HolderIndividual   HolderType = "NPI-1"
	HolderOrganization HolderType = "NPI-2"
)

// ParseHolderType accepts registry codes and the record_type labels used by the complete dataset.
func ParseHolderType(raw string) HolderType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "npi-1", "1", "individual", "provider":
		return HolderIndividual
	case "npi-2", "2", "organization", "organisation":
		return HolderOrganization
	default:
		return HolderUnknown
	}
}

// Label returns the human readable role name.
func (h HolderType) Label() string {
	switch h {
	case HolderIndividual:
		return "individual"
	case HolderOrganization:
		return "organization"
	default:
		return "unknown"
	}
}
