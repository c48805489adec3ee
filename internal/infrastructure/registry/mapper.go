package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

// Address purposes used by the registry
const (
	AddressPurposeLocation = "LOCATION"
	AddressPurposeMailing  = "MAILING"
)

// MapToLookupResult converts a registry record to our domain LookupResult
func MapToLookupResult(result *domain.RegistryResult, retrievedAt time.Time) (*domain.LookupResult, error) {
	npi, err := domain.ParseNPI(string(result.Number))
	if err != nil {
		return nil, fmt.Errorf("%w: registry returned %w", domain.ErrRegistryUnavailable, err)
	}
	if !npi.Known() {
		return nil, fmt.Errorf("%w: registry result without number", domain.ErrRegistryUnavailable)
	}

	holderType := domain.ParseHolderType(result.EnumerationType)
	if holderType == domain.HolderUnknown {
		holderType = domain.ParseHolderType(result.Basic.EnumerationType)
	}

	address := primaryAddress(result.Addresses)

	return &domain.LookupResult{
		NPI:         npi,
		Type:        holderType,
		Name:        holderName(result.Basic, holderType),
		Credential:  strings.TrimSpace(result.Basic.Credential),
		Address:     strings.TrimSpace(address.Address1),
		City:        strings.TrimSpace(address.City),
		State:       strings.TrimSpace(address.State),
		PostalCode:  strings.TrimSpace(address.PostalCode),
		Specialty:   primarySpecialty(result.Taxonomies),
		RetrievedAt: retrievedAt.UTC(),
	}, nil
}

// MapToRegistryResult is the inverse of MapToLookupResult, used to serve registry responses
func MapToRegistryResult(result *domain.LookupResult) domain.RegistryResult {
	basic := domain.RegistryBasic{
		Credential:      result.Credential,
		EnumerationType: string(result.Type),
	}
	if result.Type == domain.HolderOrganization {
		basic.OrganizationName = result.Name
	} else {
		first, last := splitName(result.Name)
		basic.FirstName = first
		basic.LastName = last
	}

	var taxonomies []domain.RegistryTaxonomy
	if result.Specialty != "" {
		taxonomies = []domain.RegistryTaxonomy{{Desc: result.Specialty, Primary: true}}
	}

	return domain.RegistryResult{
		Number:          domain.RegistryNumber(result.NPI),
		EnumerationType: string(result.Type),
		Basic:           basic,
		Addresses: []domain.RegistryAddress{{
			Address1:       result.Address,
			City:           result.City,
			State:          result.State,
			PostalCode:     result.PostalCode,
			AddressPurpose: AddressPurposeLocation,
		}},
		Taxonomies: taxonomies,
	}
}

// holderName builds the display name for the holder type
func holderName(basic domain.RegistryBasic, holderType domain.HolderType) string {
	if holderType == domain.HolderOrganization || (basic.FirstName == "" && basic.LastName == "") {
		return strings.TrimSpace(basic.OrganizationName)
	}
	return strings.TrimSpace(strings.TrimSpace(basic.FirstName) + " " + strings.TrimSpace(basic.LastName))
}

// primaryAddress prefers the practice location over the mailing address
func primaryAddress(addresses []domain.RegistryAddress) domain.RegistryAddress {
	for _, a := range addresses {
		if strings.EqualFold(a.AddressPurpose, AddressPurposeLocation) {
			return a
		}
	}
	if len(addresses) > 0 {
		return addresses[0]
	}
	return domain.RegistryAddress{}
}

// primarySpecialty returns the primary taxonomy description, or the first one
func primarySpecialty(taxonomies []domain.RegistryTaxonomy) string {
	for _, t := range taxonomies {
		if t.Primary {
			return strings.TrimSpace(t.Desc)
		}
	}
	if len(taxonomies) > 0 {
		return strings.TrimSpace(taxonomies[0].Desc)
	}
	return ""
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return "", fields[0]
	default:
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
}
