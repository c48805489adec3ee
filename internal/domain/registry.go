package domain

import (
	"bytes"
	"encoding/json"
)

// RegistrySearchResponse is the NPPES NPI Registry API (version 2.1) search response.
type RegistrySearchResponse struct {
	ResultCount int              `json:"result_count"`
	Results     []RegistryResult `json:"results"`
	Errors      []RegistryError  `json:"Errors,omitempty"`
}

// RegistryError is a validation failure reported by the registry with HTTP 200.
type RegistryError struct {
	Description string `json:"description"`
	Field       string `json:"field,omitempty"`
	Number      string `json:"number,omitempty"`
}

// RegistryResult is one provider or organization record.
type RegistryResult struct {
	Number          RegistryNumber     `json:"number"`
	EnumerationType string             `json:"enumeration_type"`
	Basic           RegistryBasic      `json:"basic"`
	Addresses       []RegistryAddress  `json:"addresses"`
	Taxonomies      []RegistryTaxonomy `json:"taxonomies"`
}

// RegistryBasic holds the name block of a registry record.
type RegistryBasic struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	MiddleName       string `json:"middle_name,omitempty"`
	Credential       string `json:"credential,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	EnumerationType  string `json:"enumeration_type,omitempty"`
	Status           string `json:"status,omitempty"`
}

// RegistryAddress is a location or mailing address.
type RegistryAddress struct {
	Address1       string `json:"address_1"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	AddressPurpose string `json:"address_purpose"`
}

// RegistryTaxonomy is a specialty classification.
type RegistryTaxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
}

// RegistryNumber decodes the "number" field, which the registry has served both as a
// JSON string and as a JSON number.
type RegistryNumber string

// UnmarshalJSON accepts a string or a number.
func (n *RegistryNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = RegistryNumber(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = RegistryNumber(num.String())
	return nil
}
