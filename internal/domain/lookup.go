package domain

import (
	"strings"
	"time"
)

// LookupQuery asks the registry for a holder of a given type by name.
type LookupQuery struct {
	Type             HolderType
	FirstName        string
	LastName         string
	OrganizationName string
}

// Name returns the display name being searched for.
func (q LookupQuery) Name() string {
	if q.Type == HolderOrganization {
		return strings.TrimSpace(q.OrganizationName)
	}
	return strings.TrimSpace(strings.TrimSpace(q.FirstName) + " " + strings.TrimSpace(q.LastName))
}

// Searchable reports whether the query carries enough to send.
func (q LookupQuery) Searchable() bool {
	switch q.Type {
	case HolderIndividual:
		return !IsPlaceholder(q.FirstName) && !IsPlaceholder(q.LastName)
	case HolderOrganization:
		return !IsPlaceholder(q.OrganizationName)
	default:
		return false
	}
}

// LookupResult is the top registry answer for a query.
type LookupResult struct {
	NPI         NPI
	Type        HolderType
	Name        string
	Credential  string
	Address     string
	City        string
	State       string
	PostalCode  string
	Specialty   string
	RetrievedAt time.Time
}

// EnhancementStatus records what happened to one role of one record.
type EnhancementStatus string

const (
	StatusExisting   EnhancementStatus = "existing"
	StatusEnhanced   EnhancementStatus = "enhanced"
	StatusUnenhanced EnhancementStatus = "unenhanced"
	StatusSkipped    EnhancementStatus = "skipped"
)

// FailureReason explains an unenhanced or skipped role.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonNotFound     FailureReason = "not_found"
	ReasonTypeMismatch FailureReason = "type_mismatch"
	ReasonUnavailable  FailureReason = "unavailable"
	ReasonTimeout      FailureReason = "timeout"
	ReasonRejected     FailureReason = "rejected"
	ReasonNoQuery      FailureReason = "no_query"
)

// Enhancement is the outcome for one role (individual or organization) of a record.
type Enhancement struct {
	Role   HolderType
	Status EnhancementStatus
	Reason FailureReason
	Query  LookupQuery
	NPI    NPI
	Result *LookupResult
}

// EnhancedRecord is an input record plus one enhancement per role.
type EnhancedRecord struct {
	Record       Record
	Enhancements []Enhancement
}

// RoleStats counts enhancement outcomes for one holder type.
// Individual and organization stats are kept apart and never summed into one rate.
type RoleStats struct {
	Role       HolderType
	Records    int
	Existing   int
	Enhanced   int
	Unenhanced int
	Skipped    int
	Reasons    map[FailureReason]int
}

// Attempted is the number of lookups that went to the registry or cache.
func (s RoleStats) Attempted() int {
	return s.Enhanced + s.Unenhanced
}

// SuccessRate is Enhanced / Attempted, or 0 when nothing was attempted.
func (s RoleStats) SuccessRate() float64 {
	if s.Attempted() == 0 {
		return 0
	}
	return float64(s.Enhanced) / float64(s.Attempted())
}

// EnhancementReport is the Enhancer's result for a batch.
type EnhancementReport struct {
	Records       []EnhancedRecord
	Stats         []RoleStats
	Lookups       int64
	CacheHits     int64
	QueryStarted  time.Time
	QueryFinished time.Time
}

// StatsFor returns the stats of one role.
func (r *EnhancementReport) StatsFor(role HolderType) RoleStats {
	for _, s := range r.Stats {
		if s.Role == role {
			return s
		}
	}
	return RoleStats{Role: role, Reasons: map[FailureReason]int{}}
}
