package domain

// Concentration thresholds on the share of entries taken by the most frequent identifiers
const (
	HighConcentrationShare     = 10.0
	ModerateConcentrationShare = 5.0
	SkewedTopThreeShare        = 25.0
)

// ConcentrationLevel grades how much a category leans on its most frequent identifier.
type ConcentrationLevel string

const (
	ConcentrationLow      ConcentrationLevel = "low"
	ConcentrationModerate ConcentrationLevel = "moderate"
	ConcentrationHigh     ConcentrationLevel = "high"
)

// ClassifyConcentration grades a top-1 share given in percent.
func ClassifyConcentration(topShare float64) ConcentrationLevel {
	switch {
	case topShare > HighConcentrationShare:
		return ConcentrationHigh
	case topShare > ModerateConcentrationShare:
		return ConcentrationModerate
	default:
		return ConcentrationLow
	}
}

// IdentifierCoverage is the coverage of one identifier within one category.
type IdentifierCoverage struct {
	Category           string
	Rank               int
	NPI                NPI
	Frequency          int
	Percent            float64
	Name               string
	State              string
	NameVariants       int
	InReference        bool
	ReferenceFrequency int
}

// Status is "Found" or "Absent". Absence is a result, not an error.
func (c IdentifierCoverage) Status() string {
	if c.InReference {
		return "Found"
	}
	return "Absent"
}

// CategoryCoverage summarizes one identifier column of the analyzed set.
type CategoryCoverage struct {
	Category            string
	TotalEntries        int
	UniqueIdentifiers   int
	Present             int
	CoveragePercent     float64
	TopN                int
	TopNPresent         int
	TopNCoveragePercent float64
	TopShare            float64
	TopThreeShare       float64
	Concentration       ConcentrationLevel
	Skewed              bool
	Identifiers         []IdentifierCoverage
}

// FrequencyEntry is one group of a frequency table over the reference set.
type FrequencyEntry struct {
	Key          string
	DisplayName  string
	Count        int
	Percent      float64
	NameVariants int
}

// Overlap compares the identifier sets of two columns.
type Overlap struct {
	Left      string
	Right     string
	Both      int
	LeftOnly  int
	RightOnly int
}

// RecordCoverageStatus is the per-record presence of one category identifier.
type RecordCoverageStatus string

const (
	RecordFound  RecordCoverageStatus = "found"
	RecordAbsent RecordCoverageStatus = "absent"
	RecordNoNPI  RecordCoverageStatus = "no_npi"
)

// RecordCoverage lists category statuses for one analyzed record.
type RecordCoverage struct {
	Index    int
	NPIs     map[string]NPI
	Statuses map[string]RecordCoverageStatus
}

// CoverageReport is the Coverage Analyzer's result.
type CoverageReport struct {
	Categories             []CategoryCoverage
	OverallUnique          int
	OverallPresent         int
	OverallCoveragePercent float64
	ReferenceRows          int
	ReferenceUnique        int
	ReferenceByIdentifier  []FrequencyEntry
	ReferenceByName        []FrequencyEntry
	Overlaps               []Overlap
	Records                []RecordCoverage
}
