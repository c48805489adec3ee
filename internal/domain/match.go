package domain

// MatchKind classifies how a target was matched.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
	MatchNone  MatchKind = "none"
)

// Match methods recorded on each candidate
const (
	MethodContainment          = "containment"
	MethodTokenSortLevenshtein = "token_sort_levenshtein"
	MethodNone                 = "none"
)

// NoCandidate is the candidate index of a "no match" row.
const NoCandidate = -1

// MatchCandidate pairs a target record with a candidate record.
// Values are created by the matcher and treated as read-only afterwards.
type MatchCandidate struct {
	TargetIndex    int
	TargetName     string
	TargetID       NPI
	CandidateIndex int
	CandidateField string
	CandidateName  string
	CandidateID    NPI
	Kind           MatchKind
	Score          float64 // 0-100
	Method         string
	Ambiguous      bool // shares the top fuzzy score with another candidate
}

// Matched reports whether the row pairs the target with a candidate.
func (m MatchCandidate) Matched() bool {
	return m.Kind == MatchExact || m.Kind == MatchFuzzy
}

// Status returns the report label for the match kind.
func (m MatchCandidate) Status() string {
	switch m.Kind {
	case MatchExact:
		return "Matched (Exact)"
	case MatchFuzzy:
		return "Matched (Fuzzy)"
	default:
		return "Not Matched"
	}
}
