package domain

// Verdict is the outcome of checking a fuzzy match against identifiers.
type Verdict string

const (
	VerdictAgree        Verdict = "agree"
	VerdictDisagree     Verdict = "disagree"
	VerdictUnverifiable Verdict = "unverifiable"
)

// Reasons for an unverifiable verdict
const (
	ReasonTargetUnknown    = "target_unknown"
	ReasonCandidateUnknown = "candidate_unknown"
	ReasonBothUnknown      = "both_unknown"
)

// ValidationVerdict is derived from one fuzzy MatchCandidate. The match itself is not changed.
type ValidationVerdict struct {
	Match       MatchCandidate
	TargetID    NPI
	CandidateID NPI
	Verdict     Verdict
	Reason      string
}

// Status returns the report label.
func (v ValidationVerdict) Status() string {
	switch v.Verdict {
	case VerdictAgree:
		return "NPIs Match"
	case VerdictDisagree:
		return "NPIs Don't Match"
	default:
		return "Unverifiable"
	}
}

// ScoreBand aggregates verdicts for fuzzy scores in [Low, High).
type ScoreBand struct {
	Low          float64
	High         float64
	Agree        int
	Disagree     int
	Unverifiable int
}

// Accuracy of the band; 0 when nothing in it was verifiable.
func (b ScoreBand) Accuracy() float64 {
	if b.Agree+b.Disagree == 0 {
		return 0
	}
	return float64(b.Agree) / float64(b.Agree+b.Disagree)
}

// ValidationReport is the Match Validator's result.
type ValidationReport struct {
	Verdicts          []ValidationVerdict
	TotalFuzzy        int
	Verified          int
	Agree             int
	Disagree          int
	Unverifiable      int
	Accuracy          float64 // Agree / Verified, unrounded
	AccuracyDefined   bool
	MeanScoreAgree    float64
	MeanScoreDisagree float64
	Resolved          int
	Bands             []ScoreBand
}
