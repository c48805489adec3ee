package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
	"github.com/vineetdaniels2108/npi-data-dashboard/internal/report"
)

// Column names of matches.csv
const (
	colTargetIndex    = "Target_Index"
	colTargetName     = "Target_Name"
	colTargetNPI      = "Target_NPI"
	colCandidateIndex = "Candidate_Index"
	colCandidateField = "Candidate_Field"
	colCandidateName  = "Candidate_Name"
	colCandidateNPI   = "Candidate_NPI"
	colMatchKind      = "Match_Kind"
	colMatchScore     = "Match_Score"
	colMatchMethod    = "Match_Method"
	colAmbiguous      = "Ambiguous"
	colMatchingStatus = "Matching_Status"
	colRecordIndex    = "Record_Index"
)

const retrievedAtLayout = time.RFC3339

// MatchHeader is the header of matches.csv.
var MatchHeader = []string{
	colTargetIndex, colTargetName, colTargetNPI,
	colCandidateIndex, colCandidateField, colCandidateName, colCandidateNPI,
	colMatchKind, colMatchScore, colMatchMethod, colAmbiguous, colMatchingStatus,
}

// ValidationHeader is the header of validation.csv.
var ValidationHeader = append(append([]string(nil), MatchHeader...),
	"Target_NPI_Used", "Candidate_NPI_Used", "Verdict", "Verdict_Reason", "Validation_Status")

// CoverageHeader is the header of coverage.csv.
var CoverageHeader = []string{
	"Entity_Type", "Rank", "NPI", "Alignment_Frequency", "Alignment_Percent", "Alignment_Name",
	"Alignment_State", "Name_Variants", "In_Complete_Dataset", "Reference_Frequency", "Coverage_Status",
}

// FrequencyHeader is the header of the reference frequency files.
var FrequencyHeader = []string{"Key", "Display_Name", "Count", "Percent", "Name_Variants"}

// BandHeader is the header of validation_bands.csv.
var BandHeader = []string{"Score_Low", "Score_High", "Agree", "Disagree", "Unverifiable", "Accuracy"}

func formatFloat(f float64) string {
	return report.FormatFloat(f)
}

func matchRow(m domain.MatchCandidate) []string {
	candidateIndex := ""
	if m.CandidateIndex != domain.NoCandidate {
		candidateIndex = strconv.Itoa(m.CandidateIndex)
	}
	return []string{
		strconv.Itoa(m.TargetIndex),
		m.TargetName,
		m.TargetID.String(),
		candidateIndex,
		m.CandidateField,
		m.CandidateName,
		m.CandidateID.String(),
		string(m.Kind),
		formatFloat(m.Score),
		m.Method,
		strconv.FormatBool(m.Ambiguous),
		m.Status(),
	}
}

// EncodeMatches renders matches as matches.csv rows.
func EncodeMatches(matches []domain.MatchCandidate) [][]string {
	rows := make([][]string, len(matches))
	for i, m := range matches {
		rows[i] = matchRow(m)
	}
	return rows
}

// DecodeMatches reads matches.csv rows back. Malformed identifiers are nulled and
// counted; a row whose index, kind or score cannot be read is skipped and counted.
func DecodeMatches(table *domain.Table, summary *domain.Summary) ([]domain.MatchCandidate, error) {
	if err := table.RequireColumns(colTargetIndex, colTargetName, colTargetNPI, colCandidateName, colCandidateNPI, colMatchKind, colMatchScore); err != nil {
		return nil, err
	}

	matches := make([]domain.MatchCandidate, 0, len(table.Records))
	for _, rec := range table.Records {
		m, err := decodeMatch(rec, summary)
		if err != nil {
			summary.Add(domain.KindMalformedRecord, 1)
			continue
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func decodeMatch(rec domain.Record, summary *domain.Summary) (domain.MatchCandidate, error) {
	targetIndex, err := strconv.Atoi(strings.TrimSpace(rec.Get(colTargetIndex)))
	if err != nil {
		return domain.MatchCandidate{}, fmt.Errorf("target index: %w", err)
	}

	candidateIndex := domain.NoCandidate
	if raw := strings.TrimSpace(rec.Get(colCandidateIndex)); raw != "" {
		if candidateIndex, err = strconv.Atoi(raw); err != nil {
			return domain.MatchCandidate{}, fmt.Errorf("candidate index: %w", err)
		}
	}

	kind := domain.MatchKind(strings.ToLower(strings.TrimSpace(rec.Get(colMatchKind))))
	switch kind {
	case domain.MatchExact, domain.MatchFuzzy, domain.MatchNone:
	default:
		return domain.MatchCandidate{}, fmt.Errorf("unknown match kind %q", kind)
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(rec.Get(colMatchScore)), 64)
	if err != nil {
		return domain.MatchCandidate{}, fmt.Errorf("score: %w", err)
	}

	ambiguous, _ := strconv.ParseBool(strings.TrimSpace(rec.Get(colAmbiguous)))

	return domain.MatchCandidate{
		TargetIndex:    targetIndex,
		TargetName:     rec.Get(colTargetName),
		TargetID:       parseID(rec.Get(colTargetNPI), summary),
		CandidateIndex: candidateIndex,
		CandidateField: rec.Get(colCandidateField),
		CandidateName:  rec.Get(colCandidateName),
		CandidateID:    parseID(rec.Get(colCandidateNPI), summary),
		Kind:           kind,
		Score:          score,
		Method:         rec.Get(colMatchMethod),
		Ambiguous:      ambiguous,
	}, nil
}

func parseID(raw string, summary *domain.Summary) domain.NPI {
	id, err := domain.ParseNPI(raw)
	if err != nil {
		summary.Add(domain.KindMalformedRecord, 1)
	}
	return id
}

// EncodeValidation renders verdicts as validation.csv rows.
func EncodeValidation(verdicts []domain.ValidationVerdict) [][]string {
	rows := make([][]string, len(verdicts))
	for i, v := range verdicts {
		rows[i] = append(matchRow(v.Match),
			v.TargetID.String(),
			v.CandidateID.String(),
			string(v.Verdict),
			v.Reason,
			v.Status(),
		)
	}
	return rows
}

// EncodeBands renders score bands as validation_bands.csv rows.
func EncodeBands(bands []domain.ScoreBand) [][]string {
	rows := make([][]string, len(bands))
	for i, b := range bands {
		rows[i] = []string{
			formatFloat(b.Low),
			formatFloat(b.High),
			strconv.Itoa(b.Agree),
			strconv.Itoa(b.Disagree),
			strconv.Itoa(b.Unverifiable),
			formatFloat(b.Accuracy()),
		}
	}
	return rows
}

// EncodeCoverage renders per-identifier coverage rows for every category.
func EncodeCoverage(r *domain.CoverageReport) [][]string {
	var rows [][]string
	for _, c := range r.Categories {
		for _, ic := range c.Identifiers {
			rows = append(rows, []string{
				ic.Category,
				strconv.Itoa(ic.Rank),
				ic.NPI.String(),
				strconv.Itoa(ic.Frequency),
				formatFloat(ic.Percent),
				ic.Name,
				ic.State,
				strconv.Itoa(ic.NameVariants),
				strconv.FormatBool(ic.InReference),
				strconv.Itoa(ic.ReferenceFrequency),
				ic.Status(),
			})
		}
	}
	return rows
}

// EncodeFrequencies renders a reference frequency table.
func EncodeFrequencies(entries []domain.FrequencyEntry) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Key, e.DisplayName, strconv.Itoa(e.Count), formatFloat(e.Percent), strconv.Itoa(e.NameVariants)}
	}
	return rows
}

// EncodeRecordCoverage renders the record-level coverage report.
func EncodeRecordCoverage(r *domain.CoverageReport) ([]string, [][]string) {
	header := []string{colRecordIndex}
	for _, c := range r.Categories {
		header = append(header, c.Category, c.Category+"_Coverage")
	}

	rows := make([][]string, len(r.Records))
	for i, rc := range r.Records {
		row := []string{strconv.Itoa(rc.Index)}
		for _, c := range r.Categories {
			row = append(row, rc.NPIs[c.Category].String(), string(rc.Statuses[c.Category]))
		}
		rows[i] = row
	}
	return header, rows
}

// enhancedColumns lists the columns added for one role prefix.
func enhancedColumns(prefix string) []string {
	return []string{
		prefix,
		prefix + "_Name",
		prefix + "_Credential",
		prefix + "_City",
		prefix + "_State",
		prefix + "_Specialty",
		prefix + "_Status",
		prefix + "_Reason",
		prefix + "_Retrieved_At",
	}
}

// EncodeEnhanced returns a copy of the input table with the per-role columns filled in.
// Original columns are kept unchanged.
func EncodeEnhanced(input *domain.Table, r *domain.EnhancementReport) *domain.Table {
	out := domain.NewTable(input.Header)

	roles := map[domain.HolderType]bool{}
	for _, rec := range r.Records {
		for _, e := range rec.Enhancements {
			roles[e.Role] = true
		}
	}
	prefixes := make([]string, 0, len(roles))
	for role := range roles {
		prefixes = append(prefixes, string(role))
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		for _, col := range enhancedColumns(prefix) {
			out.AddColumn(col)
		}
	}

	for _, er := range r.Records {
		fields := make(map[string]string, len(out.Header))
		for k, v := range er.Record.Fields {
			fields[k] = v
		}
		for _, e := range er.Enhancements {
			cols := enhancedColumns(string(e.Role))
			values := make([]string, len(cols))
			values[0] = e.NPI.String()
			if e.Result != nil {
				values[1] = e.Result.Name
				values[2] = e.Result.Credential
				values[3] = e.Result.City
				values[4] = e.Result.State
				values[5] = e.Result.Specialty
				values[8] = e.Result.RetrievedAt.UTC().Format(retrievedAtLayout)
			}
			values[6] = string(e.Status)
			values[7] = string(e.Reason)
			for i, col := range cols {
				fields[col] = values[i]
			}
		}
		out.Records = append(out.Records, domain.Record{Index: er.Record.Index, Fields: fields})
	}
	return out
}
