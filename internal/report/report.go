// Package report renders end-of-stage summaries as plain text tables.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

// Accuracy levels used for the fuzzy matching verdict
const (
	ReliableAccuracy = 0.95
	ReviewAccuracy   = 0.5
)

// Table renders headers and rows. Numeric columns are right aligned by the caller's choice of rightAligned.
func Table(w io.Writer, headers []string, rows [][]string, rightAligned ...int) error {
	config := tablewriter.Config{}
	if len(rightAligned) > 0 {
		align := make([]tw.Align, len(headers))
		for i := range align {
			align[i] = tw.AlignLeft
		}
		for _, col := range rightAligned {
			if col >= 0 && col < len(align) {
				align[col] = tw.AlignRight
			}
		}
		config.Row.Alignment = tw.CellAlignment{PerColumn: align}
	}

	table := tablewriter.NewTable(w, tablewriter.WithConfig(config))

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	table.Header(header...)

	for _, row := range rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = cell
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	return table.Render()
}

// Errors renders the per-kind error counts of a stage.
func Errors(w io.Writer, summary *domain.Summary) error {
	rows := make([][]string, 0, len(domain.ErrorKinds)+1)
	for _, kind := range domain.ErrorKinds {
		rows = append(rows, []string{string(kind), strconv.FormatInt(summary.Count(kind), 10)})
	}
	rows = append(rows, []string{"total", strconv.FormatInt(summary.Total(), 10)})
	return Table(w, []string{"Error Kind", "Count"}, rows, 1)
}

// Matches renders match kind counts.
func Matches(w io.Writer, matches []domain.MatchCandidate, targets int) error {
	counts := map[domain.MatchKind]int{}
	matched := map[int]bool{}
	ambiguous := 0
	for _, m := range matches {
		counts[m.Kind]++
		if m.Matched() {
			matched[m.TargetIndex] = true
		}
		if m.Ambiguous {
			ambiguous++
		}
	}
	rows := [][]string{
		{"targets", strconv.Itoa(targets)},
		{"matched targets", strconv.Itoa(len(matched))},
		{"rows", strconv.Itoa(len(matches))},
		{"exact", strconv.Itoa(counts[domain.MatchExact])},
		{"fuzzy", strconv.Itoa(counts[domain.MatchFuzzy])},
		{"not matched", strconv.Itoa(counts[domain.MatchNone])},
		{"ambiguous", strconv.Itoa(ambiguous)},
	}
	return Table(w, []string{"Matches", "Count"}, rows, 1)
}

// Enhancement renders per-role outcomes. Roles are never summed.
func Enhancement(w io.Writer, r *domain.EnhancementReport) error {
	rows := make([][]string, 0, len(r.Stats))
	for _, s := range r.Stats {
		rows = append(rows, []string{
			s.Role.Label(),
			strconv.Itoa(s.Records),
			strconv.Itoa(s.Existing),
			strconv.Itoa(s.Enhanced),
			strconv.Itoa(s.Unenhanced),
			strconv.Itoa(s.Skipped),
			Percent(s.SuccessRate() * 100),
		})
	}
	if err := Table(w, []string{"Role", "Records", "Existing", "Enhanced", "Unenhanced", "Skipped", "Success"}, rows, 1, 2, 3, 4, 5, 6); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "lookups: %d, cache hits: %d, elapsed: %s\n",
		r.Lookups, r.CacheHits, r.QueryFinished.Sub(r.QueryStarted).Round(1e6))
	return err
}

// Coverage renders category coverage and overlaps.
func Coverage(w io.Writer, r *domain.CoverageReport) error {
	rows := make([][]string, 0, len(r.Categories)+1)
	for _, c := range r.Categories {
		concentration := string(c.Concentration)
		if c.Skewed {
			concentration += ", skewed"
		}
		rows = append(rows, []string{
			c.Category,
			strconv.Itoa(c.TotalEntries),
			strconv.Itoa(c.UniqueIdentifiers),
			strconv.Itoa(c.Present),
			Percent(c.CoveragePercent),
			fmt.Sprintf("%d/%d", c.TopNPresent, c.TopN),
			Percent(c.TopShare),
			concentration,
		})
	}
	rows = append(rows, []string{
		"overall", "", strconv.Itoa(r.OverallUnique), strconv.Itoa(r.OverallPresent),
		Percent(r.OverallCoveragePercent), "", "", "",
	})
	if err := Table(w, []string{"Category", "Entries", "Unique", "Present", "Coverage", "Top N", "Top Share", "Concentration"}, rows, 1, 2, 3, 4, 5, 6); err != nil {
		return err
	}

	if len(r.Overlaps) == 0 {
		return nil
	}
	overlaps := make([][]string, 0, len(r.Overlaps))
	for _, o := range r.Overlaps {
		overlaps = append(overlaps, []string{
			o.Left + " x " + o.Right,
			strconv.Itoa(o.Both),
			strconv.Itoa(o.LeftOnly),
			strconv.Itoa(o.RightOnly),
		})
	}
	return Table(w, []string{"Overlap", "Both", "Left Only", "Right Only"}, overlaps, 1, 2, 3)
}

// Validation renders verdict counts, accuracy and the fuzzy matching verdict.
func Validation(w io.Writer, r *domain.ValidationReport) error {
	accuracy := "undefined"
	if r.AccuracyDefined {
		accuracy = fmt.Sprintf("%s (%d/%d)", FormatFloat(r.Accuracy), r.Agree, r.Verified)
	}
	rows := [][]string{
		{"fuzzy matches", strconv.Itoa(r.TotalFuzzy)},
		{"verified", strconv.Itoa(r.Verified)},
		{"agree", strconv.Itoa(r.Agree)},
		{"disagree", strconv.Itoa(r.Disagree)},
		{"unverifiable", strconv.Itoa(r.Unverifiable)},
		{"resolved identifiers", strconv.Itoa(r.Resolved)},
		{"accuracy", accuracy},
		{"mean score (agree)", FormatFloat(r.MeanScoreAgree)},
		{"mean score (disagree)", FormatFloat(r.MeanScoreDisagree)},
	}
	if err := Table(w, []string{"Validation", "Value"}, rows, 1); err != nil {
		return err
	}

	if len(r.Bands) > 0 {
		bands := make([][]string, 0, len(r.Bands))
		for _, b := range r.Bands {
			bands = append(bands, []string{
				fmt.Sprintf("%g-%g", b.Low, b.High),
				strconv.Itoa(b.Agree),
				strconv.Itoa(b.Disagree),
				strconv.Itoa(b.Unverifiable),
				FormatFloat(b.Accuracy()),
			})
		}
		if err := Table(w, []string{"Score Band", "Agree", "Disagree", "Unverifiable", "Accuracy"}, bands, 1, 2, 3, 4); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "verdict: %s\n", Verdict(r))
	return err
}

// Verdict states how far fuzzy matches can be trusted without identifier verification.
func Verdict(r *domain.ValidationReport) string {
	switch {
	case !r.AccuracyDefined:
		return "no fuzzy match could be verified; treat fuzzy matches as candidates only"
	case r.Accuracy >= ReliableAccuracy:
		return "fuzzy matches agree with identifiers; spot checks are enough"
	case r.Accuracy >= ReviewAccuracy:
		return "fuzzy matches need manual review before use"
	default:
		return "fuzzy matches are unreliable; use them as candidates and verify every identifier"
	}
}

// Percent formats a percentage for display.
func Percent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
}

// FormatFloat formats a float at full precision.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
