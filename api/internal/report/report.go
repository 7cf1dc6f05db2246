// Package report turns a completed sample into a clinician-facing report and
// lays that report out into printable pages.
package report

import (
	"fmt"
	"strings"
	"time"

	"parascope/api/internal/sample"
)

const (
	recommendPositive = "Parasites detected. Confirm by manual microscopy and start treatment according to the local protocol; schedule a follow-up smear to monitor parasite clearance."
	recommendNegative = "No parasites detected. If symptoms persist, repeat the smear in 12-24 hours; a single negative result does not exclude infection."
)

// Recommend depends on the verdict alone.
func Recommend(v sample.Verdict) string {
	if v == sample.Positive {
		return recommendPositive
	}
	return recommendNegative
}

// Summarize renders the fixed narrative for a diagnosis. Equal inputs give
// byte-equal output.
func Summarize(s sample.Sample, d sample.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sample %s was analysed and the result is %s", s.ID, strings.ToUpper(string(d.Verdict)))
	fmt.Fprintf(&b, " with %d%% confidence.", d.Confidence)
	switch d.ParasiteCount {
	case 0:
		b.WriteString(" No parasites were counted in the examined field.")
	case 1:
		b.WriteString(" 1 parasite was counted in the examined field.")
	default:
		fmt.Fprintf(&b, " %d parasites were counted in the examined field.", d.ParasiteCount)
	}
	if f := strings.TrimSpace(d.Findings); f != "" {
		fmt.Fprintf(&b, " Findings: %s", f)
	} else {
		b.WriteString(" No further findings were reported.")
	}
	return b.String()
}

// New builds the report for a completed sample. Annotations start empty.
func New(id string, s sample.Sample, d sample.Diagnosis, now time.Time) *sample.Report {
	return &sample.Report{
		ID:             id,
		SampleID:       s.ID,
		Summary:        Summarize(s, d),
		Recommendation: Recommend(d.Verdict),
		Diagnosis:      d,
		CreatedAt:      now,
	}
}
