package report

import (
	"fmt"
	"strings"

	"parascope/api/internal/sample"
)

// Document returns the report as ordered text blocks ready for Paginate.
// Empty strings are deliberate spacer lines.
func Document(rep *sample.Report) []string {
	d := rep.Diagnosis
	blocks := []string{
		"PARASITOLOGY ANALYSIS REPORT",
		"",
		"Report: " + rep.ID,
		"Sample: " + rep.SampleID,
		"Created: " + rep.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	if rep.PatientName != "" {
		blocks = append(blocks, "Patient: "+rep.PatientName)
	}
	if rep.SpeciesLabel != "" {
		blocks = append(blocks, "Species: "+rep.SpeciesLabel)
	}
	blocks = append(blocks,
		"",
		"Result: "+strings.ToUpper(string(d.Verdict)),
		fmt.Sprintf("Confidence: %d%%", d.Confidence),
		fmt.Sprintf("Parasite count: %d", d.ParasiteCount),
		"",
		"Findings",
		orDash(d.Findings),
		"",
		"Summary",
		rep.Summary,
		"",
		"Recommendation",
		rep.Recommendation,
	)
	if rep.PatientNotes != "" {
		blocks = append(blocks, "", "Clinician notes", rep.PatientNotes)
	}
	return blocks
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
