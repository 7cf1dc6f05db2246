// Package diagnosis turns free-form vision model output into a complete
// sample.Diagnosis. Parsing is total: every input, including the empty
// string, yields a value with all four fields set.
package diagnosis

import (
	"parascope/api/internal/sample"
)

const (
	DefaultVerdict       = sample.Negative
	DefaultConfidence    = 50
	DefaultParasiteCount = 0
)

// Extraction is what a single strategy found. Nil fields were not found.
type Extraction struct {
	Verdict       *sample.Verdict
	Confidence    *int
	ParasiteCount *int
	Findings      *string
}

// Strategy is one pure extraction rule.
type Strategy interface {
	Name() string
	Extract(text string) Extraction
}

// Parser composes strategies left to right; the first strategy to set a
// field wins that field, and defaults fill whatever is left.
type Parser struct {
	strategies []Strategy
}

func New(strategies ...Strategy) *Parser {
	return &Parser{strategies: strategies}
}

// Default is JSON -> labelled fields -> keyword verdict -> defaults.
func Default() *Parser {
	return New(JSONStrategy{}, LabelStrategy{}, KeywordStrategy{})
}

func (p *Parser) Parse(text string) sample.Diagnosis {
	var acc Extraction
	for _, s := range p.strategies {
		acc = merge(acc, s.Extract(text))
	}
	d := sample.Diagnosis{
		Verdict:       DefaultVerdict,
		Confidence:    DefaultConfidence,
		ParasiteCount: DefaultParasiteCount,
		Findings:      text,
	}
	if acc.Verdict != nil {
		d.Verdict = *acc.Verdict
	}
	if acc.Confidence != nil {
		d.Confidence = clamp(*acc.Confidence, 0, 100)
	}
	if acc.ParasiteCount != nil {
		d.ParasiteCount = max(*acc.ParasiteCount, 0)
	}
	if acc.Findings != nil {
		d.Findings = *acc.Findings
	}
	return d
}

// Parse runs the default strategy chain.
func Parse(text string) sample.Diagnosis {
	return Default().Parse(text)
}

func merge(acc, next Extraction) Extraction {
	if acc.Verdict == nil {
		acc.Verdict = next.Verdict
	}
	if acc.Confidence == nil {
		acc.Confidence = next.Confidence
	}
	if acc.ParasiteCount == nil {
		acc.ParasiteCount = next.ParasiteCount
	}
	if acc.Findings == nil {
		acc.Findings = next.Findings
	}
	return acc
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ptr[T any](v T) *T { return &v }
