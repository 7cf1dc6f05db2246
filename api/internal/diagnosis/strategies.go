package diagnosis

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"parascope/api/internal/sample"
	"parascope/api/internal/util"
)

// JSONStrategy reads the first embedded JSON object. When one decodes, every
// field is set: missing keys fall back to the defaults (and the raw text for
// findings) right here, so later strategies never override a JSON answer.
type JSONStrategy struct{}

func (JSONStrategy) Name() string { return "json" }

func (JSONStrategy) Extract(text string) Extraction {
	obj, ok := util.FirstJSONObject(text)
	if !ok {
		return Extraction{}
	}

	verdict := DefaultVerdict
	if v, ok := lookup(obj, "result", "verdict", "diagnosis"); ok {
		if strings.Contains(strings.ToLower(stringify(v)), "positive") {
			verdict = sample.Positive
		}
	}
	confidence := DefaultConfidence
	if v, ok := lookup(obj, "confidence", "probability"); ok {
		if n, ok := toConfidence(v); ok {
			confidence = n
		}
	}
	count := DefaultParasiteCount
	if v, ok := lookup(obj, "parasites_count", "parasite_count", "parasitecount"); ok {
		if n, ok := toInt(v); ok {
			count = n
		}
	}
	findings := text
	if v, ok := lookup(obj, "description", "findings"); ok {
		if s := strings.TrimSpace(stringify(v)); s != "" {
			findings = s
		}
	}
	return Extraction{
		Verdict:       ptr(verdict),
		Confidence:    ptr(confidence),
		ParasiteCount: ptr(count),
		Findings:      ptr(findings),
	}
}

var (
	reLabelVerdict    = regexp.MustCompile(`(?i)\b(?:diagnosis|result|verdict)\b\W{0,6}(positive|negative)\b`)
	reLabelConfidence = regexp.MustCompile(`(?i)\b(?:confidence|probability|certainty)\b(?:\s+(?:level|score))?\W{0,6}(\d{1,3}(?:\.\d+)?)`)
	reCountBefore     = regexp.MustCompile(`(?i)\b(\d+)\s+(?:\w+\s+)?parasites?\b`)
	reCountAfter      = regexp.MustCompile(`(?i)\bparasites?\s*(?:count|detected|found|seen)?\s*[:=\-]\s*(\d+)`)
)

// LabelStrategy looks for "Label: value" style fields in prose.
type LabelStrategy struct{}

func (LabelStrategy) Name() string { return "label" }

func (LabelStrategy) Extract(text string) Extraction {
	var out Extraction
	if m := reLabelVerdict.FindStringSubmatch(text); m != nil {
		out.Verdict = ptr(sample.Verdict(strings.ToLower(m[1])))
	}
	if m := reLabelConfidence.FindStringSubmatch(text); m != nil {
		if c, ok := toConfidence(m[1]); ok {
			out.Confidence = ptr(c)
		}
	}
	if m := reCountAfter.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out.ParasiteCount = ptr(n)
		}
	} else if m := reCountBefore.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out.ParasiteCount = ptr(n)
		}
	}
	return out
}

// KeywordStrategy decides the verdict only: any "positive" or "detected"
// anywhere in the text reads as positive, otherwise negative.
type KeywordStrategy struct{}

func (KeywordStrategy) Name() string { return "keyword" }

func (KeywordStrategy) Extract(text string) Extraction {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "positive") || strings.Contains(lower, "detected") {
		return Extraction{Verdict: ptr(sample.Positive)}
	}
	return Extraction{Verdict: ptr(sample.Negative)}
}

// lookup matches keys case-insensitively, trying names in order.
func lookup(obj map[string]any, names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := obj[name]; ok && v != nil {
			return v, true
		}
		for k, v := range obj {
			if v != nil && strings.EqualFold(k, name) {
				return v, true
			}
		}
	}
	return nil, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

var reLeadingNumber = regexp.MustCompile(`^[+-]?\d+(?:\.\d+)?`)

func toFloat(v any) (float64, bool) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case float64:
		return x, true
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, false
	}
	m := reLeadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(f)), true
}

// toConfidence accepts 0..100 and, for values strictly between 0 and 1,
// a fraction that is scaled to percent.
func toConfidence(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	if f > 0 && f < 1 {
		f *= 100
	}
	return int(math.Trunc(f)), true
}
