package report

import (
	"strings"
	"unicode/utf8"
)

// Wrap breaks text into lines of at most maxChars runes. Explicit newlines
// are kept, words longer than maxChars are split, and empty text yields a
// single empty line.
func Wrap(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1
	}
	var out []string
	for _, para := range strings.Split(text, "\n") {
		out = append(out, wrapParagraph(para, maxChars)...)
	}
	return out
}

func wrapParagraph(para string, maxChars int) []string {
	words := strings.Fields(para)
	if len(words) == 0 {
		return []string{""}
	}
	var (
		lines []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
		n = 0
	}
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		for wl > maxChars {
			if n > 0 {
				flush()
			}
			r := []rune(w)
			lines = append(lines, string(r[:maxChars]))
			w = string(r[maxChars:])
			wl -= maxChars
		}
		switch {
		case n == 0:
		case n+1+wl <= maxChars:
			cur.WriteByte(' ')
			n++
		default:
			flush()
		}
		cur.WriteString(w)
		n += wl
	}
	if n > 0 {
		flush()
	}
	return lines
}
