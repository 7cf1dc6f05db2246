package report

import (
	"fmt"
	"math"
)

// Layout describes the page geometry in points plus the wrapping rule.
type Layout struct {
	PageHeight float64
	LineHeight float64
	Margin     float64
	MaxChars   int
	Wrap       func(text string, maxChars int) []string
}

// A4 at 72 dpi with basicfont-sized lines.
func DefaultLayout() Layout {
	return Layout{
		PageHeight: 842,
		LineHeight: 16,
		Margin:     48,
		MaxChars:   70,
		Wrap:       Wrap,
	}
}

type Page struct {
	Number int      `json:"number"`
	Lines  []string `json:"lines"`
	Footer string   `json:"footer"`
}

// Paginate lays blocks out in one pass. A page break happens when the next
// line would overflow the usable height; every page holds at least one line
// so oversized line heights still make progress. Footers are stamped once the
// total page count is known.
func Paginate(blocks []string, l Layout) []Page {
	wrap := l.Wrap
	if wrap == nil {
		wrap = Wrap
	}
	perPage := l.LinesPerPage()

	var (
		pages []Page
		cur   = Page{Number: 1}
	)
	for _, b := range blocks {
		for _, line := range wrap(b, l.MaxChars) {
			if len(cur.Lines) >= perPage {
				pages = append(pages, cur)
				cur = Page{Number: cur.Number + 1}
			}
			cur.Lines = append(cur.Lines, line)
		}
	}
	pages = append(pages, cur)
	StampFooters(pages)
	return pages
}

// LinesPerPage is how many lines fit in the usable height, at least 1. The
// count is computed once so float drift in summed heights cannot move a break.
func (l Layout) LinesPerPage() int {
	if l.LineHeight <= 0 {
		return math.MaxInt32
	}
	n := int(math.Floor((l.PageHeight - 2*l.Margin) / l.LineHeight))
	if n < 1 {
		return 1
	}
	return n
}

func StampFooters(pages []Page) {
	for i := range pages {
		pages[i].Footer = fmt.Sprintf("Page %d of %d", pages[i].Number, len(pages))
	}
}
