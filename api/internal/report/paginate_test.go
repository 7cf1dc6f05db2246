package report

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identity keeps one block per line so line accounting is exact.
func identity(text string, _ int) []string { return []string{text} }

func flatten(pages []Page) []string {
	var out []string
	for _, p := range pages {
		out = append(out, p.Lines...)
	}
	return out
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line-%d", i)
	}
	return out
}

func TestPaginateZeroLines(t *testing.T) {
	pages := Paginate(nil, Layout{PageHeight: 100, LineHeight: 10, Margin: 10, Wrap: identity})
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0].Lines)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "Page 1 of 1", pages[0].Footer)
}

func TestPaginateExactBoundary(t *testing.T) {
	l := Layout{PageHeight: 100, LineHeight: 10, Margin: 10, Wrap: identity}
	require.Equal(t, 8, l.LinesPerPage())

	pages := Paginate(numbered(8), l)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0].Lines, 8)

	pages = Paginate(numbered(9), l)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Lines, 8)
	assert.Equal(t, []string{"line-8"}, pages[1].Lines)
	assert.Equal(t, "Page 2 of 2", pages[1].Footer)
}

func TestPaginateOversizedLineStillProgresses(t *testing.T) {
	l := Layout{PageHeight: 20, LineHeight: 50, Margin: 5, Wrap: identity}
	pages := Paginate(numbered(3), l)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Len(t, p.Lines, 1)
		assert.Equal(t, i+1, p.Number)
	}
}

func TestPaginateConservesLines(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		l := Layout{
			PageHeight: float64(40 + rng.Intn(400)),
			LineHeight: float64(1 + rng.Intn(30)),
			Margin:     float64(rng.Intn(20)),
			Wrap:       identity,
		}
		in := numbered(rng.Intn(300))
		pages := Paginate(in, l)

		if len(in) == 0 {
			assert.Equal(t, []string(nil), flatten(pages))
		} else {
			assert.Equal(t, in, flatten(pages))
		}
		for j, p := range pages {
			assert.Equal(t, j+1, p.Number)
			assert.LessOrEqual(t, len(p.Lines), l.LinesPerPage())
			assert.Equal(t, fmt.Sprintf("Page %d of %d", j+1, len(pages)), p.Footer)
			if len(in) > 0 {
				assert.NotEmpty(t, p.Lines)
			}
		}
		assert.Equal(t, pages, Paginate(in, l))
	}
}

func TestPaginateWrapsBlocks(t *testing.T) {
	l := Layout{PageHeight: 60, LineHeight: 10, Margin: 10, MaxChars: 5}
	pages := Paginate([]string{"aaaaa bbbbb ccccc", "", "ddddd"}, l)
	assert.Equal(t, []string{"aaaaa", "bbbbb", "ccccc", "", "ddddd"}, flatten(pages))
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Lines, 4)
}
