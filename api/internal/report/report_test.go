package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parascope/api/internal/sample"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/errgroup"
)

func TestRecommendDependsOnVerdictOnly(t *testing.T) {
	a := sample.Diagnosis{Verdict: sample.Positive, Confidence: 10, ParasiteCount: 1, Findings: "a"}
	b := sample.Diagnosis{Verdict: sample.Positive, Confidence: 99, ParasiteCount: 400, Findings: "b"}
	assert.Equal(t, Recommend(a.Verdict), Recommend(b.Verdict))
	assert.NotEqual(t, Recommend(sample.Positive), Recommend(sample.Negative))

	s := sample.Sample{ID: "s-1"}
	ra := New("r-1", s, a, time.Unix(0, 0))
	rb := New("r-2", s, b, time.Unix(0, 0))
	assert.Equal(t, ra.Recommendation, rb.Recommendation)
}

func TestSummarizeIsDeterministic(t *testing.T) {
	s := sample.Sample{ID: "s-42", ImageRef: "ref"}
	d := sample.Diagnosis{Verdict: sample.Positive, Confidence: 87, ParasiteCount: 12, Findings: "ring forms"}
	first := Summarize(s, d)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Summarize(s, d))
	}
	assert.Equal(t,
		"Sample s-42 was analysed and the result is POSITIVE with 87% confidence. 12 parasites were counted in the examined field. Findings: ring forms",
		first)

	neg := Summarize(s, sample.Diagnosis{Verdict: sample.Negative, Confidence: 50})
	assert.Contains(t, neg, "No parasites were counted")
	assert.Contains(t, neg, "No further findings")
}

func TestNewCopiesDiagnosis(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := sample.Diagnosis{Verdict: sample.Negative, Confidence: 91, Findings: "clear"}
	rep := New("r-1", sample.Sample{ID: "s-1"}, d, now)
	assert.Equal(t, "s-1", rep.SampleID)
	assert.Equal(t, d, rep.Diagnosis)
	assert.Equal(t, now, rep.CreatedAt)
	assert.Empty(t, rep.PatientName)
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []string{""}, Wrap("", 10))
	assert.Equal(t, []string{"the quick", "brown fox"}, Wrap("the quick brown fox", 10))
	assert.Equal(t, []string{"abcde", "fghij", "k"}, Wrap("abcdefghijk", 5))
	assert.Equal(t, []string{"a", "", "b"}, Wrap("a\n\nb", 10))
	assert.Equal(t, []string{"ab", "cdefg", "hi"}, Wrap("ab cdefghi", 5))

	for _, line := range Wrap(strings.Repeat("word ", 100), 17) {
		assert.LessOrEqual(t, len(line), 17)
	}
}

func TestDocumentIncludesAnnotations(t *testing.T) {
	rep := New("r-1", sample.Sample{ID: "s-1"}, sample.Diagnosis{Verdict: sample.Positive, Confidence: 80, ParasiteCount: 3}, time.Unix(0, 0))
	blocks := Document(rep)
	joined := strings.Join(blocks, "\n")
	assert.Contains(t, joined, "Result: POSITIVE")
	assert.Contains(t, joined, "Parasite count: 3")
	assert.NotContains(t, joined, "Patient:")

	rep.PatientName = "Jane Roe"
	rep.PatientNotes = "travelled recently"
	joined = strings.Join(Document(rep), "\n")
	assert.Contains(t, joined, "Patient: Jane Roe")
	assert.Contains(t, joined, "travelled recently")
}

func TestRendererProducesPNG(t *testing.T) {
	r, err := NewRenderer(DefaultLayout(), "")
	require.NoError(t, err)
	pages := Paginate(Document(New("r-1", sample.Sample{ID: "s-1"}, sample.Diagnosis{Verdict: sample.Negative}, time.Unix(0, 0))), DefaultLayout())
	png, err := r.RenderPNG(pages[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	_, err = NewRenderer(DefaultLayout(), "/does/not/exist.ttf")
	assert.Error(t, err)
}

func TestRendererIsSafeForConcurrentPages(t *testing.T) {
	fontPath := filepath.Join(t.TempDir(), "goregular.ttf")
	require.NoError(t, os.WriteFile(fontPath, goregular.TTF, 0o644))
	r, err := NewRenderer(DefaultLayout(), fontPath)
	require.NoError(t, err)

	rep := New("r-1", sample.Sample{ID: "s-1"}, sample.Diagnosis{Verdict: sample.Positive, Findings: strings.Repeat("ring forms ", 400)}, time.Unix(0, 0))
	pages := Paginate(Document(rep), r.Layout)
	require.Greater(t, len(pages), 1)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		p := pages[i%len(pages)]
		g.Go(func() error {
			png, err := r.RenderPNG(p)
			if err != nil {
				return err
			}
			if !bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}) {
				return fmt.Errorf("page %d: not a png", p.Number)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
