package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parascope/api/internal/app"
	"parascope/api/internal/config"
	"parascope/api/internal/logger"
	"parascope/api/internal/sample"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelAnswer = `{"choices":[{"message":{"content":"{\"result\":\"negative\",\"confidence\":93,\"parasites_count\":0,\"description\":\"clean field\"}"}}]}`

func memoryApp(t *testing.T) *app.App {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(modelAnswer))
	}))
	t.Cleanup(srv.Close)

	a, err := app.New(context.Background(), &config.Config{
		Store:           "memory",
		Provider:        "openai",
		OpenAIAPIKey:    "k",
		OpenAIModel:     "gpt-4o-mini",
		OpenAIBaseURL:   srv.URL,
		AnalysisTimeout: 5 * time.Second,
		MaxImageBytes:   1 << 20,
		StuckAfter:      time.Minute,
	}, logger.NewNop())
	require.NoError(t, err)

	prev := openApp
	openApp = func(context.Context) (*app.App, error) { return a, nil }
	t.Cleanup(func() { openApp = prev })
	return a
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreateAnalyzeReportExport(t *testing.T) {
	a := memoryApp(t)

	out, err := run(t, "create", "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, "analyze", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "completed"`)

	s, err := a.Samples.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, sample.Negative, s.Diagnosis.Verdict)

	out, err = run(t, "status", id)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, "report", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Result: NEGATIVE")
	assert.Contains(t, out, "Page 1 of 1")

	dir := t.TempDir()
	out, err = run(t, "export", id, "--out", dir)
	require.NoError(t, err)
	want := filepath.Join(dir, id+"-page-1.png")
	assert.Contains(t, out, want)
	_, err = os.Stat(want)
	assert.NoError(t, err)
}

func TestCreateRejectsUnsupportedRef(t *testing.T) {
	memoryApp(t)
	_, err := run(t, "create", "ftp://host/x.png")
	assert.Error(t, err)
}

func TestAnalyzeTwiceIsRejected(t *testing.T) {
	memoryApp(t)
	out, err := run(t, "create", "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = run(t, "analyze", id)
	require.NoError(t, err)
	_, err = run(t, "analyze", id)
	assert.Error(t, err)
}

func TestFailStuck(t *testing.T) {
	a := memoryApp(t)
	s := sample.NewPending("stuck-1", "data:image/png;base64,iVBORw0KGgo=", time.Now().Add(-time.Hour))
	require.NoError(t, a.Samples.Create(context.Background(), s))
	_, err := a.Samples.Transition(context.Background(), s.ID, sample.StatusPending, sample.Processing(), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	out, err := run(t, "fail-stuck", "--older-than", "10m")
	require.NoError(t, err)
	assert.Contains(t, out, "failed 1 stuck sample(s)")

	got, err := a.Samples.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, sample.StatusFailed, got.Status)
}
