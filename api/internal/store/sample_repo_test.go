package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"parascope/api/internal/sample"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleCols = []string{"id", "image_ref", "status", "verdict", "confidence", "parasite_count", "findings",
	"failure_reason", "created_at", "updated_at"}

func setupSampleRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SampleRepo) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewSampleRepo(db)
}

func TestSampleRepoCreate(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := sample.NewPending("s-1", "https://lab/1.png", now)

	mock.ExpectExec(`insert into samples`).
		WithArgs("s-1", "https://lab/1.png", "pending", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoGetNotFound(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	mock.ExpectQuery(`from samples where id`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(sampleCols))

	_, err := repo.Get(context.Background(), "nope")
	var nf *sample.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.ID)
	assert.True(t, errors.Is(err, sample.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoGetCompleted(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`from samples where id`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow("s-1", "ref", "completed", "positive", 87, 3, "rings", nil, now, now))

	s, err := repo.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, s.Diagnosis)
	assert.Equal(t, sample.Positive, s.Diagnosis.Verdict)
	assert.Equal(t, 87, s.Diagnosis.Confidence)
	assert.Equal(t, 3, s.Diagnosis.ParasiteCount)
	assert.True(t, s.Consistent())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoTransitionCompleted(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	at := time.Now().UTC()
	d := sample.Diagnosis{Verdict: sample.Negative, Confidence: 90, ParasiteCount: 0, Findings: "clean"}

	mock.ExpectQuery(`update samples`).
		WithArgs("s-1", "processing", "completed", "negative", 90, 0, "clean", nil, at).
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow("s-1", "ref", "completed", "negative", 90, 0, "clean", nil, at, at))

	s, err := repo.Transition(context.Background(), "s-1", sample.StatusProcessing, sample.Completed(d), at)
	require.NoError(t, err)
	assert.Equal(t, sample.StatusCompleted, s.Status)
	assert.Equal(t, d, *s.Diagnosis)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoTransitionFailedCarriesReason(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectQuery(`update samples`).
		WithArgs("s-1", "processing", "failed", nil, nil, nil, nil, "rate_limited", at).
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow("s-1", "ref", "failed", nil, nil, nil, nil, "rate_limited", at, at))

	s, err := repo.Transition(context.Background(), "s-1", sample.StatusProcessing, sample.Failed(sample.ReasonRateLimited), at)
	require.NoError(t, err)
	assert.Nil(t, s.Diagnosis)
	assert.Equal(t, sample.ReasonRateLimited, s.FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoTransitionStale(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectQuery(`update samples`).
		WithArgs("s-1", "pending", "processing", nil, nil, nil, nil, nil, at).
		WillReturnRows(sqlmock.NewRows(sampleCols))
	mock.ExpectQuery(`select exists`).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.Transition(context.Background(), "s-1", sample.StatusPending, sample.Processing(), at)
	assert.True(t, errors.Is(err, sample.ErrStaleStatus))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoTransitionMissing(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	at := time.Now().UTC()
	mock.ExpectQuery(`update samples`).
		WillReturnRows(sqlmock.NewRows(sampleCols))
	mock.ExpectQuery(`select exists`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := repo.Transition(context.Background(), "ghost", sample.StatusPending, sample.Processing(), at)
	assert.True(t, errors.Is(err, sample.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoTransitionRejectsIllegalWithoutQuery(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	_, err := repo.Transition(context.Background(), "s-1", sample.StatusCompleted, sample.Processing(), time.Now())
	var te *sample.TransitionError
	require.True(t, errors.As(err, &te))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleRepoListStuck(t *testing.T) {
	db, mock, repo := setupSampleRepo(t)
	defer db.Close()

	cutoff := time.Now().UTC()
	old := cutoff.Add(-time.Hour)
	mock.ExpectQuery(`status = 'processing' and updated_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows(sampleCols).
			AddRow("s-9", "ref", "processing", nil, nil, nil, nil, nil, old, old))

	out, err := repo.ListStuck(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "s-9", out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
