package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"parascope/api/internal/sample"
)

type SampleRepo struct{ DB *sql.DB }

func NewSampleRepo(db *sql.DB) *SampleRepo { return &SampleRepo{DB: db} }

const sampleColumns = `id, image_ref, status, verdict, confidence, parasite_count, findings,
       failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (sample.Sample, error) {
	var (
		s          sample.Sample
		status     string
		verdict    sql.NullString
		confidence sql.NullInt64
		count      sql.NullInt64
		findings   sql.NullString
		reason     sql.NullString
	)
	if err := row.Scan(&s.ID, &s.ImageRef, &status, &verdict, &confidence, &count, &findings,
		&reason, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return sample.Sample{}, err
	}
	s.Status = sample.Status(status)
	if verdict.Valid {
		s.Diagnosis = &sample.Diagnosis{
			Verdict:       sample.Verdict(verdict.String),
			Confidence:    int(confidence.Int64),
			ParasiteCount: int(count.Int64),
			Findings:      findings.String,
		}
	}
	if reason.Valid {
		s.FailureReason = sample.ReasonCode(reason.String)
	}
	return s, nil
}

// Create inserts a new pending sample.
func (r *SampleRepo) Create(ctx context.Context, s *sample.Sample) error {
	if s.Status != sample.StatusPending || !s.Consistent() {
		return fmt.Errorf("create sample %s: new samples must be pending", s.ID)
	}
	const q = `
insert into samples (id, image_ref, status, created_at, updated_at)
values ($1,$2,$3,$4,$5)`
	_, err := r.DB.ExecContext(ctx, q, s.ID, s.ImageRef, string(s.Status), s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SampleRepo) Get(ctx context.Context, id string) (sample.Sample, error) {
	q := `select ` + sampleColumns + ` from samples where id = $1`
	s, err := scanSample(r.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return sample.Sample{}, &sample.NotFoundError{ID: id}
	}
	return s, err
}

// Transition writes u only if the row is still in status from. A row that has
// moved on yields sample.ErrStaleStatus; a missing row a NotFoundError.
func (r *SampleRepo) Transition(ctx context.Context, id string, from sample.Status, u sample.Update, at time.Time) (sample.Sample, error) {
	if err := u.Validate(from); err != nil {
		return sample.Sample{}, err
	}
	var (
		verdict, findings, reason any
		confidence, count         any
	)
	if u.Diagnosis != nil {
		verdict = string(u.Diagnosis.Verdict)
		confidence = u.Diagnosis.Confidence
		count = u.Diagnosis.ParasiteCount
		findings = u.Diagnosis.Findings
	}
	if u.Reason != "" {
		reason = string(u.Reason)
	}
	q := `
update samples
set status = $3, verdict = $4, confidence = $5, parasite_count = $6, findings = $7,
    failure_reason = $8, updated_at = $9
where id = $1 and status = $2
returning ` + sampleColumns
	s, err := scanSample(r.DB.QueryRowContext(ctx, q, id, string(from), string(u.Status),
		verdict, confidence, count, findings, reason, at))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return sample.Sample{}, err
	}
	var exists bool
	if err := r.DB.QueryRowContext(ctx, `select exists(select 1 from samples where id = $1)`, id).Scan(&exists); err != nil {
		return sample.Sample{}, err
	}
	if !exists {
		return sample.Sample{}, &sample.NotFoundError{ID: id}
	}
	return sample.Sample{}, fmt.Errorf("sample %s: %w", id, sample.ErrStaleStatus)
}

// List returns samples newest first.
func (r *SampleRepo) List(ctx context.Context, limit, offset int) ([]sample.Sample, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `select ` + sampleColumns + ` from samples order by created_at desc, id limit $1 offset $2`
	return r.query(ctx, q, limit, offset)
}

// ListStuck returns processing samples last written before cutoff.
func (r *SampleRepo) ListStuck(ctx context.Context, cutoff time.Time) ([]sample.Sample, error) {
	q := `select ` + sampleColumns + ` from samples where status = 'processing' and updated_at < $1 order by updated_at`
	return r.query(ctx, q, cutoff)
}

func (r *SampleRepo) query(ctx context.Context, q string, args ...any) ([]sample.Sample, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []sample.Sample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
