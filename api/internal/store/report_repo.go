package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"parascope/api/internal/sample"

	"github.com/jackc/pgx/v5/pgconn"
)

type ReportRepo struct{ DB *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{DB: db} }

const reportColumns = `id, sample_id, summary, recommendation, verdict, confidence, parasite_count, findings,
       patient_name, patient_notes, species_label, created_at`

func scanReport(row rowScanner) (*sample.Report, error) {
	var (
		rep     sample.Report
		verdict string
	)
	if err := row.Scan(&rep.ID, &rep.SampleID, &rep.Summary, &rep.Recommendation, &verdict,
		&rep.Diagnosis.Confidence, &rep.Diagnosis.ParasiteCount, &rep.Diagnosis.Findings,
		&rep.PatientName, &rep.PatientNotes, &rep.SpeciesLabel, &rep.CreatedAt); err != nil {
		return nil, err
	}
	rep.Diagnosis.Verdict = sample.Verdict(verdict)
	return &rep, nil
}

// Insert stores a new report; a second report for the same sample yields
// sample.ErrReportExists.
func (r *ReportRepo) Insert(ctx context.Context, rep *sample.Report) error {
	const q = `
insert into reports (
  id, sample_id, summary, recommendation, verdict, confidence, parasite_count, findings,
  patient_name, patient_notes, species_label, created_at
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.DB.ExecContext(ctx, q,
		rep.ID, rep.SampleID, rep.Summary, rep.Recommendation, string(rep.Diagnosis.Verdict),
		rep.Diagnosis.Confidence, rep.Diagnosis.ParasiteCount, rep.Diagnosis.Findings,
		rep.PatientName, rep.PatientNotes, rep.SpeciesLabel, rep.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("sample %s: %w", rep.SampleID, sample.ErrReportExists)
	}
	return err
}

func (r *ReportRepo) Get(ctx context.Context, sampleID string) (*sample.Report, error) {
	q := `select ` + reportColumns + ` from reports where sample_id = $1`
	rep, err := scanReport(r.DB.QueryRowContext(ctx, q, sampleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report for sample %s: %w", sampleID, sample.ErrNotFound)
	}
	return rep, err
}

// UpdateAnnotations touches only the clinician fields; nil leaves a field as is.
func (r *ReportRepo) UpdateAnnotations(ctx context.Context, sampleID string, a sample.Annotations) (*sample.Report, error) {
	q := `
update reports
set patient_name  = coalesce($2, patient_name),
    patient_notes = coalesce($3, patient_notes),
    species_label = coalesce($4, species_label)
where sample_id = $1
returning ` + reportColumns
	rep, err := scanReport(r.DB.QueryRowContext(ctx, q, sampleID,
		nullString(a.PatientName), nullString(a.PatientNotes), nullString(a.SpeciesLabel)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report for sample %s: %w", sampleID, sample.ErrNotFound)
	}
	return rep, err
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
