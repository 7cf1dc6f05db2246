package sample

import (
	"time"
)

type Verdict string

const (
	Positive Verdict = "positive"
	Negative Verdict = "negative"
)

func (v Verdict) Valid() bool { return v == Positive || v == Negative }

// Diagnosis is the structured outcome of one successful analysis.
// The parser always fills every field.
type Diagnosis struct {
	Verdict       Verdict `json:"verdict"`
	Confidence    int     `json:"confidence"`     // 0..100
	ParasiteCount int     `json:"parasite_count"` // >= 0
	Findings      string  `json:"findings"`
}

// Sample is one uploaded image plus its diagnostic lifecycle record.
type Sample struct {
	ID            string     `json:"id"`
	ImageRef      string     `json:"image_ref"`
	Status        Status     `json:"status"`
	Diagnosis     *Diagnosis `json:"diagnosis,omitempty"`
	FailureReason ReasonCode `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewPending returns a fresh sample in the only initial state.
func NewPending(id, imageRef string, now time.Time) *Sample {
	return &Sample{
		ID:        id,
		ImageRef:  imageRef,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Consistent reports whether the diagnosis/failure fields agree with Status.
func (s *Sample) Consistent() bool {
	if (s.Diagnosis != nil) != (s.Status == StatusCompleted) {
		return false
	}
	if (s.FailureReason != "") != (s.Status == StatusFailed) {
		return false
	}
	return true
}

// Apply returns a copy of s with u applied. Callers validate u first.
func (s Sample) Apply(u Update, at time.Time) Sample {
	s.Status = u.Status
	s.Diagnosis = nil
	s.FailureReason = ""
	switch u.Status {
	case StatusCompleted:
		d := *u.Diagnosis
		s.Diagnosis = &d
	case StatusFailed:
		s.FailureReason = u.Reason
	}
	s.UpdatedAt = at
	return s
}

// Annotations are the clinician-editable fields of a Report.
type Annotations struct {
	PatientName  *string `json:"patient_name,omitempty"`
	PatientNotes *string `json:"patient_notes,omitempty"`
	SpeciesLabel *string `json:"species_label,omitempty"`
}

// Report is created once per completed sample. Only Annotations change later.
type Report struct {
	ID             string    `json:"id"`
	SampleID       string    `json:"sample_id"`
	Summary        string    `json:"summary"`
	Recommendation string    `json:"recommendation"`
	Diagnosis      Diagnosis `json:"diagnosis"`
	CreatedAt      time.Time `json:"created_at"`

	PatientName  string `json:"patient_name,omitempty"`
	PatientNotes string `json:"patient_notes,omitempty"`
	SpeciesLabel string `json:"species_label,omitempty"`
}

// Annotate merges the non-nil annotation fields into r.
func (r *Report) Annotate(a Annotations) {
	if a.PatientName != nil {
		r.PatientName = *a.PatientName
	}
	if a.PatientNotes != nil {
		r.PatientNotes = *a.PatientNotes
	}
	if a.SpeciesLabel != nil {
		r.SpeciesLabel = *a.SpeciesLabel
	}
}

// Event is published after every persisted status write.
type Event struct {
	SampleID string     `json:"sample_id"`
	Status   Status     `json:"status"`
	Reason   ReasonCode `json:"reason_code,omitempty"`
	At       time.Time  `json:"at"`
}
