package sample

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions is the closed forward-only table. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Update is one status write, with the fields that must travel with it.
type Update struct {
	Status    Status
	Diagnosis *Diagnosis
	Reason    ReasonCode
}

func Processing() Update { return Update{Status: StatusProcessing} }

func Completed(d Diagnosis) Update { return Update{Status: StatusCompleted, Diagnosis: &d} }

func Failed(reason ReasonCode) Update { return Update{Status: StatusFailed, Reason: reason} }

// Validate checks u against the transition table and the
// diagnosis-iff-completed / reason-iff-failed invariants.
func (u Update) Validate(from Status) error {
	if !CanTransition(from, u.Status) {
		return &TransitionError{From: from, To: u.Status}
	}
	switch u.Status {
	case StatusCompleted:
		if u.Diagnosis == nil {
			return fmt.Errorf("completed update without diagnosis")
		}
		if !u.Diagnosis.Verdict.Valid() {
			return fmt.Errorf("invalid verdict %q", u.Diagnosis.Verdict)
		}
		if u.Reason != "" {
			return fmt.Errorf("completed update with reason code %q", u.Reason)
		}
	case StatusFailed:
		if u.Diagnosis != nil {
			return fmt.Errorf("failed update with diagnosis")
		}
		if !u.Reason.Valid() {
			return fmt.Errorf("failed update with invalid reason code %q", u.Reason)
		}
	default:
		if u.Diagnosis != nil || u.Reason != "" {
			return fmt.Errorf("%s update carries result fields", u.Status)
		}
	}
	return nil
}
