package sample

import (
	"errors"
	"fmt"
)

// ReasonCode classifies why an analysis attempt failed.
type ReasonCode string

const (
	ReasonRateLimited    ReasonCode = "rate_limited"
	ReasonQuotaExhausted ReasonCode = "quota_exhausted"
	ReasonUpstreamError  ReasonCode = "upstream_error"
)

func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonRateLimited, ReasonQuotaExhausted, ReasonUpstreamError:
		return true
	}
	return false
}

// Transient reports whether retrying later may succeed without operator action.
func (r ReasonCode) Transient() bool { return r == ReasonRateLimited || r == ReasonUpstreamError }

var (
	ErrNotFound     = errors.New("not found")
	ErrStaleStatus  = errors.New("sample status changed concurrently")
	ErrReportExists = errors.New("report already exists")
)

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("sample %s not found", e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AnalysisError means the model call failed; the sample was moved to failed.
type AnalysisError struct {
	SampleID string
	Reason   ReasonCode
	Err      error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis of sample %s failed (%s): %v", e.SampleID, e.Reason, e.Err)
	}
	return fmt.Sprintf("analysis of sample %s failed (%s)", e.SampleID, e.Reason)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ReportCreationError does not affect the already-persisted completed status.
type ReportCreationError struct {
	SampleID string
	Err      error
}

func (e *ReportCreationError) Error() string {
	return fmt.Sprintf("create report for sample %s: %v", e.SampleID, e.Err)
}

func (e *ReportCreationError) Unwrap() error { return e.Err }

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}
