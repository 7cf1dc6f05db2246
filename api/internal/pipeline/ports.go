package pipeline

import (
	"context"
	"time"

	"parascope/api/internal/sample"
)

type SampleStore interface {
	Create(ctx context.Context, s *sample.Sample) error
	Get(ctx context.Context, id string) (sample.Sample, error)
	// Transition applies u only while the sample is still in status from.
	Transition(ctx context.Context, id string, from sample.Status, u sample.Update, at time.Time) (sample.Sample, error)
	ListStuck(ctx context.Context, cutoff time.Time) ([]sample.Sample, error)
}

type ReportStore interface {
	Insert(ctx context.Context, r *sample.Report) error
}

// ModelGateway sends the instruction and image to the vision model. Errors
// that know their classification implement Reason() sample.ReasonCode.
type ModelGateway interface {
	Analyze(ctx context.Context, instruction, imageRef string) (string, error)
}

type Notifier interface {
	StatusChanged(ctx context.Context, ev sample.Event) error
}
