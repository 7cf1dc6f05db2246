// Package pipeline drives a sample through pending -> processing ->
// completed|failed and creates its report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parascope/api/internal/diagnosis"
	"parascope/api/internal/logger"
	"parascope/api/internal/report"
	"parascope/api/internal/sample"
	"parascope/api/internal/vision"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 90 * time.Second

var (
	ErrEmptyImageRef = errors.New("image reference is empty")
	ErrNotCompleted  = errors.New("sample is not completed")
	ErrNotFailed     = errors.New("only failed samples can be re-analysed")
)

// Outcome is what Analyze reports back to callers.
type Outcome struct {
	SampleID  string            `json:"sample_id"`
	Status    sample.Status     `json:"status"`
	Diagnosis *sample.Diagnosis `json:"diagnosis,omitempty"`
	Reason    sample.ReasonCode `json:"reason_code,omitempty"`
	Report    *sample.Report    `json:"report,omitempty"`
}

type Orchestrator struct {
	samples  SampleStore
	reports  ReportStore
	model    ModelGateway
	notifier Notifier
	parser   *diagnosis.Parser
	log      *logger.Logger
	tracer   trace.Tracer

	instruction string
	timeout     time.Duration
	now         func() time.Time
	newID       func() string
}

type Option func(*Orchestrator)

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithInstruction(s string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(s) != "" {
			o.instruction = s
		}
	}
}

func WithNotifier(n Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

func WithLogger(l *logger.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithParser(p *diagnosis.Parser) Option { return func(o *Orchestrator) { o.parser = p } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithIDs(newID func() string) Option { return func(o *Orchestrator) { o.newID = newID } }

func New(samples SampleStore, reports ReportStore, model ModelGateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		samples:     samples,
		reports:     reports,
		model:       model,
		notifier:    nopNotifier{},
		parser:      diagnosis.Default(),
		log:         logger.NewNop(),
		tracer:      otel.Tracer("parascope/pipeline"),
		instruction: vision.Instruction,
		timeout:     DefaultTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit records a new pending sample.
func (o *Orchestrator) Submit(ctx context.Context, imageRef string) (sample.Sample, error) {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return sample.Sample{}, ErrEmptyImageRef
	}
	s := sample.NewPending(o.newID(), imageRef, o.now())
	if err := o.samples.Create(ctx, s); err != nil {
		return sample.Sample{}, fmt.Errorf("create sample: %w", err)
	}
	o.publish(ctx, *s)
	return *s, nil
}

// Analyze runs one analysis of a pending sample: mark processing, call the
// model once, then persist completed with the parsed diagnosis or failed
// with a reason code, and finally create the report.
func (o *Orchestrator) Analyze(ctx context.Context, id string) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Analyze", trace.WithAttributes(attribute.String("sample.id", id)))
	defer span.End()

	out, err := o.analyze(ctx, id)
	span.SetAttributes(attribute.String("sample.status", string(out.Status)))
	if out.Reason != "" {
		span.SetAttributes(attribute.String("analysis.reason", string(out.Reason)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (o *Orchestrator) analyze(ctx context.Context, id string) (Outcome, error) {
	log := o.log.With("sample_id", id)

	s, err := o.samples.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if s.Status != sample.StatusPending {
		return Outcome{SampleID: id, Status: s.Status}, &sample.TransitionError{From: s.Status, To: sample.StatusProcessing}
	}

	s, err = o.samples.Transition(ctx, id, sample.StatusPending, sample.Processing(), o.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("mark processing: %w", err)
	}
	o.publish(ctx, s)

	// Terminal writes must land even if the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	started := time.Now()
	text, callErr := o.model.Analyze(callCtx, o.instruction, s.ImageRef)
	cancel()

	if callErr != nil {
		reason := ReasonOf(callErr)
		log.Warn("analysis failed", "reason_code", reason, "elapsed", time.Since(started), "error", callErr)
		aerr := &sample.AnalysisError{SampleID: id, Reason: reason, Err: callErr}

		failed, werr := o.samples.Transition(persistCtx, id, sample.StatusProcessing, sample.Failed(reason), o.now())
		if werr != nil {
			log.Error("persist failed status", "error", werr)
			return Outcome{SampleID: id, Status: sample.StatusProcessing, Reason: reason}, errors.Join(aerr, werr)
		}
		o.publish(persistCtx, failed)
		return Outcome{SampleID: id, Status: sample.StatusFailed, Reason: reason}, aerr
	}

	d := o.parser.Parse(text)
	done, err := o.samples.Transition(persistCtx, id, sample.StatusProcessing, sample.Completed(d), o.now())
	if err != nil {
		log.Error("persist completed status", "error", err)
		return Outcome{SampleID: id, Status: sample.StatusProcessing}, fmt.Errorf("mark completed: %w", err)
	}
	o.publish(persistCtx, done)
	log.Info("analysis completed", "verdict", d.Verdict, "confidence", d.Confidence,
		"parasite_count", d.ParasiteCount, "elapsed", time.Since(started))

	out := Outcome{SampleID: id, Status: sample.StatusCompleted, Diagnosis: &d}
	rep, err := o.insertReport(persistCtx, done, d)
	if err != nil {
		log.Error("report creation failed", "error", err)
		return out, &sample.ReportCreationError{SampleID: id, Err: err}
	}
	out.Report = rep
	return out, nil
}

func (o *Orchestrator) insertReport(ctx context.Context, s sample.Sample, d sample.Diagnosis) (*sample.Report, error) {
	rep := report.New(o.newID(), s, d, o.now())
	if err := o.reports.Insert(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// CreateReport retries report creation for a completed sample.
func (o *Orchestrator) CreateReport(ctx context.Context, sampleID string) (*sample.Report, error) {
	s, err := o.samples.Get(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	if s.Status != sample.StatusCompleted || s.Diagnosis == nil {
		return nil, fmt.Errorf("sample %s is %s: %w", sampleID, s.Status, ErrNotCompleted)
	}
	rep, err := o.insertReport(ctx, s, *s.Diagnosis)
	if err != nil {
		if errors.Is(err, sample.ErrReportExists) {
			return nil, err
		}
		return nil, &sample.ReportCreationError{SampleID: sampleID, Err: err}
	}
	return rep, nil
}

// Reanalyze submits the image of a failed sample as a new sample and analyses
// it. The failed record is left untouched.
func (o *Orchestrator) Reanalyze(ctx context.Context, sampleID string) (Outcome, error) {
	s, err := o.samples.Get(ctx, sampleID)
	if err != nil {
		return Outcome{}, err
	}
	if s.Status != sample.StatusFailed {
		return Outcome{SampleID: sampleID, Status: s.Status}, fmt.Errorf("sample %s is %s: %w", sampleID, s.Status, ErrNotFailed)
	}
	next, err := o.Submit(ctx, s.ImageRef)
	if err != nil {
		return Outcome{}, err
	}
	o.log.Info("re-analysing failed sample", "sample_id", sampleID, "new_sample_id", next.ID, "previous_reason", s.FailureReason)
	return o.Analyze(ctx, next.ID)
}

// FailStuck fails processing samples untouched for olderThan, e.g. after a
// crash between the processing write and the terminal write.
func (o *Orchestrator) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	stuck, err := o.samples.ListStuck(ctx, o.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range stuck {
		failed, err := o.samples.Transition(ctx, s.ID, sample.StatusProcessing, sample.Failed(sample.ReasonUpstreamError), o.now())
		if errors.Is(err, sample.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("fail stuck sample %s: %w", s.ID, err)
		}
		o.publish(ctx, failed)
		n++
	}
	if n > 0 {
		o.log.Warn("failed stuck samples", "count", n, "older_than", olderThan)
	}
	return n, nil
}

// ReasonOf extracts the reason code from a gateway error; anything
// unclassified, timeouts included, is an upstream error.
func ReasonOf(err error) sample.ReasonCode {
	var r interface{ Reason() sample.ReasonCode }
	if errors.As(err, &r) && r.Reason().Valid() {
		return r.Reason()
	}
	return sample.ReasonUpstreamError
}

func (o *Orchestrator) publish(ctx context.Context, s sample.Sample) {
	ev := sample.Event{SampleID: s.ID, Status: s.Status, Reason: s.FailureReason, At: s.UpdatedAt}
	if err := o.notifier.StatusChanged(ctx, ev); err != nil {
		o.log.Warn("status notification failed", "sample_id", s.ID, "status", s.Status, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) StatusChanged(context.Context, sample.Event) error { return nil }
