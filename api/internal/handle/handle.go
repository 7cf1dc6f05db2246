package handle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"parascope/api/internal/imageref"
	"parascope/api/internal/logger"
	"parascope/api/internal/pipeline"
	"parascope/api/internal/report"
	"parascope/api/internal/sample"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Pipeline interface {
	Submit(ctx context.Context, imageRef string) (sample.Sample, error)
	Analyze(ctx context.Context, id string) (pipeline.Outcome, error)
	Reanalyze(ctx context.Context, id string) (pipeline.Outcome, error)
	CreateReport(ctx context.Context, sampleID string) (*sample.Report, error)
}

type SampleReader interface {
	Get(ctx context.Context, id string) (sample.Sample, error)
	List(ctx context.Context, limit, offset int) ([]sample.Sample, error)
}

type ReportStore interface {
	Get(ctx context.Context, sampleID string) (*sample.Report, error)
	UpdateAnnotations(ctx context.Context, sampleID string, a sample.Annotations) (*sample.Report, error)
}

type RefValidator interface {
	Validate(ref string) error
}

type Deps struct {
	Pipeline Pipeline
	Samples  SampleReader
	Reports  ReportStore
	Refs     RefValidator
	Renderer *report.Renderer
	Health   func(ctx context.Context) error
	Log      *logger.Logger
}

type Handle struct {
	pipe     Pipeline
	samples  SampleReader
	reports  ReportStore
	refs     RefValidator
	renderer *report.Renderer
	layout   report.Layout
	health   func(ctx context.Context) error
	log      *logger.Logger
}

func New(d Deps) *Handle {
	h := &Handle{
		pipe:     d.Pipeline,
		samples:  d.Samples,
		reports:  d.Reports,
		refs:     d.Refs,
		renderer: d.Renderer,
		layout:   report.DefaultLayout(),
		health:   d.Health,
		log:      d.Log,
	}
	if h.renderer != nil {
		h.layout = h.renderer.Layout
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	return h
}

// Router builds the gin engine with every API route registered.
func Router(h *Handle, service string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(service), requestLogger(h.log))

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.POST("/samples", h.CreateSample)
	v1.GET("/samples", h.ListSamples)
	v1.GET("/samples/:id", h.GetSample)
	v1.POST("/samples/:id/analyze", h.AnalyzeSample)
	v1.POST("/samples/:id/reanalyze", h.ReanalyzeSample)

	v1.GET("/exports/samples.xlsx", h.ExportSamples)

	v1.GET("/reports/:sampleId", h.GetReport)
	v1.POST("/reports/:sampleId", h.CreateReport)
	v1.PATCH("/reports/:sampleId", h.PatchReport)
	v1.GET("/reports/:sampleId/document", h.ReportDocument)
	v1.GET("/reports/:sampleId/pages/:n", h.ReportPage)
	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorEnvelope struct {
	Error   APIError          `json:"error"`
	Outcome *pipeline.Outcome `json:"outcome,omitempty"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps domain errors onto HTTP status and error code.
func (h *Handle) respondErr(c *gin.Context, err error) {
	var (
		nf *sample.NotFoundError
		te *sample.TransitionError
	)
	switch {
	case errors.As(err, &nf), errors.Is(err, sample.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.As(err, &te):
		RespondError(c, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, sample.ErrStaleStatus):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, sample.ErrReportExists):
		RespondError(c, http.StatusConflict, "report_exists", err)
	case errors.Is(err, pipeline.ErrNotCompleted), errors.Is(err, pipeline.ErrNotFailed):
		RespondError(c, http.StatusConflict, "invalid_state", err)
	case errors.Is(err, pipeline.ErrEmptyImageRef), errors.Is(err, imageref.ErrUnsupported):
		RespondError(c, http.StatusBadRequest, "invalid_image_ref", err)
	default:
		h.log.Error("request failed", "route", c.FullPath(), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

// analysisStatus is the HTTP status for a failed analysis by reason code.
func analysisStatus(reason sample.ReasonCode) int {
	switch reason {
	case sample.ReasonRateLimited:
		return http.StatusTooManyRequests
	case sample.ReasonQuotaExhausted:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadGateway
	}
}

func (h *Handle) Healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			RespondError(c, http.StatusServiceUnavailable, "unhealthy", err)
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
