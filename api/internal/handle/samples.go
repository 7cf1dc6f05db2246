package handle

import (
	"errors"
	"net/http"
	"strconv"

	"parascope/api/internal/pipeline"
	"parascope/api/internal/sample"

	"github.com/gin-gonic/gin"
)

type createSampleRequest struct {
	ImageRef string `json:"image_ref"`
}

func (h *Handle) CreateSample(c *gin.Context) {
	var req createSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}
	if h.refs != nil {
		if err := h.refs.Validate(req.ImageRef); err != nil {
			h.respondErr(c, err)
			return
		}
	}
	s, err := h.pipe.Submit(c.Request.Context(), req.ImageRef)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handle) ListSamples(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	if limit > 500 {
		limit = 500
	}
	list, err := h.samples.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if list == nil {
		list = []sample.Sample{}
	}
	RespondOK(c, gin.H{"samples": list, "limit": limit, "offset": offset})
}

func (h *Handle) GetSample(c *gin.Context) {
	s, err := h.samples.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, s)
}

type analyzeResponse struct {
	pipeline.Outcome
	ReportError string `json:"report_error,omitempty"`
}

func (h *Handle) AnalyzeSample(c *gin.Context) {
	out, err := h.pipe.Analyze(c.Request.Context(), c.Param("id"))
	h.respondOutcome(c, out, err)
}

func (h *Handle) ReanalyzeSample(c *gin.Context) {
	out, err := h.pipe.Reanalyze(c.Request.Context(), c.Param("id"))
	h.respondOutcome(c, out, err)
}

func (h *Handle) respondOutcome(c *gin.Context, out pipeline.Outcome, err error) {
	var (
		aerr *sample.AnalysisError
		rerr *sample.ReportCreationError
	)
	switch {
	case err == nil:
		RespondOK(c, analyzeResponse{Outcome: out})
	case errors.As(err, &rerr):
		RespondOK(c, analyzeResponse{Outcome: out, ReportError: rerr.Err.Error()})
	case errors.As(err, &aerr):
		c.JSON(analysisStatus(aerr.Reason), ErrorEnvelope{
			Error:   APIError{Message: err.Error(), Code: string(aerr.Reason)},
			Outcome: &out,
		})
	default:
		h.respondErr(c, err)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
