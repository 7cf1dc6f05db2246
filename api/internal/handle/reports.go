package handle

import (
	"net/http"
	"strconv"

	"parascope/api/internal/report"
	"parascope/api/internal/sample"

	"github.com/gin-gonic/gin"
)

func (h *Handle) GetReport(c *gin.Context) {
	rep, err := h.reports.Get(c.Request.Context(), c.Param("sampleId"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, rep)
}

// CreateReport retries report creation after a failed attempt.
func (h *Handle) CreateReport(c *gin.Context) {
	rep, err := h.pipe.CreateReport(c.Request.Context(), c.Param("sampleId"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

func (h *Handle) PatchReport(c *gin.Context) {
	var a sample.Annotations
	if err := c.ShouldBindJSON(&a); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}
	rep, err := h.reports.UpdateAnnotations(c.Request.Context(), c.Param("sampleId"), a)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, rep)
}

type documentResponse struct {
	SampleID       string           `json:"sample_id"`
	Summary        string           `json:"summary"`
	Recommendation string           `json:"recommendation"`
	Diagnosis      sample.Diagnosis `json:"diagnosis"`
	Pages          []report.Page    `json:"pages"`
}

func (h *Handle) ReportDocument(c *gin.Context) {
	rep, err := h.reports.Get(c.Request.Context(), c.Param("sampleId"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, documentResponse{
		SampleID:       rep.SampleID,
		Summary:        rep.Summary,
		Recommendation: rep.Recommendation,
		Diagnosis:      rep.Diagnosis,
		Pages:          report.Paginate(report.Document(rep), h.layout),
	})
}

func (h *Handle) ReportPage(c *gin.Context) {
	if h.renderer == nil {
		RespondError(c, http.StatusNotImplemented, "rendering_disabled", nil)
		return
	}
	rep, err := h.reports.Get(c.Request.Context(), c.Param("sampleId"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	pages := report.Paginate(report.Document(rep), h.layout)
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 || n > len(pages) {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	png, err := h.renderer.RenderPNG(pages[n-1])
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.Header("X-Total-Pages", strconv.Itoa(len(pages)))
	c.Data(http.StatusOK, "image/png", png)
}
