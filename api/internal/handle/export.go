package handle

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"parascope/api/internal/sample"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const exportLimit = 10000

var exportHeaders = []string{"Sample ID", "Image", "Status", "Verdict", "Confidence", "Parasite Count",
	"Findings", "Failure Reason", "Created At", "Updated At"}

func (h *Handle) ExportSamples(c *gin.Context) {
	list, err := h.collectSamples(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	b, err := samplesWorkbook(list)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="samples.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b)
}

func (h *Handle) collectSamples(ctx context.Context) ([]sample.Sample, error) {
	const page = 500
	var out []sample.Sample
	for offset := 0; offset < exportLimit; offset += page {
		batch, err := h.samples.List(ctx, page, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < page {
			break
		}
	}
	return out, nil
}

func samplesWorkbook(list []sample.Sample) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Samples"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for col, header := range exportHeaders {
		if err := setCell(f, sheet, col+1, 1, header); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", "J1", headerStyle); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i, s := range list {
		row := i + 2
		values := []any{s.ID, s.ImageRef, string(s.Status), "", "", "", "", string(s.FailureReason),
			s.CreatedAt.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339)}
		if d := s.Diagnosis; d != nil {
			values[3], values[4], values[5], values[6] = string(d.Verdict), d.Confidence, d.ParasiteCount, d.Findings
		}
		for col, v := range values {
			if v == "" {
				continue
			}
			if err := setCell(f, sheet, col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
