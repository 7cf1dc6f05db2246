package report

import (
	"bytes"
	"fmt"
	"image/color"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Renderer draws laid-out pages as PNG images. It is safe for concurrent
// use: only the parsed font is shared, faces are built per page.
type Renderer struct {
	Layout Layout
	Width  int
	ttf    *truetype.Font
}

// NewRenderer uses the TrueType font at fontPath when given, otherwise the
// built-in 7x13 bitmap face.
func NewRenderer(l Layout, fontPath string) (*Renderer, error) {
	r := &Renderer{Layout: l, Width: 595}
	if fontPath != "" {
		f, err := loadFont(fontPath)
		if err != nil {
			return nil, err
		}
		r.ttf = f
	}
	return r, nil
}

// newFace returns a face owned by one render; truetype faces cache glyphs
// and must not be shared between goroutines.
func (r *Renderer) newFace() font.Face {
	if r.ttf == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(r.ttf, &truetype.Options{
		Size:    r.Layout.LineHeight * 0.75,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

func (r *Renderer) RenderPNG(p Page) ([]byte, error) {
	l := r.Layout
	dc := gg.NewContext(r.Width, int(l.PageHeight))
	dc.SetColor(color.White)
	dc.Clear()

	face := r.newFace()
	defer face.Close()
	dc.SetFontFace(face)
	dc.SetColor(color.Black)
	y := l.Margin
	for _, line := range p.Lines {
		y += l.LineHeight
		dc.DrawString(line, l.Margin, y)
	}

	dc.SetColor(color.Gray{Y: 96})
	dc.DrawStringAnchored(p.Footer, float64(r.Width)/2, l.PageHeight-l.Margin/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", p.Number, err)
	}
	return buf.Bytes(), nil
}

func loadFont(fontPath string) (*truetype.Font, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return parsedFont, nil
}
