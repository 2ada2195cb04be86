package render

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"SketchBoard/internal/state"
)

// WritePDF replays records onto a single PDF page of width x height points.
// A clear is absolute, so only the records after the last clear are written.
func WritePDF(w io.Writer, records []state.Record, width, height float64) error {
	p := newPDF(records, width, height)
	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportPDF writes the replay of records to a PDF file at path.
func ExportPDF(path string, records []state.Record, width, height float64) error {
	p := newPDF(records, width, height)
	if err := p.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export pdf %s: %w", path, err)
	}
	return nil
}

func newPDF(records []state.Record, width, height float64) *gofpdf.Fpdf {
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")

	bg := state.ParseColor(state.FormatColor(Background))
	for _, st := range visible(records) {
		c := bg
		if st.Kind == state.KindDraw {
			c = st.RGBA()
		}
		width := float64(state.ClampThickness(st.Thickness))
		pts := dedupe(st.Points)
		if len(pts) == 1 {
			p.SetFillColor(int(c.R), int(c.G), int(c.B))
			p.Circle(float64(pts[0].X), float64(pts[0].Y), width/2, "F")
			continue
		}
		p.SetDrawColor(int(c.R), int(c.G), int(c.B))
		p.SetLineWidth(width)
		p.MoveTo(float64(pts[0].X), float64(pts[0].Y))
		for i := 1; i < len(pts); i++ {
			p.LineTo(float64(pts[i].X), float64(pts[i].Y))
		}
		p.DrawPath("D")
	}
	return p
}

// visible returns the strokes that survive the last clear marker.
func visible(records []state.Record) []state.Record {
	start := 0
	for i, rec := range records {
		if rec.Kind == state.KindClear {
			start = i + 1
		}
	}
	out := make([]state.Record, 0, len(records)-start)
	for _, rec := range records[start:] {
		if (rec.Kind == state.KindDraw || rec.Kind == state.KindErase) && len(rec.Points) > 0 {
			out = append(out, rec)
		}
	}
	return out
}
