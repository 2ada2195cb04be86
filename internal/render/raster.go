// Package render replays ordered stroke records onto a raster surface or a
// PDF page. Replay is a pure function of the record sequence: the same
// records always produce the same pixels.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"slices"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"

	"SketchBoard/internal/state"
)

// Background is the canvas color. Erase strokes paint with it.
var Background color.Color = color.White

const miterLimit = 4

// Surface is a fixed-size RGBA canvas.
type Surface struct {
	img *image.RGBA
	bg  *image.Uniform
}

// NewSurface returns a blank surface of the given size in pixels.
func NewSurface(width, height int) *Surface {
	s := &Surface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		bg:  image.NewUniform(Background),
	}
	s.Clear()
	return s
}

func (s *Surface) Bounds() image.Rectangle { return s.img.Bounds() }

// Image returns the live backing image. It changes on every paint.
func (s *Surface) Image() *image.RGBA { return s.img }

// Snapshot returns a copy of the current pixels.
func (s *Surface) Snapshot() *image.RGBA {
	out := &image.RGBA{
		Pix:    slices.Clone(s.img.Pix),
		Stride: s.img.Stride,
		Rect:   s.img.Rect,
	}
	return out
}

// WritePNG encodes the current pixels as PNG.
func (s *Surface) WritePNG(w io.Writer) error {
	return png.Encode(w, s.img)
}

// Clear resets every pixel to the background.
func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), s.bg, image.Point{}, draw.Src)
}

// Render replays records from a blank surface. A clear record wipes all
// strokes painted before it in this replay.
func (s *Surface) Render(records []state.Record) {
	s.Clear()
	for _, rec := range records {
		s.Paint(rec)
	}
}

// Paint draws one record on top of the current pixels.
func (s *Surface) Paint(rec state.Record) {
	s.PaintTail(rec, 0)
}

// PaintTail draws the part of rec that starts at point index from, joined
// to the point before it. It lets a gesture be painted incrementally as
// points arrive.
func (s *Surface) PaintTail(rec state.Record, from int) {
	switch rec.Kind {
	case state.KindClear:
		s.Clear()
		return
	case state.KindDraw, state.KindErase:
	default:
		return
	}

	pts := rec.Points
	if from > 0 {
		if from >= len(pts) {
			return
		}
		pts = pts[from-1:]
	}
	pts = dedupe(pts)
	if len(pts) == 0 {
		return
	}

	col := s.strokeColor(rec)
	width := float64(state.ClampThickness(rec.Thickness))
	w, h := s.img.Bounds().Dx(), s.img.Bounds().Dy()
	scanner := rasterx.NewScannerGV(w, h, s.img, s.img.Bounds())

	if len(pts) == 1 {
		// a lone point still leaves a round mark the size of the pen
		filler := rasterx.NewFiller(w, h, scanner)
		rasterx.AddCircle(float64(pts[0].X), float64(pts[0].Y), width/2, filler)
		filler.SetColor(col)
		filler.Draw()
		return
	}

	stroker := rasterx.NewStroker(w, h, scanner)
	stroker.SetStroke(
		fixed.Int26_6(width*64),
		fixed.Int26_6(miterLimit*64),
		rasterx.RoundCap, rasterx.RoundCap,
		rasterx.RoundGap, rasterx.Round,
	)
	stroker.Start(toFixed(pts[0]))
	for _, p := range pts[1:] {
		stroker.Line(toFixed(p))
	}
	stroker.Stop(false)
	stroker.SetColor(col)
	stroker.Draw()
}

func (s *Surface) strokeColor(rec state.Record) color.Color {
	if rec.Kind == state.KindErase {
		return s.bg.C
	}
	return rec.RGBA()
}

func toFixed(p state.Point) fixed.Point26_6 {
	return rasterx.ToFixedP(float64(p.X), float64(p.Y))
}

// dedupe drops consecutive repeats, which carry no direction for the stroker.
func dedupe(pts []state.Point) []state.Point {
	if len(pts) < 2 {
		return pts
	}
	out := make([]state.Point, 0, len(pts))
	out = append(out, pts[0])
	for _, p := range pts[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
