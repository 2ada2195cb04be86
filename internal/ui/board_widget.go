package ui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"SketchBoard/internal/board"
	"SketchBoard/internal/state"
)

// BoardWidget is the pointer input surface. It forwards pointer events to a
// session and shows the frames the session renders.
type BoardWidget struct {
	widget.BaseWidget
	session *board.Session

	// canvas size in record coordinates
	width, height float32

	frame   *canvas.Image
	drawing bool
}

var _ fyne.Widget = (*BoardWidget)(nil)
var _ fyne.Draggable = (*BoardWidget)(nil)
var _ desktop.Mouseable = (*BoardWidget)(nil)
var _ desktop.Hoverable = (*BoardWidget)(nil)

func NewBoardWidget(s *board.Session, width, height int) *BoardWidget {
	b := &BoardWidget{
		session: s,
		width:   float32(width),
		height:  float32(height),
	}
	b.frame = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, width, height)))
	b.frame.FillMode = canvas.ImageFillStretch
	b.frame.ScaleMode = canvas.ImageScaleFastest
	b.ExtendBaseWidget(b)
	return b
}

// ShowFrame displays img. Safe to call from any goroutine.
func (b *BoardWidget) ShowFrame(img *image.RGBA) {
	fyne.Do(func() {
		b.frame.Image = img
		b.frame.Refresh()
	})
}

// toCanvas maps a widget position to canvas coordinates.
func (b *BoardWidget) toCanvas(pos fyne.Position) state.Point {
	size := b.Size()
	if size.Width <= 0 || size.Height <= 0 {
		return state.Point{X: pos.X, Y: pos.Y}
	}
	return state.Point{
		X: pos.X * b.width / size.Width,
		Y: pos.Y * b.height / size.Height,
	}
}

func (b *BoardWidget) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	b.drawing = true
	b.session.PointerDown(b.toCanvas(e.Position))
}

func (b *BoardWidget) MouseUp(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary || !b.drawing {
		return
	}
	b.drawing = false
	b.session.PointerUp()
}

func (b *BoardWidget) Dragged(e *fyne.DragEvent) {
	if b.drawing {
		b.session.PointerMove(b.toCanvas(e.Position))
	}
}

func (b *BoardWidget) DragEnd() {
	if b.drawing {
		b.drawing = false
		b.session.PointerUp()
	}
}

func (b *BoardWidget) MouseIn(*desktop.MouseEvent)    {}
func (b *BoardWidget) MouseMoved(*desktop.MouseEvent) {}

// MouseOut finalizes a gesture that leaves the surface.
func (b *BoardWidget) MouseOut() {
	if b.drawing {
		b.drawing = false
		b.session.PointerLeave()
	}
}

func (b *BoardWidget) CreateRenderer() fyne.WidgetRenderer {
	return &boardWidgetRenderer{
		board:      b,
		background: canvas.NewRectangle(color.White),
	}
}

type boardWidgetRenderer struct {
	board      *BoardWidget
	background *canvas.Rectangle
}

func (r *boardWidgetRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.background, r.board.frame}
}

func (r *boardWidgetRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)
	r.board.frame.Resize(size)
}

func (r *boardWidgetRenderer) MinSize() fyne.Size {
	return fyne.NewSize(r.board.width, r.board.height)
}

func (r *boardWidgetRenderer) Refresh() {
	r.board.frame.Refresh()
}

func (r *boardWidgetRenderer) Destroy() {}
