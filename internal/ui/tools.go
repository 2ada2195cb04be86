package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"SketchBoard/internal/board"
	"SketchBoard/internal/state"
)

var palette = []string{"black", "red", "green", "blue", "yellow"}

type colorSwatch struct {
	widget.BaseWidget
	Color    color.Color
	OnTapped func(color.Color)
}

func newColorSwatch(c color.Color, tapped func(color.Color)) *colorSwatch {
	s := &colorSwatch{Color: c, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(s.Color)
	rect.SetMinSize(fyne.NewSize(32, 32))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Color)
	}
}

// NewToolbar builds the control surface for s. onExport is called by the
// save action.
func NewToolbar(s *board.Session, onExport func()) fyne.CanvasObject {
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.DocumentCreateIcon(), func() { s.SetEraser(false) }),
		widget.NewToolbarAction(theme.ContentRemoveIcon(), func() { s.SetEraser(true) }),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentUndoIcon(), s.Undo),
		widget.NewToolbarAction(theme.ContentRedoIcon(), s.Redo),
		widget.NewToolbarAction(theme.DeleteIcon(), s.Clear),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), onExport),
	)

	// picking a color also leaves eraser mode
	onColorTapped := func(c color.Color) {
		s.SetColor(state.FormatColor(c))
		s.SetEraser(false)
	}
	colorBox := container.NewHBox()
	for _, name := range palette {
		colorBox.Add(newColorSwatch(state.ParseColor(name), onColorTapped))
	}

	strokeSlider := widget.NewSlider(float64(state.MinThickness), float64(state.MaxThickness))
	strokeSlider.Step = 1
	strokeSlider.SetValue(3)
	strokeSlider.OnChanged = func(val float64) {
		s.SetThickness(float32(val))
	}
	sliderContainer := container.New(layout.NewGridWrapLayout(fyne.NewSize(150, 35)), strokeSlider)

	return container.NewHBox(
		widget.NewLabel("Tool:"),
		tb,
		widget.NewSeparator(),
		widget.NewLabel("Color:"),
		colorBox,
		widget.NewSeparator(),
		widget.NewLabel("Size:"),
		sliderContainer,
		layout.NewSpacer(),
	)
}
