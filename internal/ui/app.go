// Package ui is the fyne front end: the drawing surface, the toolbar and a
// status bar around one board session.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"SketchBoard/internal/board"
	"SketchBoard/internal/state"
)

// App is one SketchBoard window.
type App struct {
	app     fyne.App
	window  fyne.Window
	board   *BoardWidget
	session *board.Session
	status  *widget.Label

	width, height int
}

// NewApp builds the window around s and hooks s's frame and warning output
// to it. Call it before starting s.Run.
func NewApp(title, shareLink string, s *board.Session, width, height int) *App {
	a := &App{
		app:     app.New(),
		session: s,
		status:  widget.NewLabel("Ready"),
		width:   width,
		height:  height,
	}
	a.window = a.app.NewWindow(title)
	a.board = NewBoardWidget(s, width, height)

	s.OnFrame = a.board.ShowFrame
	s.OnWarning = func(err error) {
		var rErr *state.ReplicationError
		if errors.As(err, &rErr) {
			a.SetStatus("Not synced yet, will retry: " + rErr.Err.Error())
			return
		}
		a.SetStatus(err.Error())
	}

	bottom := []fyne.CanvasObject{a.status}
	if shareLink != "" {
		link := widget.NewLabel(shareLink)
		copyLink := widget.NewButton("Copy link", func() {
			a.window.Clipboard().SetContent(shareLink)
			a.SetStatus("Link copied")
		})
		bottom = append(bottom, widget.NewSeparator(), link, copyLink)
	}

	toolbar := NewToolbar(s, a.export)
	content := container.NewBorder(toolbar, container.NewHBox(bottom...), nil, nil, a.board)
	a.window.SetContent(content)
	a.window.Resize(fyne.NewSize(float32(width), float32(height)+80))
	return a
}

// SetStatus shows text in the status bar. Safe to call from any goroutine.
func (a *App) SetStatus(text string) {
	fyne.Do(func() { a.status.SetText(text) })
}

// Run shows the window and blocks until it is closed.
func (a *App) Run() {
	a.window.ShowAndRun()
}

func (a *App) export() {
	save := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		if w == nil {
			return
		}
		go a.writeExport(w)
	}, a.window)
	save.SetFileName("sketchboard.png")
	save.Show()
}

func (a *App) writeExport(w fyne.URIWriteCloser) {
	defer func() {
		if err := w.Close(); err != nil {
			log.Printf("[EXPORT] close %s: %v", w.URI(), err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	records, err := a.session.Records(ctx)
	if err != nil {
		a.SetStatus("Export failed: " + err.Error())
		return
	}
	if err := WriteExport(w, w.URI().Extension(), records, a.width, a.height); err != nil {
		log.Printf("[EXPORT] %s: %v", w.URI(), err)
		a.SetStatus("Export failed: " + err.Error())
		return
	}
	log.Printf("[EXPORT] wrote %d records to %s", len(records), w.URI())
	a.SetStatus(fmt.Sprintf("Exported %d records", len(records)))
}
