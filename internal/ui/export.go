package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"SketchBoard/internal/render"
	"SketchBoard/internal/state"
)

// Export replays records into path. The extension picks the format: .pdf
// writes a vector page, anything else a PNG.
func Export(path string, records []state.Record, width, height int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteExport(f, filepath.Ext(path), records, width, height); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

// WriteExport writes records in the format named by ext (".pdf" or ".png").
func WriteExport(w io.Writer, ext string, records []state.Record, width, height int) error {
	if strings.EqualFold(ext, ".pdf") {
		return render.WritePDF(w, records, float64(width), float64(height))
	}
	s := render.NewSurface(width, height)
	s.Render(records)
	return s.WritePNG(w)
}
