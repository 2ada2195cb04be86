package state

import (
	"fmt"
	"image/color"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Stroke width bounds in pixels.
const (
	MinThickness float32 = 1
	MaxThickness float32 = 30
)

// DefaultColor is used for draw records without a usable color.
const DefaultColor = "#000000"

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type Kind string

const (
	KindDraw  Kind = "draw"
	KindErase Kind = "erase"
	KindClear Kind = "clear"
)

func (k Kind) valid() bool {
	return k == KindDraw || k == KindErase || k == KindClear
}

// Record is one replicated drawing event. Once finalized it is treated as an
// immutable value; the ID is the replication key.
type Record struct {
	ID        string  `json:"id"`
	Kind      Kind    `json:"kind"`
	Points    []Point `json:"points,omitempty"`
	Color     string  `json:"color,omitempty"`
	Thickness float32 `json:"thickness,omitempty"`
	Author    string  `json:"author,omitempty"`
}

// ValidationError reports a malformed record.
type ValidationError struct {
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid record %s: %s %s", e.ID, e.Field, e.Reason)
}

// NewRecord builds a finalized draw, erase or clear record with a fresh ID.
// Draw and erase records need at least one point. Thickness is clamped and
// the color normalized; both are dropped for erase and clear records where
// they carry no meaning.
func NewRecord(kind Kind, points []Point, col string, thickness float32) (Record, error) {
	if !kind.valid() {
		return Record{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown value %q", kind)}
	}
	if kind == KindClear {
		return NewClear(), nil
	}
	if len(points) == 0 {
		return Record{}, &ValidationError{Field: "points", Reason: "must not be empty"}
	}
	rec := Record{
		ID:        NewID(),
		Kind:      kind,
		Points:    slices.Clone(points),
		Thickness: ClampThickness(thickness),
	}
	if kind == KindDraw {
		rec.Color = NormalizeColor(col)
	}
	return rec, nil
}

// NewClear returns a clear marker with a fresh ID.
func NewClear() Record {
	return Record{ID: NewID(), Kind: KindClear}
}

// NewID returns a globally unique record identifier.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the structural invariants of a record received from the
// replication layer.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if !r.Kind.valid() {
		return &ValidationError{ID: r.ID, Field: "kind", Reason: fmt.Sprintf("unknown value %q", r.Kind)}
	}
	if r.Kind == KindClear {
		if len(r.Points) != 0 {
			return &ValidationError{ID: r.ID, Field: "points", Reason: "must be empty for clear"}
		}
		return nil
	}
	if len(r.Points) == 0 {
		return &ValidationError{ID: r.ID, Field: "points", Reason: "must not be empty"}
	}
	if r.Thickness < 0 {
		return &ValidationError{ID: r.ID, Field: "thickness", Reason: "must not be negative"}
	}
	return nil
}

// Equal reports whether both records share the same identity.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID
}

// Same reports whether both records are identical in identity and content.
func (r Record) Same(o Record) bool {
	return r.ID == o.ID &&
		r.Kind == o.Kind &&
		r.Color == o.Color &&
		r.Thickness == o.Thickness &&
		r.Author == o.Author &&
		slices.Equal(r.Points, o.Points)
}

// Clone returns a copy that shares no memory with r.
func (r Record) Clone() Record {
	r.Points = slices.Clone(r.Points)
	return r
}

// RGBA returns the display color of a draw record.
func (r Record) RGBA() color.NRGBA {
	return ParseColor(r.Color)
}

// ClampThickness forces a stroke width into [MinThickness, MaxThickness].
func ClampThickness(t float32) float32 {
	if t != t || t < MinThickness {
		return MinThickness
	}
	if t > MaxThickness {
		return MaxThickness
	}
	return t
}

var namedColors = map[string]string{
	"black":  "#000000",
	"red":    "#ff0000",
	"green":  "#00ff00",
	"blue":   "#0000ff",
	"yellow": "#ffff00",
	"white":  "#ffffff",
}

// NormalizeColor maps a color name or hex string to lower-case #rrggbb.
// Anything unparsable becomes DefaultColor.
func NormalizeColor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, ok := namedColors[s]; ok {
		return hex
	}
	c, ok := parseHex(s)
	if !ok {
		return DefaultColor
	}
	return FormatColor(c)
}

// ParseColor decodes a color accepted by NormalizeColor.
func ParseColor(s string) color.NRGBA {
	c, _ := parseHex(NormalizeColor(s))
	return c
}

func parseHex(s string) (color.NRGBA, bool) {
	if !strings.HasPrefix(s, "#") {
		return color.NRGBA{A: 255}, false
	}
	digits := s[1:]
	if len(digits) == 3 {
		digits = string([]byte{digits[0], digits[0], digits[1], digits[1], digits[2], digits[2]})
	}
	if len(digits) != 6 {
		return color.NRGBA{A: 255}, false
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return color.NRGBA{A: 255}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

// FormatColor encodes c as #rrggbb, ignoring alpha.
func FormatColor(c color.Color) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
}
