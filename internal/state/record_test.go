package state

import (
	"encoding/json"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordValidation(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		points  []Point
		wantErr string
	}{
		{"draw with points", KindDraw, []Point{{1, 2}}, ""},
		{"erase with points", KindErase, []Point{{1, 2}, {3, 4}}, ""},
		{"clear without points", KindClear, nil, ""},
		{"draw without points", KindDraw, nil, "points must not be empty"},
		{"erase without points", KindErase, []Point{}, "points must not be empty"},
		{"unknown kind", Kind("spray"), []Point{{1, 1}}, "unknown value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewRecord(tt.kind, tt.points, "red", 5)
			if tt.wantErr != "" {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, rec.ID)
			assert.NoError(t, rec.Validate())
		})
	}
}

func TestNewRecordDropsMeaninglessFields(t *testing.T) {
	cl, err := NewRecord(KindClear, []Point{{1, 1}}, "red", 9)
	require.NoError(t, err)
	assert.Empty(t, cl.Points)
	assert.Empty(t, cl.Color)
	assert.Zero(t, cl.Thickness)

	erase, err := NewRecord(KindErase, []Point{{1, 1}}, "red", 99)
	require.NoError(t, err)
	assert.Empty(t, erase.Color)
	assert.Equal(t, MaxThickness, erase.Thickness)
}

func TestNewRecordCopiesPoints(t *testing.T) {
	pts := []Point{{1, 1}, {2, 2}}
	rec, err := NewRecord(KindDraw, pts, "", 2)
	require.NoError(t, err)
	pts[0] = Point{100, 100}
	assert.Equal(t, Point{1, 1}, rec.Points[0])
}

func TestRecordIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 1000 {
		id := NewClear().ID
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestValidateRejectsBadWireRecords(t *testing.T) {
	bad := []Record{
		{Kind: KindDraw, Points: []Point{{1, 1}}},
		{ID: "a", Kind: KindDraw},
		{ID: "b", Kind: KindClear, Points: []Point{{1, 1}}},
		{ID: "c", Kind: KindErase, Points: []Point{{1, 1}}, Thickness: -1},
		{ID: "d", Kind: "bogus"},
	}
	for _, rec := range bad {
		assert.Error(t, rec.Validate(), "record %+v", rec)
	}
}

func TestEqualAndSame(t *testing.T) {
	a, err := NewRecord(KindDraw, []Point{{1, 1}}, "red", 3)
	require.NoError(t, err)
	b := a.Clone()
	b.Points = append(b.Points, Point{2, 2})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Same(b))
	assert.True(t, a.Same(a.Clone()))
}

func TestRecordJSONShape(t *testing.T) {
	rec := Record{
		ID:        "r1",
		Kind:      KindDraw,
		Points:    []Point{{1.5, 2}},
		Color:     "#ff0000",
		Thickness: 4,
		Author:    "alice",
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"r1","kind":"draw","points":[{"x":1.5,"y":2}],"color":"#ff0000","thickness":4,"author":"alice"}`, string(data))

	data, err = json.Marshal(Record{ID: "c1", Kind: KindClear})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","kind":"clear"}`, string(data))
}

func TestColors(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"red", "#ff0000"},
		{" Blue ", "#0000ff"},
		{"#ABCDEF", "#abcdef"},
		{"#abc", "#aabbcc"},
		{"", DefaultColor},
		{"#12345", DefaultColor},
		{"#gggggg", DefaultColor},
		{"chartreuse", DefaultColor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeColor(tt.in), "input %q", tt.in)
	}
	assert.Equal(t, color.NRGBA{R: 0xab, G: 0xcd, B: 0xef, A: 0xff}, ParseColor("#abcdef"))
	assert.Equal(t, "#102030", FormatColor(color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0x80}))
}

func TestClampThickness(t *testing.T) {
	assert.Equal(t, MinThickness, ClampThickness(0))
	assert.Equal(t, MinThickness, ClampThickness(-3))
	assert.Equal(t, float32(12), ClampThickness(12))
	assert.Equal(t, MaxThickness, ClampThickness(31))
}
