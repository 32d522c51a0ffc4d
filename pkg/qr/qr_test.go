package qr

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefault(t *testing.T) {
	data, err := Render("https://qrcard.app/c/asha", Style{})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
	assert.Equal(t, DefaultSize, img.Bounds().Dy())
}

func TestRenderCustomSize(t *testing.T) {
	data, err := Render("https://qrcard.app/c/asha", Style{Size: 512, Foreground: "#123", Recovery: "high"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 512, img.Bounds().Dx())
}

func TestStyleValidate(t *testing.T) {
	tests := []struct {
		name  string
		style Style
		ok    bool
	}{
		{"zero value", Style{}, true},
		{"too small", Style{Size: 64}, false},
		{"too large", Style{Size: 2048}, false},
		{"bad colour", Style{Foreground: "#zzzzzz"}, false},
		{"same colours", Style{Foreground: "#ffffff", Background: "#FFFFFF"}, false},
		{"same colour in short form", Style{Foreground: "#fff", Background: "#ffffff"}, false},
		{"same colour against default background", Style{Foreground: "#FFF"}, false},
		{"bad recovery", Style{Recovery: "max"}, false},
		{"custom", Style{Foreground: "#1a73e8", Background: "#fff", Size: 1024, Recovery: "low"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.style.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidStyle)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#1a73e8")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff}, c)

	c, err = ParseHexColor("fff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, c)
}

func TestRenderRejectsEmptyContent(t *testing.T) {
	_, err := Render("  ", Style{})
	assert.ErrorIs(t, err, ErrInvalidStyle)
}
