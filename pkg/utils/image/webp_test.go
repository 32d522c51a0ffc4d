package image

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWebPFromPNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		src.Set(x, 4, color.RGBA{R: 200, A: 255})
	}
	var in bytes.Buffer
	require.NoError(t, png.Encode(&in, src))

	out, err := EncodeWebP(&in)
	require.NoError(t, err)

	cfg, err := webp.DecodeConfig(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestEncodeWebPRejectsNonImages(t *testing.T) {
	_, err := EncodeWebP(bytes.NewReader([]byte("%PDF-1.4")))
	assert.Error(t, err)
}

func TestReencodable(t *testing.T) {
	assert.True(t, Reencodable("image/png"))
	assert.False(t, Reencodable("image/svg+xml"))
	assert.False(t, Reencodable("application/pdf"))
}
