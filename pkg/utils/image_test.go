package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestJPEGCompressor_Compress(t *testing.T) {
	c := NewJPEGCompressor(70, 100)
	out, err := c.Compress(pngBytes(t, 400, 200))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestJPEGCompressor_InvalidInput(t *testing.T) {
	_, err := NewJPEGCompressor(0, 0).Compress([]byte("not an image"))
	assert.Error(t, err)
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h, edge   int
		wantW, wantH int
	}{
		{"不需要缩放", 50, 40, 100, 50, 40},
		{"横图", 400, 100, 200, 200, 50},
		{"竖图", 100, 400, 200, 50, 200},
		{"不限制", 400, 400, 0, 400, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := Downscale(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.edge)
			assert.Equal(t, tt.wantW, img.Bounds().Dx())
			assert.Equal(t, tt.wantH, img.Bounds().Dy())
		})
	}
}

func TestDecodeSize(t *testing.T) {
	w, h, err := DecodeSize(pngBytes(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, 30, w)
	assert.Equal(t, 20, h)
}
