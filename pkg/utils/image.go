package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// 注册解码器
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// JPEGCompressor 解码任意常见格式，按最长边缩放后以固定质量重新编码为 JPEG
type JPEGCompressor struct {
	Quality int
	// MaxEdge 最长边上限，0 表示不缩放
	MaxEdge int
}

// NewJPEGCompressor quality 超出 1-100 时使用 80
func NewJPEGCompressor(quality, maxEdge int) *JPEGCompressor {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &JPEGCompressor{Quality: quality, MaxEdge: maxEdge}
}

// Compress 单次压缩，不做多轮尝试
func (c *JPEGCompressor) Compress(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image failed: %w", err)
	}

	img := Downscale(src, c.MaxEdge)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale 等比缩放到最长边不超过 maxEdge
func Downscale(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return src
	}

	var nw, nh int
	if w >= h {
		nw, nh = maxEdge, h*maxEdge/w
	} else {
		nw, nh = w*maxEdge/h, maxEdge
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// DecodeSize 只读取宽高
func DecodeSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
