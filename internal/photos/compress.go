package photos

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxDimension = 1200
	jpegQuality  = 80
)

var ErrUnsupportedImage = errors.New("unsupported image format")

// Compressed is a re-encoded JPEG ready for upload.
type Compressed struct {
	Data   []byte
	Width  int
	Height int
}

// Compress decodes a JPEG, PNG or WebP image, scales it so neither side
// exceeds MaxDimension and re-encodes it as JPEG.
func Compress(data []byte) (Compressed, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Compressed{}, ErrUnsupportedImage
		}
		return Compressed{}, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), MaxDimension)

	var img image.Image = src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Compressed{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return Compressed{Data: buf.Bytes(), Width: w, Height: h}, nil
}

// fit scales w x h down, keeping the aspect ratio, so the longer side is at
// most limit. Images already within the limit are left alone.
func fit(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
