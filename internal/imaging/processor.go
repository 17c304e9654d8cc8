package imaging

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	apperrors "go-card-matcher/internal/errors"
)

// Metadata describes the basic properties of a decoded image.
type Metadata struct {
	Width  int
	Height int
	Format string
}

// Decode decodes image bytes into an image.Image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("failed to decode image", err)
	}
	return img, nil
}

// DecodeMetadata reads width, height and format without keeping the pixels.
func DecodeMetadata(data []byte) (*Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecodeError("failed to read image header", err)
	}
	return &Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Crop returns the sub-image covered by rect, clipped to the image bounds.
// The region registry hands out unclipped rectangles; clipping to the
// actual image is this function's responsibility.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	clipped := rect.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, apperrors.NewDecodeError("crop rectangle outside image bounds", nil)
	}
	out := image.NewRGBA(image.Rect(0, 0, clipped.Dx(), clipped.Dy()))
	draw.Draw(out, out.Bounds(), img, clipped.Min, draw.Src)
	return out, nil
}

// Grayscale converts an image to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Normalize resizes an image to a fixed square size and converts it to
// grayscale, the canonical preprocessing step before hashing.
func Normalize(img image.Image, size int) *image.Gray {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	return Grayscale(resized)
}

// ResizeGray scales a grayscale image by the given factor.
func ResizeGray(gray *image.Gray, scale float64) *image.Gray {
	w := int(float64(gray.Bounds().Dx()) * scale)
	h := int(float64(gray.Bounds().Dy()) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	resized := resize.Resize(uint(w), uint(h), gray, resize.Bilinear)
	return Grayscale(resized)
}
