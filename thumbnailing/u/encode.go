package u

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// EncodeJpeg writes img as a baseline JPEG. Transparent pixels are flattened
// onto white first. The encoder never writes metadata, so no EXIF from the
// source survives.
func EncodeJpeg(w io.Writer, img image.Image, quality int) error {
	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)
	return imaging.Encode(w, flat, imaging.JPEG, imaging.JPEGQuality(quality))
}
