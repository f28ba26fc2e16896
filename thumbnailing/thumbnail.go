package thumbnailing

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/thumbnailing/i"
	"github.com/t2bot/patient-media-repo/thumbnailing/u"
)

var ErrUnsupported = errors.New("unsupported image type")
var ErrTooManyPixels = errors.New("image has too many pixels")

const DerivativeContentType = "image/jpeg"
const DerivativeExtension = "jpg"

type Processor struct {
	maxPixels int
	quality   int
}

func NewProcessor(cfg config.ImagesConfig) *Processor {
	return &Processor{
		maxPixels: cfg.MaxPixels,
		quality:   cfg.JpegQuality,
	}
}

func IsSupported(contentType string) bool {
	return i.GetDecoder(contentType) != nil
}

// DecodeImage checks the declared dimensions against the pixel ceiling before
// decoding the whole image. The returned image has EXIF orientation applied.
func (p *Processor) DecodeImage(r io.ReadSeeker, contentType string) (image.Image, error) {
	decoder := i.GetDecoder(contentType)
	if decoder == nil {
		return nil, ErrUnsupported
	}

	// Validate maximum megapixel values to avoid memory issues
	w, h, err := decoder.GetOriginDimensions(r)
	if err != nil {
		return nil, fmt.Errorf("error getting dimensions: %w", err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", w, h)
	}
	if p.maxPixels > 0 && w*h > p.maxPixels {
		return nil, ErrTooManyPixels
	}

	return decoder.Decode(r)
}

// Derive produces one JPEG per size. Any failure fails the whole call.
func (p *Processor) Derive(ctx rcontext.RequestContext, img image.Image, sizes []config.DerivativeSize) (map[string][]byte, error) {
	results := make(map[string][]byte)
	for _, size := range sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := p.Resize(img, size.Width, size.Height)
		if err != nil {
			return nil, fmt.Errorf("derivative %s: %w", size.Label, err)
		}
		ctx.Log.Debugf("Derived %s (%d bytes)", size.Label, len(b))
		results[size.Label] = b
	}
	return results, nil
}

// Resize fits img inside the box and encodes it as JPEG.
func (p *Processor) Resize(img image.Image, boxWidth int, boxHeight int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("no image to resize")
	}
	bounds := img.Bounds()
	width, height, resize := u.FitWithin(bounds.Dx(), bounds.Dy(), boxWidth, boxHeight)
	out := img
	if resize {
		out = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := u.EncodeJpeg(buf, out, p.quality); err != nil {
		return nil, fmt.Errorf("error encoding: %w", err)
	}
	return buf.Bytes(), nil
}
