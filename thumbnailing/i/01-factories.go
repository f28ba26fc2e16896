package i

import (
	"image"
	"io"
)

// Decoder turns a supported still image into pixels, upright.
type Decoder interface {
	supportedContentTypes() []string
	matches(contentType string) bool
	GetOriginDimensions(r io.ReadSeeker) (int, int, error)
	Decode(r io.ReadSeeker) (image.Image, error)
}

var decoders = make([]Decoder, 0)

func GetDecoder(contentType string) Decoder {
	for _, d := range decoders {
		if d.matches(contentType) {
			return d
		}
	}
	return nil
}

func GetSupportedContentTypes() []string {
	a := make([]string, 0)
	for _, d := range decoders {
		a = append(a, d.supportedContentTypes()...)
	}
	return a
}

func decodeDimensions(r io.ReadSeeker) (int, int, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}
	c, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, err
	}
	return c.Width, c.Height, nil
}
