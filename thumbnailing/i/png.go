package i

import (
	"errors"
	"image"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
)

type pngDecoder struct {
}

func (d pngDecoder) supportedContentTypes() []string {
	return []string{"image/png"}
}

func (d pngDecoder) matches(contentType string) bool {
	return contentType == "image/png"
}

func (d pngDecoder) GetOriginDimensions(r io.ReadSeeker) (int, int, error) {
	return decodeDimensions(r)
}

func (d pngDecoder) Decode(r io.ReadSeeker) (image.Image, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	src, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.New("png: error decoding: " + err.Error())
	}
	return src, nil
}

func init() {
	decoders = append(decoders, pngDecoder{})
}
