package i

import (
	"errors"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type webpDecoder struct {
}

func (d webpDecoder) supportedContentTypes() []string {
	return []string{"image/webp"}
}

func (d webpDecoder) matches(contentType string) bool {
	return contentType == "image/webp"
}

func (d webpDecoder) GetOriginDimensions(r io.ReadSeeker) (int, int, error) {
	return decodeDimensions(r)
}

func (d webpDecoder) Decode(r io.ReadSeeker) (image.Image, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	src, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.New("webp: error decoding: " + err.Error())
	}
	return src, nil
}

func init() {
	decoders = append(decoders, webpDecoder{})
}
