package i

import (
	"errors"
	"image"
	_ "image/jpeg"
	"io"

	"github.com/disintegration/imaging"
	"github.com/t2bot/patient-media-repo/thumbnailing/u"
)

type jpgDecoder struct {
}

func (d jpgDecoder) supportedContentTypes() []string {
	return []string{"image/jpeg", "image/jpg"}
}

func (d jpgDecoder) matches(contentType string) bool {
	return contentType == "image/jpeg" || contentType == "image/jpg"
}

func (d jpgDecoder) GetOriginDimensions(r io.ReadSeeker) (int, int, error) {
	w, h, err := decodeDimensions(r)
	if err != nil {
		return 0, 0, err
	}
	if _, err = r.Seek(0, io.SeekStart); err != nil {
		return 0, 0, err
	}
	if o := u.ExtractExifOrientation(r); o != nil && (o.RotateDegrees == 90 || o.RotateDegrees == 270) {
		return h, w, nil
	}
	return w, h, nil
}

func (d jpgDecoder) Decode(r io.ReadSeeker) (image.Image, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	orientation := u.ExtractExifOrientation(r)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	src, err := imaging.Decode(r)
	if err != nil {
		return nil, errors.New("jpg: error decoding: " + err.Error())
	}
	return u.ApplyOrientation(src, orientation), nil
}

func init() {
	decoders = append(decoders, jpgDecoder{})
}
