package u

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/dsoprea/go-exif/v3"
	"github.com/sirupsen/logrus"
)

type ExifOrientation struct {
	RotateDegrees  int // should be 0, 90, 180, or 270
	FlipVertical   bool
	FlipHorizontal bool
}

// GetExifOrientation reads the orientation tag from an image's EXIF block.
// A missing block, a missing tag and the "unset" value 0 all return nil.
func GetExifOrientation(img io.Reader) (*ExifOrientation, error) {
	rawExif, err := exif.SearchAndExtractExifWithReader(img)
	if errors.Is(err, exif.ErrNoExif) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exif: reading block: %w", err)
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("exif: parsing block: %w", err)
	}

	orientation, err := orientationValue(tags)
	if err != nil || orientation == 0 {
		return nil, err
	}
	return OrientationFromTag(orientation)
}

func orientationValue(tags []exif.ExifTag) (uint16, error) {
	for _, t := range tags {
		if t.TagName != "Orientation" {
			continue
		}
		switch v := t.Value.(type) {
		case uint16:
			return v, nil
		case []uint16:
			if len(v) > 0 {
				return v[0], nil
			}
		}
		return 0, fmt.Errorf("exif: orientation has unexpected type %T", t.Value)
	}
	return 0, nil
}

// OrientationFromTag converts an EXIF orientation value (1-8) into the
// rotation and flips needed to display the image upright.
func OrientationFromTag(orientation uint16) (*ExifOrientation, error) {
	if orientation < 1 || orientation > 8 {
		return nil, fmt.Errorf("orientation out of range: %d", orientation)
	}

	o := &ExifOrientation{
		FlipHorizontal: orientation < 5 && (orientation%2) == 0,
		FlipVertical:   orientation > 4 && (orientation%2) != 0,
	}
	switch orientation {
	case 3, 4:
		o.RotateDegrees = 180
	case 5, 6:
		o.RotateDegrees = 270
	case 7, 8:
		o.RotateDegrees = 90
	}
	return o, nil
}

// ExtractExifOrientation is GetExifOrientation for callers that treat a broken
// EXIF block as "no orientation".
func ExtractExifOrientation(r io.Reader) *ExifOrientation {
	orientation, err := GetExifOrientation(r)
	if err != nil {
		logrus.Warn("Non-fatal error reading exif headers: ", err)
		return nil
	}
	return orientation
}

// ApplyOrientation rotates (counter-clockwise, as imaging does) and then flips src.
func ApplyOrientation(src image.Image, orientation *ExifOrientation) image.Image {
	if orientation == nil {
		return src
	}

	result := src
	switch orientation.RotateDegrees {
	case 90:
		result = imaging.Rotate90(result)
	case 180:
		result = imaging.Rotate180(result)
	case 270:
		result = imaging.Rotate270(result)
	}

	if orientation.FlipHorizontal {
		result = imaging.FlipH(result)
	}
	if orientation.FlipVertical {
		result = imaging.FlipV(result)
	}
	return result
}
