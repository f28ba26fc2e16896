package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Profile values end up on the encoder's command line, so they are limited to
// plain tokens.
var profileTokenRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
var bitrateRegex = regexp.MustCompile(`^[0-9]+[km]?$`)
var labelRegex = regexp.MustCompile(`^[a-z0-9]+$`)

const ThumbnailLabel = "thumbnail"

func Validate(c *MainRepoConfig) error {
	if c.Uploads.MaxImageBytes <= 0 || c.Uploads.MaxVideoBytes <= 0 {
		return errors.New("uploads: maxImageBytes and maxVideoBytes must be positive")
	}
	if c.Uploads.MaxFilenameLength < 16 {
		return errors.New("uploads: maxFilenameLength must be at least 16")
	}
	if c.Uploads.StoreAttempts < 1 {
		c.Uploads.StoreAttempts = 1
	}
	for _, ext := range append(append([]string{}, c.Uploads.ImageExtensions...), c.Uploads.VideoExtensions...) {
		if !strings.HasPrefix(ext, ".") || ext != strings.ToLower(ext) {
			return fmt.Errorf("uploads: extension %q must be lower case and start with a dot", ext)
		}
	}

	hasThumbnail := false
	for _, d := range c.Images.Derivatives {
		if !labelRegex.MatchString(d.Label) {
			return fmt.Errorf("images: derivative label %q must be lower case alphanumeric", d.Label)
		}
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("images: derivative %s must have positive dimensions", d.Label)
		}
		if d.Label == ThumbnailLabel {
			hasThumbnail = true
		}
	}
	if !hasThumbnail {
		return errors.New("images: a derivative labelled 'thumbnail' is required")
	}
	if c.Images.JpegQuality < 1 || c.Images.JpegQuality > 100 {
		return errors.New("images: jpegQuality must be between 1 and 100")
	}

	if c.Videos.MaxDurationSeconds <= 0 || c.Videos.TimeoutSeconds <= 0 || c.Videos.ProbeTimeoutSecs <= 0 {
		return errors.New("videos: duration and timeouts must be positive")
	}
	if c.Videos.MaxOutputBytes <= 0 {
		return errors.New("videos: maxOutputBytes must be positive")
	}
	p := c.Videos.Profile
	for name, val := range map[string]string{
		"container":    p.Container,
		"videoCodec":   p.VideoCodec,
		"videoEncoder": p.VideoEncoder,
		"audioCodec":   p.AudioCodec,
		"preset":       p.Preset,
		"pixelFormat":  p.PixelFormat,
	} {
		if !profileTokenRegex.MatchString(val) {
			return fmt.Errorf("videos: profile.%s %q is not a plain token", name, val)
		}
	}
	if !bitrateRegex.MatchString(p.AudioBitrate) {
		return fmt.Errorf("videos: profile.audioBitrate %q is not a bitrate", p.AudioBitrate)
	}
	if p.Crf < 0 || p.Crf > 51 {
		return errors.New("videos: profile.crf must be between 0 and 51")
	}

	if c.Database.StaleReservationSeconds < 60 {
		return errors.New("database: staleReservationSeconds must be at least 60")
	}
	if c.Workers.Ingest < 1 || c.Workers.Transcode < 1 {
		return errors.New("workers: ingest and transcode must be at least 1")
	}
	if c.Datastore.Type != "file" && c.Datastore.Type != "s3" {
		return fmt.Errorf("datastore: unknown type %q", c.Datastore.Type)
	}
	if c.RateLimit.DistinctFetches.Enabled && (c.RateLimit.DistinctFetches.MaxFetches < 1 || c.RateLimit.DistinctFetches.WindowSeconds < 1) {
		return errors.New("rateLimit: distinctFetches needs a positive maxFetches and windowSeconds")
	}
	return nil
}
