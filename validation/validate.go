package validation

import (
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/thumbnailing"
	"github.com/t2bot/patient-media-repo/transcoding"
	"github.com/t2bot/patient-media-repo/util/readers"
)

// Prober reads container metadata from a video without decoding it.
type Prober interface {
	Probe(ctx rcontext.RequestContext, fpath string) (*transcoding.ProbeResult, error)
}

// Upload is an accepted upload spooled to a temp file. Close removes the file.
type Upload struct {
	FileName     string
	DeclaredMime string
	Sniffed      Sniffed
	SizeBytes    int64
	TempPath     string

	Width  int
	Height int
	Image  image.Image               // images only, upright
	Probe  *transcoding.ProbeResult // videos only
}

func (u *Upload) Kind() common.Kind {
	return u.Sniffed.Kind
}

func (u *Upload) Open() (*os.File, error) {
	return os.Open(u.TempPath)
}

func (u *Upload) Close() error {
	if u == nil || u.TempPath == "" {
		return nil
	}
	err := os.Remove(u.TempPath)
	u.TempPath = ""
	u.Image = nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type Validator struct {
	uploads config.UploadsConfig
	videos  config.VideosConfig
	images  *thumbnailing.Processor
	prober  Prober
	tempDir string
}

func NewValidator(uploads config.UploadsConfig, videos config.VideosConfig, images *thumbnailing.Processor, prober Prober, tempDir string) *Validator {
	return &Validator{
		uploads: uploads,
		videos:  videos,
		images:  images,
		prober:  prober,
		tempDir: tempDir,
	}
}

func contains(list []string, val string) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}

func (v *Validator) kindForExtension(ext string) (common.Kind, bool) {
	if contains(v.uploads.ImageExtensions, ext) {
		return common.KindImage, true
	}
	if contains(v.uploads.VideoExtensions, ext) {
		return common.KindVideo, true
	}
	return "", false
}

func (v *Validator) kindForMime(m string) (common.Kind, bool) {
	if contains(v.uploads.ImageMimeTypes, m) {
		return common.KindImage, true
	}
	if contains(v.uploads.VideoMimeTypes, m) {
		return common.KindVideo, true
	}
	return "", false
}

// Validate checks an upload against policy and spools it to a temp file. The
// returned error is a *common.Rejection for anything the uploader can fix.
// Nothing but the temp file is written, and it is removed on rejection.
func (v *Validator) Validate(ctx rcontext.RequestContext, r io.Reader, declaredName string, declaredMime string) (*Upload, error) {
	// Step 1: Filename and extension
	name, err := SanitizeFileName(declaredName, v.uploads.MaxFilenameLength)
	if err != nil {
		return nil, err
	}
	ext := Extension(name)
	extKind, ok := v.kindForExtension(ext)
	if !ok {
		return nil, common.Reject(common.RejectDisallowedExtension, "extension %q", ext)
	}

	// Step 2: Declared type
	parsedMime, _, err := mime.ParseMediaType(declaredMime)
	if err != nil {
		return nil, common.Reject(common.RejectKindMismatch, "unparseable content type")
	}
	mimeKind, ok := v.kindForMime(parsedMime)
	if !ok || mimeKind != extKind {
		return nil, common.Reject(common.RejectKindMismatch, "declared %s for a %s extension", parsedMime, extKind)
	}

	// Step 3: Sniff the real content
	limited := readers.LimitReaderWithOverrunError(r, v.uploads.MaxBytesFor(extKind))
	prefix := make([]byte, SniffLength)
	n, err := io.ReadFull(limited, prefix)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	prefix = prefix[:n]
	if n == 0 {
		return nil, common.Reject(common.RejectMalformedContent, "empty upload")
	}
	sniffed, ok := Sniff(prefix)
	if !ok || sniffed.Kind != extKind {
		return nil, common.Reject(common.RejectKindMismatch, "content is not a supported %s", extKind)
	}
	if ContainsActiveContent(prefix) {
		return nil, common.Reject(common.RejectMalformedContent, "active content in header")
	}

	// Step 4: Spool to disk, enforcing the size ceiling as we go
	upload := &Upload{
		FileName:     name,
		DeclaredMime: parsedMime,
		Sniffed:      sniffed,
	}
	f, err := os.CreateTemp(v.tempDir, "media-upload-*")
	if err != nil {
		return nil, err
	}
	upload.TempPath = f.Name()
	success := false
	defer func() {
		if !success {
			_ = upload.Close()
		}
	}()

	written, err := f.Write(prefix)
	upload.SizeBytes = int64(written)
	if err == nil {
		var copied int64
		copied, err = io.Copy(f, limited)
		upload.SizeBytes += copied
	}
	if err == nil {
		err = f.Close()
	} else {
		_ = f.Close()
	}
	if err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	// Step 5: Kind-specific checks
	if sniffed.Kind == common.KindImage {
		err = v.checkImage(upload)
	} else {
		err = v.checkVideo(ctx, upload)
	}
	if err != nil {
		return nil, err
	}

	ctx.Log.WithFields(logrus.Fields{
		"kind": sniffed.Kind,
		"type": sniffed.Mime,
		"size": humanize.Bytes(uint64(upload.SizeBytes)),
	}).Debug("Upload passed validation")
	success = true
	return upload, nil
}

func (v *Validator) checkImage(upload *Upload) error {
	f, err := upload.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := v.images.DecodeImage(f, upload.Sniffed.Mime)
	if err != nil {
		return common.Reject(common.RejectMalformedContent, "image does not decode: %v", err)
	}
	upload.Image = img
	upload.Width = img.Bounds().Dx()
	upload.Height = img.Bounds().Dy()
	return nil
}

func (v *Validator) checkVideo(ctx rcontext.RequestContext, upload *Upload) error {
	probe, err := v.prober.Probe(ctx, upload.TempPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return common.Reject(common.RejectMalformedContent, "video does not probe: %v", err)
	}
	if !probe.HasVideo {
		return common.Reject(common.RejectMalformedContent, "no video stream")
	}
	if probe.Duration <= 0 {
		return common.Reject(common.RejectMalformedContent, "unknown duration")
	}
	if probe.Duration > v.videos.MaxDuration() {
		return common.Reject(common.RejectDurationExceeded, fmt.Sprintf("%s is over %s", probe.Duration, v.videos.MaxDuration()))
	}
	upload.Probe = probe
	upload.Width = probe.Width
	upload.Height = probe.Height
	return nil
}
