package transcoding

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/common/rcontext"
	"github.com/t2bot/patient-media-repo/metrics"
	"github.com/t2bot/patient-media-repo/thumbnailing"
)

// Output shorter than the input by more than this is treated as truncated.
const truncationTolerance = time.Second

type TranscodeResult struct {
	Path        string
	Width       int
	Height      int
	Duration    time.Duration
	Codec       string
	SizeBytes   int64
	Passthrough bool
	Poster      []byte // JPEG, thumbnail sized

	owned bool
}

// Close removes the converted file. Passthrough results point at the caller's
// input and are left alone.
func (r *TranscodeResult) Close() error {
	if r == nil || !r.owned {
		return nil
	}
	r.owned = false
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type Transcoder struct {
	engine  Engine
	cfg     config.VideosConfig
	images  *thumbnailing.Processor
	poster  config.DerivativeSize
	tempDir string
}

func NewTranscoder(cfg config.VideosConfig, engine Engine, images *thumbnailing.Processor, poster config.DerivativeSize, tempDir string) *Transcoder {
	return &Transcoder{
		engine:  engine,
		cfg:     cfg,
		images:  images,
		poster:  poster,
		tempDir: tempDir,
	}
}

func (t *Transcoder) Probe(ctx rcontext.RequestContext, fpath string) (*ProbeResult, error) {
	pctx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout())
	defer cancel()
	res, err := t.engine.Probe(pctx, fpath)
	if err != nil {
		return nil, &TranscodeError{Op: "probe", Err: err}
	}
	return res, nil
}

// IsCanonical reports whether p already matches the configured profile.
func (t *Transcoder) IsCanonical(p *ProbeResult) bool {
	prof := t.cfg.Profile
	if p == nil || !p.HasVideo {
		return false
	}
	if p.Container != prof.Container || p.VideoCodec != prof.VideoCodec || p.PixelFormat != prof.PixelFormat {
		return false
	}
	if p.HasAudio && p.AudioCodec != prof.AudioCodec {
		return false
	}
	return p.Width > 0 && p.Height > 0 && p.Width%2 == 0 && p.Height%2 == 0
}

// Transcode converts the validated input at fpath to the canonical profile
// (or passes it through when it already conforms) and extracts a poster frame.
func (t *Transcoder) Transcode(ctx rcontext.RequestContext, fpath string, probe *ProbeResult) (*TranscodeResult, error) {
	if probe == nil || !probe.HasVideo {
		return nil, &TranscodeError{Op: "transcode", Err: errors.New("input has no video stream")}
	}
	if probe.Duration > t.cfg.MaxDuration() {
		return nil, &TranscodeError{Op: "transcode", Err: fmt.Errorf("duration %s over limit", probe.Duration)}
	}

	start := time.Now()
	result, err := t.convert(ctx, fpath, probe)
	if err != nil {
		metrics.Transcodes.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err = t.makePoster(ctx, result); err != nil {
		_ = result.Close()
		metrics.Transcodes.WithLabelValues("failed").Inc()
		return nil, err
	}

	if result.Passthrough {
		metrics.Transcodes.WithLabelValues("passthrough").Inc()
	} else {
		metrics.Transcodes.WithLabelValues("converted").Inc()
		metrics.TranscodeTime.Observe(time.Since(start).Seconds())
	}
	ctx.Log.WithFields(logrus.Fields{
		"passthrough": result.Passthrough,
		"size":        humanize.Bytes(uint64(result.SizeBytes)),
		"elapsed":     time.Since(start).String(),
	}).Info("Video ready")
	return result, nil
}

func (t *Transcoder) convert(ctx rcontext.RequestContext, fpath string, probe *ProbeResult) (*TranscodeResult, error) {
	if t.IsCanonical(probe) {
		st, err := os.Stat(fpath)
		if err != nil {
			return nil, &TranscodeError{Op: "stat", Err: err}
		}
		return &TranscodeResult{
			Path:        fpath,
			Width:       probe.Width,
			Height:      probe.Height,
			Duration:    probe.Duration,
			Codec:       probe.VideoCodec,
			SizeBytes:   st.Size(),
			Passthrough: true,
			owned:       false,
		}, nil
	}

	f, err := os.CreateTemp(t.tempDir, "media-transcode-*."+t.cfg.Profile.Container)
	if err != nil {
		return nil, &TranscodeError{Op: "tempfile", Err: err}
	}
	outPath := f.Name()
	_ = f.Close()
	result := &TranscodeResult{Path: outPath, owned: true}

	tctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout())
	defer cancel()
	ctx.Log.Debugf("Converting %s %s/%s to %s", probe.Container, probe.VideoCodec, probe.AudioCodec, t.cfg.Profile.Container)
	if err = t.engine.Transcode(tctx, fpath, outPath, t.cfg.Profile, t.cfg.MaxOutputBytes); err != nil {
		_ = result.Close()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", t.cfg.Timeout())
		}
		ctx.Log.Warn("Error converting video: ", err)
		return nil, &TranscodeError{Op: "transcode", Err: err}
	}

	out, err := t.Probe(ctx, outPath)
	if err != nil {
		_ = result.Close()
		return nil, err
	}
	if err = t.verify(probe, out); err != nil {
		_ = result.Close()
		return nil, &TranscodeError{Op: "verify", Err: err}
	}
	st, err := os.Stat(outPath)
	if err != nil {
		_ = result.Close()
		return nil, &TranscodeError{Op: "stat", Err: err}
	}

	result.Width = out.Width
	result.Height = out.Height
	result.Duration = out.Duration
	result.Codec = out.VideoCodec
	result.SizeBytes = st.Size()
	return result, nil
}

func (t *Transcoder) verify(in *ProbeResult, out *ProbeResult) error {
	if !t.IsCanonical(out) {
		return fmt.Errorf("output is %s %s/%s %s %dx%d", out.Container, out.VideoCodec, out.AudioCodec, out.PixelFormat, out.Width, out.Height)
	}
	if out.Duration+truncationTolerance < in.Duration {
		return fmt.Errorf("output truncated: %s of %s", out.Duration, in.Duration)
	}
	return nil
}

func (t *Transcoder) makePoster(ctx rcontext.RequestContext, result *TranscodeResult) error {
	at := time.Duration(t.cfg.PosterAtSeconds * float64(time.Second))
	if result.Duration <= at {
		at = 0
	}

	f, err := os.CreateTemp(t.tempDir, "media-poster-*.png")
	if err != nil {
		return &TranscodeError{Op: "tempfile", Err: err}
	}
	framePath := f.Name()
	_ = f.Close()
	defer os.Remove(framePath)

	fctx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout())
	defer cancel()
	if err = t.engine.ExtractFrame(fctx, result.Path, framePath, at); err != nil {
		return &TranscodeError{Op: "poster", Err: err}
	}

	frame, err := os.Open(framePath)
	if err != nil {
		return &TranscodeError{Op: "poster", Err: err}
	}
	defer frame.Close()
	img, _, err := image.Decode(frame)
	if err != nil {
		return &TranscodeError{Op: "poster", Err: err}
	}
	result.Poster, err = t.images.Resize(img, t.poster.Width, t.poster.Height)
	if err != nil {
		return &TranscodeError{Op: "poster", Err: err}
	}
	return nil
}
