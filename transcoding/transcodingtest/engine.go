// Package transcodingtest provides an in-process transcoding.Engine for tests.
//
// Fake videos are an MP4 "ftyp" box followed by a JSON description of what
// a real probe would report, so they pass content sniffing and can be copied
// around like real files.
package transcodingtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync/atomic"
	"time"

	"github.com/t2bot/patient-media-repo/common/config"
	"github.com/t2bot/patient-media-repo/transcoding"
)

var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

type fakeVideo struct {
	transcoding.ProbeResult
	Nonce string
}

// MakeVideo returns the bytes of a fake video that probes as p. The nonce
// changes the content (and therefore the hash) without changing the probe.
func MakeVideo(p transcoding.ProbeResult, nonce string) []byte {
	b, err := json.Marshal(fakeVideo{ProbeResult: p, Nonce: nonce})
	if err != nil {
		panic(err)
	}
	return append(append([]byte{}, mp4Header...), b...)
}

// CanonicalVideo is a short clip already matching the default profile.
func CanonicalVideo(duration time.Duration, nonce string) []byte {
	return MakeVideo(transcoding.ProbeResult{
		Container:   "mp4",
		Duration:    duration,
		HasVideo:    true,
		HasAudio:    true,
		VideoCodec:  "h264",
		AudioCodec:  "aac",
		PixelFormat: "yuv420p",
		Width:       640,
		Height:      360,
	}, nonce)
}

// ForeignVideo is a clip that needs converting (odd width, hevc).
func ForeignVideo(duration time.Duration, nonce string) []byte {
	return MakeVideo(transcoding.ProbeResult{
		Container:   "mp4",
		Duration:    duration,
		HasVideo:    true,
		HasAudio:    true,
		VideoCodec:  "hevc",
		AudioCodec:  "opus",
		PixelFormat: "yuv420p10le",
		Width:       641,
		Height:      361,
	}, nonce)
}

type Engine struct {
	TranscodeErr error
	ProbeErr     error
	// Truncate makes converted outputs report half the input duration.
	Truncate bool
	// Delay is waited (or ctx, whichever first) before converting.
	Delay time.Duration

	transcodes int32
	probes     int32
}

func (e *Engine) Transcodes() int {
	return int(atomic.LoadInt32(&e.transcodes))
}

func (e *Engine) Probes() int {
	return int(atomic.LoadInt32(&e.probes))
}

func readFake(fpath string) (*fakeVideo, error) {
	b, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(b, mp4Header) {
		return nil, errors.New("invalid data found when processing input")
	}
	v := &fakeVideo{}
	if err = json.Unmarshal(b[len(mp4Header):], v); err != nil {
		return nil, errors.New("invalid data found when processing input")
	}
	return v, nil
}

func (e *Engine) Probe(ctx context.Context, fpath string) (*transcoding.ProbeResult, error) {
	atomic.AddInt32(&e.probes, 1)
	if e.ProbeErr != nil {
		return nil, e.ProbeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := readFake(fpath)
	if err != nil {
		return nil, err
	}
	p := v.ProbeResult
	return &p, nil
}

func (e *Engine) Transcode(ctx context.Context, in string, out string, profile config.VideoProfile, maxBytes int64) error {
	atomic.AddInt32(&e.transcodes, 1)
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	if e.TranscodeErr != nil {
		return e.TranscodeErr
	}
	v, err := readFake(in)
	if err != nil {
		return err
	}

	p := v.ProbeResult
	p.Container = profile.Container
	p.VideoCodec = profile.VideoCodec
	p.PixelFormat = profile.PixelFormat
	if p.HasAudio {
		p.AudioCodec = profile.AudioCodec
	}
	p.Width -= p.Width % 2
	p.Height -= p.Height % 2
	if e.Truncate {
		p.Duration /= 2
	}
	return os.WriteFile(out, MakeVideo(p, v.Nonce+"-converted"), 0600)
}

func (e *Engine) ExtractFrame(ctx context.Context, in string, out string, at time.Duration) error {
	v, err := readFake(in)
	if err != nil {
		return err
	}
	w, h := v.Width, v.Height
	if w <= 0 || h <= 0 {
		w, h = 16, 16
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
