package transcoding

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/t2bot/patient-media-repo/common/config"
)

// Engine is the external media converter.
type Engine interface {
	Probe(ctx context.Context, fpath string) (*ProbeResult, error)
	Transcode(ctx context.Context, in string, out string, profile config.VideoProfile, maxBytes int64) error
	ExtractFrame(ctx context.Context, in string, out string, at time.Duration) error
}

const stderrTail = 2048

type ffmpegEngine struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFfmpegEngine(cfg config.VideosConfig) Engine {
	return &ffmpegEngine{
		ffmpegPath:  cfg.FfmpegPath,
		ffprobePath: cfg.FfprobePath,
	}
}

func (e *ffmpegEngine) Probe(ctx context.Context, fpath string) (*ProbeResult, error) {
	stdout, err := run(ctx, e.ffprobePath, "-v", "error", "-print_format", "json", "-show_format", "-show_streams", "-i", fpath)
	if err != nil {
		return nil, err
	}
	return ParseProbeOutput(stdout)
}

// TranscodeArgs is the fixed argument template for converting in to the
// canonical profile. Only the profile tokens (validated at config load) and
// our own temp paths are substituted.
func TranscodeArgs(in string, out string, profile config.VideoProfile, maxBytes int64) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", in,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-c:v", profile.VideoEncoder,
		"-preset", profile.Preset,
		"-crf", strconv.Itoa(profile.Crf),
		"-pix_fmt", profile.PixelFormat,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:a", profile.AudioCodec,
		"-b:a", profile.AudioBitrate,
		"-map_metadata", "-1",
		"-movflags", "+faststart",
		"-fs", strconv.FormatInt(maxBytes, 10),
		"-f", profile.Container,
		out,
	}
}

func (e *ffmpegEngine) Transcode(ctx context.Context, in string, out string, profile config.VideoProfile, maxBytes int64) error {
	_, err := run(ctx, e.ffmpegPath, TranscodeArgs(in, out, profile, maxBytes)...)
	return err
}

func (e *ffmpegEngine) ExtractFrame(ctx context.Context, in string, out string, at time.Duration) error {
	_, err := run(ctx, e.ffmpegPath,
		"-hide_banner", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		"-f", "image2", "-c:v", "png",
		out,
	)
	return err
}

// run executes the command, killing it when ctx ends. Errors carry the tail of
// stderr for logging; callers must not show it to users.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 5 * time.Second
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tail := stderr.Bytes()
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(tail))
	}
	return stdout.Bytes(), nil
}
