package transcoding

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type ProbeResult struct {
	Container   string // "mp4", "mov", "webm", or the raw format name
	Duration    time.Duration
	HasVideo    bool
	HasAudio    bool
	VideoCodec  string
	AudioCodec  string
	PixelFormat string
	Width       int
	Height      int
}

type ffprobeOutput struct {
	Format struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		PixFmt    string `json:"pix_fmt"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
	} `json:"streams"`
}

// ParseProbeOutput reads `ffprobe -print_format json -show_format -show_streams`
// output. Only the first video and first audio stream are considered.
func ParseProbeOutput(b []byte) (*ProbeResult, error) {
	out := ffprobeOutput{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	res := &ProbeResult{
		Container: containerName(out.Format.FormatName, out.Format.Tags["major_brand"]),
		Duration:  parseSeconds(out.Format.Duration),
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.HasVideo {
				continue
			}
			res.HasVideo = true
			res.VideoCodec = s.CodecName
			res.PixelFormat = s.PixFmt
			res.Width = s.Width
			res.Height = s.Height
			if s.Tags.Rotate == "90" || s.Tags.Rotate == "270" || s.Tags.Rotate == "-90" {
				res.Width, res.Height = res.Height, res.Width
			}
			if res.Duration == 0 {
				res.Duration = parseSeconds(s.Duration)
			}
		case "audio":
			if res.HasAudio {
				continue
			}
			res.HasAudio = true
			res.AudioCodec = s.CodecName
		}
	}
	return res, nil
}

func containerName(formatName string, majorBrand string) string {
	formats := strings.Split(formatName, ",")
	has := func(name string) bool {
		for _, f := range formats {
			if f == name {
				return true
			}
		}
		return false
	}
	switch {
	case has("webm") || has("matroska"):
		return "webm"
	case has("mp4") && strings.TrimSpace(majorBrand) == "qt":
		return "mov"
	case has("mp4"):
		return "mp4"
	case has("mov"):
		return "mov"
	}
	return formatName
}

func parseSeconds(s string) time.Duration {
	if s == "" || s == "N/A" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	// millisecond precision is what the duration ceiling is checked at
	return time.Duration(f*1000+0.5) * time.Millisecond
}
