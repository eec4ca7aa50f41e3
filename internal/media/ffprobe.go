package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FFProbe probes files by running the ffprobe binary.
type FFProbe struct {
	binary  string
	timeout time.Duration
}

// NewFFProbe creates a prober using the given ffprobe binary. A zero timeout
// disables the per-file deadline.
func NewFFProbe(binary string, timeout time.Duration) *FFProbe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFProbe{binary: binary, timeout: timeout}
}

// Probe implements Prober.
func (p *FFProbe) Probe(ctx context.Context, path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !info.Mode().IsRegular() {
		return Metadata{}, fmt.Errorf("%w: %s is not a regular file", ErrIO, path)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary, //nolint:gosec // G204: binary comes from operator config
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Metadata{}, fmt.Errorf("%w: probing %s: %v", ErrIO, path, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Metadata{}, fmt.Errorf("%w: %s: %s", ErrUnsupportedFormat, path, strings.TrimSpace(stderr.String()))
		}
		return Metadata{}, fmt.Errorf("%w: running %s: %v", ErrIO, p.binary, err)
	}

	md, err := ParseFFProbe(stdout.Bytes())
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	if md.SizeBytes == 0 {
		md.SizeBytes = info.Size()
	}
	return md, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Size string `json:"size"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	PixFmt           string `json:"pix_fmt"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	Height           int    `json:"height"`
	Disposition      struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// ParseFFProbe converts ffprobe JSON output into Metadata. Output without a
// video stream is reported as ErrUnsupportedFormat.
func ParseFFProbe(data []byte) (Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("%w: decoding ffprobe output: %v", ErrUnsupportedFormat, err)
	}

	var md Metadata
	var haveVideo, haveAudio bool
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if haveVideo || s.Disposition.AttachedPic == 1 {
				continue
			}
			haveVideo = true
			md.Codec = CanonicalVideoCodec(s.CodecName)
			md.BitDepth = bitDepth(s)
			md.Resolution = ResolutionLabel(s.Height)
		case "audio":
			if haveAudio {
				continue
			}
			haveAudio = true
			md.AudioCodec = CanonicalAudioCodec(s.CodecName)
		case "subtitle":
			md.HasSubtitles = true
		}
	}
	if !haveVideo {
		return Metadata{}, fmt.Errorf("%w: no video stream", ErrUnsupportedFormat)
	}
	if out.Format.Size != "" {
		if n, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
			md.SizeBytes = n
		}
	}
	return md, nil
}

var pixFmtDepth = regexp.MustCompile(`p(9|10|12|14|16)(le|be)?$`)

func bitDepth(s ffprobeStream) int {
	if n, err := strconv.Atoi(s.BitsPerRawSample); err == nil && n > 0 {
		return n
	}
	if m := pixFmtDepth.FindStringSubmatch(s.PixFmt); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 8
}

// CanonicalVideoCodec maps ffprobe codec names onto display labels.
func CanonicalVideoCodec(name string) string {
	switch strings.ToLower(name) {
	case "h264", "avc", "avc1":
		return "H.264"
	case "hevc", "h265":
		return "HEVC"
	case "av1":
		return "AV1"
	case "vp9":
		return "VP9"
	case "vp8":
		return "VP8"
	case "mpeg4":
		return "MPEG-4"
	case "mpeg2video":
		return "MPEG-2"
	default:
		return strings.ToUpper(name)
	}
}

// CanonicalAudioCodec maps ffprobe audio codec names onto display labels.
// DTS profiles (DTS-HD MA, DTS:X) all report as DTS.
func CanonicalAudioCodec(name string) string {
	switch strings.ToLower(name) {
	case "dts":
		return "DTS"
	case "eac3":
		return "EAC3"
	case "ac3":
		return "AC3"
	case "aac":
		return "AAC"
	case "truehd":
		return "TrueHD"
	case "flac":
		return "FLAC"
	case "mp3":
		return "MP3"
	case "opus":
		return "Opus"
	default:
		return strings.ToUpper(name)
	}
}

// ResolutionLabel buckets a frame height into the labels shown in reports.
func ResolutionLabel(height int) string {
	switch {
	case height <= 0:
		return ""
	case height >= 2000:
		return "2160p"
	case height >= 1000:
		return "1080p"
	case height >= 700:
		return "720p"
	default:
		return "SD"
	}
}
