// Package video normalizes source files into a browser-decodable WebM and
// probes stream metadata, both by shelling out to ffmpeg/ffprobe.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

const (
	outputWidth  = 1280
	outputHeight = 720
	outputFPS    = 30

	// convertedSuffix replaces the source extension on the transcoded
	// sibling, keeping concurrent assets from colliding on one name.
	convertedSuffix = "_converted.webm"
)

// ConversionError carries the encoder's diagnostic output.
type ConversionError struct {
	Output string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("conversion failed: %v", e.Err)
	}
	return fmt.Sprintf("conversion failed: %v: %s", e.Err, e.Output)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Processor wraps the external ffmpeg/ffprobe binaries.
type Processor struct {
	ffmpegBin  string
	ffprobeBin string
	log        zerolog.Logger
}

// NewProcessor creates a processor. Empty binary paths fall back to PATH
// lookup of the conventional names.
func NewProcessor(ffmpegBin, ffprobeBin string, log zerolog.Logger) *Processor {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Processor{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin, log: log}
}

// Normalize transcodes inputPath to a 1280x720 letterboxed, 30fps VP8/Vorbis
// WebM next to the input. The encoder writes to a temporary name; the real
// output path only appears once the process exits cleanly, so the origin
// server can never serve a half-written file.
func (p *Processor) Normalize(ctx context.Context, inputPath string) (string, error) {
	output := OutputPathFor(inputPath)
	tmp := output + ".part"

	args := buildNormalizeArgs(inputPath, tmp)
	p.log.Info().Str("input", inputPath).Str("output", output).Msg("transcoding to webm")

	cmd := exec.CommandContext(ctx, p.ffmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return "", &ConversionError{Output: tailOf(stderr.String(), 2048), Err: err}
	}

	if err := os.Rename(tmp, output); err != nil {
		os.Remove(tmp)
		return "", &ConversionError{Err: fmt.Errorf("publish output: %w", err)}
	}

	p.log.Info().Str("output", output).Msg("transcode complete")
	return output, nil
}

// buildNormalizeArgs assembles the ffmpeg invocation. Open codecs only:
// VP8 video, Vorbis audio, scaled to fit 1280x720 with black padding.
func buildNormalizeArgs(input, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-c:v", "libvpx",
		"-b:v", "2M",
		"-crf", "10",
		"-quality", "realtime",
		"-c:a", "libvorbis",
		"-b:a", "128k",
		"-ar", "48000",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
			outputWidth, outputHeight, outputWidth, outputHeight),
		"-r", strconv.Itoa(outputFPS),
		"-f", "webm",
		output,
	}
}

// probeOutput mirrors the ffprobe -print_format json layout.
type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects stream metadata without decoding frame data.
func (p *Processor) Probe(ctx context.Context, path string) (*models.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (*models.VideoInfo, error) {
	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &models.VideoInfo{FPS: outputFPS}
	if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				info.FPS = ParseFrameRate(s.RFrameRate)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

// Verify reports whether the file probes with strictly positive dimensions.
// Audio presence is advisory and not part of the check.
func (p *Processor) Verify(ctx context.Context, path string) bool {
	info, err := p.Probe(ctx, path)
	if err != nil {
		p.log.Warn().Err(err).Str("path", path).Msg("verification probe failed")
		return false
	}
	p.log.Info().
		Float64("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Bool("hasAudio", info.HasAudio).
		Msg("probed converted video")
	return info.Width > 0 && info.Height > 0
}

// ExtractAudio writes an mp3 sibling of the video and returns its path.
func (p *Processor) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	output := strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".mp3"

	cmd := exec.CommandContext(ctx, p.ffmpegBin,
		"-y",
		"-i", videoPath,
		"-vn",
		"-c:a", "libmp3lame",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ConversionError{Output: tailOf(stderr.String(), 2048), Err: err}
	}
	return output, nil
}

// ParseFrameRate parses ffprobe's rational frame-rate string ("30000/1001",
// "30/1", "25"). Malformed input falls back to 30 rather than failing: a
// bad rate string must never sink an otherwise decodable file.
func ParseFrameRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return outputFPS
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return outputFPS
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return outputFPS
	}
	return math.Round(n/d*1000) / 1000
}

// OutputPathFor is the converted sibling of a source file.
func OutputPathFor(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + convertedSuffix
}

func tailOf(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
