package video

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"ntsc fraction", "30000/1001", 29.97},
		{"integer fraction", "30/1", 30},
		{"plain integer", "25", 25},
		{"pal fraction", "25/1", 25},
		{"whitespace", " 24/1 ", 24},
		{"empty", "", 30},
		{"garbage", "not-a-rate", 30},
		{"zero denominator", "30/0", 30},
		{"negative numerator", "-30/1", 30},
		{"missing denominator", "30/", 30},
		{"code injection attempt", "require('fs')", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseFrameRate(tt.input), 0.001)
		})
	}
}

func TestOutputPathFor(t *testing.T) {
	assert.Equal(t, "/tmp/media/clip_converted.webm", OutputPathFor("/tmp/media/clip.mp4"))
	assert.Equal(t, "/tmp/media/clip_converted.webm", OutputPathFor("/tmp/media/clip.mkv"))
	// Distinct inputs with different extensions but the same stem collide
	// by design: the stem names the asset.
	assert.Equal(t, "movie_converted.webm", OutputPathFor("movie.avi"))
}

func TestBuildNormalizeArgs(t *testing.T) {
	args := buildNormalizeArgs("in.mp4", "out.webm.part")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-c:v libvpx")
	assert.Contains(t, joined, "-c:a libvorbis")
	assert.Contains(t, joined, "-ar 48000")
	assert.Contains(t, joined, "-r 30")
	assert.Contains(t, joined, "scale=1280:720:force_original_aspect_ratio=decrease")
	assert.Contains(t, joined, "pad=1280:720:(ow-iw)/2:(oh-ih)/2:black")
	assert.Equal(t, "out.webm.part", args[len(args)-1])
}

func TestParseProbeOutput(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "24000/1001"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "12.480000"}
	}`)

	info, err := parseProbeOutput(raw)
	require.NoError(t, err)

	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 23.976, info.FPS, 0.001)
	assert.InDelta(t, 12.48, info.Duration, 0.001)
	assert.True(t, info.HasAudio)
}

func TestParseProbeOutputNoAudio(t *testing.T) {
	raw := []byte(`{
		"streams": [{"codec_type": "video", "width": 1280, "height": 720, "r_frame_rate": "30/1"}],
		"format": {"duration": "3.0"}
	}`)

	info, err := parseProbeOutput(raw)
	require.NoError(t, err)
	assert.False(t, info.HasAudio)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 30, info.FPS, 0.001)
}

func TestParseProbeOutputMalformed(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"))
	require.Error(t, err)
}

func TestConversionErrorMessage(t *testing.T) {
	err := &ConversionError{Output: "encoder exploded", Err: assert.AnError}
	assert.Contains(t, err.Error(), "encoder exploded")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTailOf(t *testing.T) {
	assert.Equal(t, "short", tailOf("short", 100))
	long := strings.Repeat("x", 50) + "tail"
	assert.Equal(t, "tail", tailOf(long, 4))
}
