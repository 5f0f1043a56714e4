package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ClipInfo is the ffprobe view of a recorded clip.
type ClipInfo struct {
	Duration  time.Duration
	Width     int
	Height    int
	FrameRate float64
	Codec     string
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
}

// CheckFFprobeAvailable returns nil if ffprobePath, or ffprobe in PATH when
// empty, can be executed.
func CheckFFprobeAvailable(ffprobePath string) error {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	path, err := exec.LookPath(ffprobePath)
	if err != nil {
		return fmt.Errorf("%s not found: recorded clip duration cannot be measured. Install FFmpeg with: brew install ffmpeg (macOS) or apt install ffmpeg (Linux)", ffprobePath)
	}
	log.Debug().Str("path", path).Msg("ffprobe found")
	return nil
}

// ProbeClip measures a clip with ffprobe.
func ProbeClip(ctx context.Context, ffprobePath, clipPath string) (*ClipInfo, error) {
	if ffprobePath == "" {
		p, err := exec.LookPath("ffprobe")
		if err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
		ffprobePath = p
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		clipPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("clip", clipPath).
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("frame_rate", info.FrameRate).
		Msg("Clip probed")

	return info, nil
}

func parseProbe(output []byte) (*ClipInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &ClipInfo{}
	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(dur * float64(time.Second))
		}
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		if stream.AvgFrameRate != "" && stream.AvgFrameRate != "0/0" {
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
		} else if stream.RFrameRate != "" {
			info.FrameRate = parseFrameRate(stream.RFrameRate)
		}
		// Matroska often omits the container duration for piped input.
		if info.Duration == 0 && stream.Duration != "" {
			if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				info.Duration = time.Duration(dur * float64(time.Second))
			}
		}
		break
	}

	if info.Duration <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration for clip")
	}
	return info, nil
}

// parseFrameRate parses "30/1", "30000/1001" or "29.97".
func parseFrameRate(value string) float64 {
	parts := strings.Split(value, "/")
	if len(parts) == 2 {
		num, _ := strconv.ParseFloat(parts[0], 64)
		den, _ := strconv.ParseFloat(parts[1], 64)
		if den != 0 {
			return num / den
		}
	}
	rate, _ := strconv.ParseFloat(value, 64)
	return rate
}
