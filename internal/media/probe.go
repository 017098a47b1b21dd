package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ProbeInfo is what the engine needs to know about an input.
type ProbeInfo struct {
	Width    int
	Height   int
	Duration float64
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against path.
func Probe(ctx context.Context, run Runner, binary, path string) (ProbeInfo, error) {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	stdout, stderr, err := run.Run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe: %w: %s", err, LastLine(stderr))
	}
	return parseProbe(stdout)
}

func parseProbe(raw []byte) (ProbeInfo, error) {
	var res probeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	for _, s := range res.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		info := ProbeInfo{Width: s.Width, Height: s.Height, Duration: parseDuration(res.Format.Duration)}
		if info.Duration <= 0 {
			info.Duration = parseDuration(s.Duration)
		}
		if info.Width <= 0 || info.Height <= 0 {
			return ProbeInfo{}, fmt.Errorf("video stream has no dimensions")
		}
		if info.Duration <= 0 {
			return ProbeInfo{}, fmt.Errorf("input has no duration")
		}
		return info, nil
	}
	return ProbeInfo{}, fmt.Errorf("no video stream")
}

func parseDuration(s string) float64 {
	v, ok := parseFloat(s)
	if !ok {
		return 0
	}
	return v
}

