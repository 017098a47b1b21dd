package media

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultFPS      = 10
	DefaultTextSize = 24
)

// Crop is a rectangle in source pixels.
type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextStyle controls how an overlay is drawn.
type TextStyle struct {
	Font       string `json:"font,omitempty"`
	Size       int    `json:"size"`
	Color      string `json:"color"`
	Background string `json:"background,omitempty"`
	Align      string `json:"align,omitempty"`
	VAlign     string `json:"valign,omitempty"`
	Position   string `json:"position"`
}

// Options are the user-chosen transform settings. Zero values mean "not requested".
type Options struct {
	StartTime   float64   `json:"start_time"`
	EndTime     float64   `json:"end_time,omitempty"`
	FPS         int       `json:"fps"`
	ResizeWidth int       `json:"resize_width,omitempty"`
	Speed       float64   `json:"speed_factor,omitempty"`
	Crop        *Crop     `json:"crop,omitempty"`
	Text        string    `json:"text_overlay,omitempty"`
	TextStyle   TextStyle `json:"text_style"`
}

// ParseForm builds Options from form values. Unparsable or out-of-range values
// fall back to their defaults; it never fails.
func ParseForm(get func(string) string) Options {
	o := Options{
		FPS:   DefaultFPS,
		Speed: 1,
		TextStyle: TextStyle{
			Size:     DefaultTextSize,
			Color:    "white",
			Position: PositionCenter,
		},
	}

	if v, ok := parseStart(get("start_time")); ok {
		o.StartTime = v
	}
	if v, ok := parseEnd(get("end_time")); ok {
		o.EndTime = v
	}
	if v, ok := parsePositiveInt(get("fps")); ok {
		o.FPS = v
	}
	if v, ok := parseResize(firstNonEmpty(get("resize"), get("resize_width"))); ok {
		o.ResizeWidth = v
	}
	if v, ok := parseSpeed(firstNonEmpty(get("speed"), get("speed_factor"))); ok {
		o.Speed = v
	}
	if c, ok := parseCrop(get("crop_x"), get("crop_y"), get("crop_width"), get("crop_height")); ok {
		o.Crop = &c
	}

	o.Text = strings.TrimSpace(get("text_overlay"))
	o.TextStyle.Font = strings.TrimSpace(get("text_font"))
	if v, ok := parsePositiveInt(get("text_size")); ok {
		o.TextStyle.Size = v
	}
	if v, ok := parseColor(get("text_color")); ok {
		o.TextStyle.Color = v
	}
	if v, ok := parseColor(get("text_bg_color")); ok {
		o.TextStyle.Background = v
	}
	if v, ok := oneOf(get("text_align"), "left", "center", "right"); ok {
		o.TextStyle.Align = v
	}
	if v, ok := oneOf(get("text_valign"), "top", "middle", "bottom"); ok {
		o.TextStyle.VAlign = v
	}
	o.TextStyle.Position = NormalizePosition(get("text_position"))

	return o
}

// Window returns the trim range for a clip of the given duration.
// For duration > 0 the result always satisfies 0 <= start < end <= duration.
func (o Options) Window(duration float64) (start, end float64) {
	start = o.StartTime
	if start < 0 || math.IsNaN(start) {
		start = 0
	}
	end = duration
	if o.EndTime > 0 && o.EndTime <= duration {
		end = o.EndTime
	}
	if start >= end {
		start = 0
		if end <= start {
			end = duration
		}
	}
	return start, end
}

// FrameRate returns the requested fps or the default.
func (o Options) FrameRate() int {
	if o.FPS > 0 {
		return o.FPS
	}
	return DefaultFPS
}

// SpeedFactor reports the playback factor when it changes anything.
func (o Options) SpeedFactor() (float64, bool) {
	if o.Speed > 0 && o.Speed != 1 && !math.IsInf(o.Speed, 0) {
		return o.Speed, true
	}
	return 0, false
}

// HasOverlay reports whether text should be drawn.
func (o Options) HasOverlay() bool {
	return strings.TrimSpace(o.Text) != ""
}

// ClampedCrop fits the crop to a srcW x srcH frame. It reports false when no
// crop was requested or the rectangle lies outside the frame.
func (o Options) ClampedCrop(srcW, srcH int) (Crop, bool) {
	if o.Crop == nil {
		return Crop{}, false
	}
	c := *o.Crop
	if c.X < 0 || c.Y < 0 || c.Width <= 0 || c.Height <= 0 {
		return Crop{}, false
	}
	if c.X >= srcW || c.Y >= srcH {
		return Crop{}, false
	}
	c.Width = min(c.Width, srcW-c.X)
	c.Height = min(c.Height, srcH-c.Y)
	return c, true
}

// ScaledSize returns the size after resizing a w x h frame to the requested width,
// keeping the aspect ratio with the height rounded half away from zero.
func (o Options) ScaledSize(w, h int) (int, int, bool) {
	if o.ResizeWidth <= 0 || w <= 0 || h <= 0 {
		return w, h, false
	}
	nh := int(math.Round(float64(o.ResizeWidth) * float64(h) / float64(w)))
	if nh < 1 {
		nh = 1
	}
	return o.ResizeWidth, nh, true
}

// OutputSize predicts the GIF dimensions for a srcW x srcH input.
func (o Options) OutputSize(srcW, srcH int) (int, int) {
	w, h := srcW, srcH
	if c, ok := o.ClampedCrop(srcW, srcH); ok {
		w, h = c.Width, c.Height
	}
	w, h, _ = o.ScaledSize(w, h)
	return w, h
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseStart(s string) (float64, bool) {
	v, ok := parseFloat(s)
	if !ok {
		return 0, false
	}
	return math.Max(0, v), true
}

func parseEnd(s string) (float64, bool) {
	v, ok := parseFloat(s)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseSpeed(s string) (float64, bool) {
	v, ok := parseFloat(s)
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// parsePositiveInt accepts integers and truncates decimals ("12.0" -> 12).
func parsePositiveInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, v > 0
	}
	f, ok := parseFloat(s)
	if !ok || f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func parseResize(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "original") {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseCrop(x, y, w, h string) (Crop, bool) {
	var vals [4]int
	for i, s := range [4]string{x, y, w, h} {
		f, ok := parseFloat(s)
		if !ok || f > math.MaxInt32 || f < math.MinInt32 {
			return Crop{}, false
		}
		vals[i] = int(f)
	}
	c := Crop{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if c.X < 0 || c.Y < 0 || c.Width <= 0 || c.Height <= 0 {
		return Crop{}, false
	}
	return c, true
}

// parseColor accepts ffmpeg color names and hex forms such as "#ff0000" or "0xff0000@0.5".
func parseColor(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 32 {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#', r == '@', r == '.':
		default:
			return "", false
		}
	}
	return s, true
}

func oneOf(s string, allowed ...string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range allowed {
		if s == a {
			return s, true
		}
	}
	return "", false
}
