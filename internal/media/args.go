package media

import (
	"strconv"
	"strings"
)

// Overlay is a resolved text overlay: the text lives in TextFile so it never
// needs filtergraph quoting.
type Overlay struct {
	TextFile   string
	FontFile   string
	Size       int
	Color      string
	Background string
	Align      string
	VAlign     string
	Position   string
}

// Plan is everything BuildArgs needs, already validated and clamped.
type Plan struct {
	Input  string
	Output string
	Start  float64
	End    float64
	Crop   *Crop
	Speed  float64 // 0 or 1 leaves timing untouched
	Width  int     // 0 keeps the size
	Height int
	FPS    int
	Text   *Overlay
}

// NewPlan derives the plan for opts against a probed input.
func NewPlan(opts Options, info ProbeInfo, input, output string) Plan {
	p := Plan{Input: input, Output: output, FPS: opts.FrameRate()}
	p.Start, p.End = opts.Window(info.Duration)

	w, h := info.Width, info.Height
	if c, ok := opts.ClampedCrop(w, h); ok {
		p.Crop = &c
		w, h = c.Width, c.Height
	}
	if s, ok := opts.SpeedFactor(); ok {
		p.Speed = s
	}
	if sw, sh, ok := opts.ScaledSize(w, h); ok {
		p.Width, p.Height = sw, sh
	}
	return p
}

// Filters returns the video filter chain before palette generation.
func (p Plan) Filters() []string {
	var f []string
	if p.Crop != nil {
		f = append(f, "crop="+itoa(p.Crop.Width)+":"+itoa(p.Crop.Height)+":"+itoa(p.Crop.X)+":"+itoa(p.Crop.Y))
	}
	if p.Speed > 0 && p.Speed != 1 {
		f = append(f, "setpts=PTS/"+ftoa(p.Speed))
	}
	if p.Width > 0 && p.Height > 0 {
		f = append(f, "scale="+itoa(p.Width)+":"+itoa(p.Height)+":flags=lanczos")
	}
	if p.Text != nil {
		f = append(f, drawtext(*p.Text))
	}
	fps := p.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	f = append(f, "fps="+itoa(fps))
	return f
}

// BuildArgs returns the ffmpeg argument list that renders the plan as a looping
// palette-optimised GIF.
func BuildArgs(p Plan) []string {
	graph := "[0:v]" + strings.Join(p.Filters(), ",") +
		",split[a][b];[a]palettegen=stats_mode=diff[p];[b][p]paletteuse=dither=bayer:bayer_scale=5"

	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", ftoa(p.Start),
		"-to", ftoa(p.End),
		"-i", p.Input,
		"-filter_complex", graph,
		"-an",
		"-loop", "0",
		p.Output,
	}
}

func drawtext(o Overlay) string {
	x, y := drawtextXY(o.Position)
	size := o.Size
	if size <= 0 {
		size = DefaultTextSize
	}
	color := o.Color
	if color == "" {
		color = "white"
	}

	opts := []string{
		"fontfile=" + escapeFilterValue(o.FontFile),
		"textfile=" + escapeFilterValue(o.TextFile),
		"expansion=none",
		"fontsize=" + itoa(size),
		"fontcolor=" + escapeFilterValue(color),
		"x=" + x,
		"y=" + y,
	}
	if o.Background != "" {
		opts = append(opts, "box=1", "boxcolor="+escapeFilterValue(o.Background), "boxborderw=6")
	}
	if a := textAlign(o.Align, o.VAlign); a != "" {
		opts = append(opts, "text_align="+a)
	}
	return "drawtext=" + strings.Join(opts, ":")
}

// textAlign maps alignment names to drawtext text_align flags.
func textAlign(h, v string) string {
	var flags []string
	switch h {
	case "left":
		flags = append(flags, "L")
	case "center":
		flags = append(flags, "C")
	case "right":
		flags = append(flags, "R")
	}
	switch v {
	case "top":
		flags = append(flags, "T")
	case "middle":
		flags = append(flags, "M")
	case "bottom":
		flags = append(flags, "B")
	}
	return strings.Join(flags, "+")
}

// escapeFilterValue escapes s for use as a filter option value inside
// -filter_complex: once for the option parser, once for the graph parser.
func escapeFilterValue(s string) string {
	opt := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`).Replace(s)
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`).Replace(opt)
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
