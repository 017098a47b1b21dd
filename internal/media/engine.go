// Package media turns a video file into an animated GIF with ffmpeg: trim, crop,
// speed, resize and a text overlay, followed by palette-optimised encoding and a
// PNG preview of the first frame.
package media

import (
	"context"
	"image/gif"
	"os"
	"path/filepath"
	"strings"

	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

// Config locates the tools and fonts the engine uses.
type Config struct {
	FFmpegBin      string
	FFprobeBin     string
	FontDirs       []string
	FontCandidates []string
	// ScratchDir holds the materialised bundled font.
	ScratchDir string
}

// Result describes a rendered GIF.
type Result struct {
	Path           string
	PreviewPath    string
	Width          int
	Height         int
	Duration       float64
	OverlayApplied bool
}

// Engine runs transforms. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	run     Runner
	log     *logger.Logger
	exists  func(string) bool
	bundled bundledFont
}

// Option customises an Engine.
type Option func(*Engine)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.run = r }
}

// WithFileCheck replaces the file existence check used for font lookup.
func WithFileCheck(exists func(string) bool) Option {
	return func(e *Engine) { e.exists = exists }
}

func NewEngine(cfg Config, log *logger.Logger, opts ...Option) *Engine {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.FFprobeBin == "" {
		cfg.FFprobeBin = "ffprobe"
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	e := &Engine{cfg: cfg, run: ExecRunner{}, log: log.WithComponent("media"), exists: FileExists}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Probe inspects input, mapping failure to DECODE_ERROR.
func (e *Engine) Probe(ctx context.Context, input string) (ProbeInfo, error) {
	info, err := Probe(ctx, e.run, e.cfg.FFprobeBin, input)
	if err != nil {
		return ProbeInfo{}, errors.WrapWithCode(err, errors.CodeDecode, "media.probe", "could not read the video").
			WithField("input", filepath.Base(input))
	}
	return info, nil
}

// Transform renders input as <outDir>/<stem>.gif, where stem is the input file
// name without its extension.
func (e *Engine) Transform(ctx context.Context, input string, opts Options, outDir string) (Result, error) {
	info, err := e.Probe(ctx, input)
	if err != nil {
		return Result{}, err
	}

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(outDir, stem+".gif")
	plan := NewPlan(opts, info, input, out)
	log := e.log.FromContext(ctx)

	if opts.HasOverlay() {
		ov, err := e.overlay(opts, outDir)
		if err != nil {
			log.Warn("overlay skipped", "error", err.Error())
		} else {
			plan.Text = &ov
		}
	}

	overlayApplied := plan.Text != nil
	encErr := e.encode(ctx, plan)
	if encErr != nil && plan.Text != nil {
		log.Warn("encode with overlay failed, retrying without it", "error", encErr.Error())
		_ = os.Remove(out)
		plan.Text = nil
		overlayApplied = false
		encErr = e.encode(ctx, plan)
	}
	if encErr != nil {
		_ = os.Remove(out)
		return Result{}, encErr
	}

	w, h, err := gifSize(out)
	if err != nil {
		return Result{}, errors.WrapWithCode(err, errors.CodeEncode, "media.encode", "encoder produced an unreadable gif")
	}

	res := Result{
		Path:           out,
		Width:          w,
		Height:         h,
		Duration:       playback(plan),
		OverlayApplied: overlayApplied,
	}

	preview := filepath.Join(outDir, stem+".preview.png")
	if err := MakePreview(out, preview); err != nil {
		log.Warn("preview failed", "error", err.Error())
	} else {
		res.PreviewPath = preview
	}

	log.Info("gif rendered",
		"width", w,
		"height", h,
		"fps", plan.FPS,
		"start", plan.Start,
		"end", plan.End,
		"overlay", overlayApplied,
	)
	return res, nil
}

// playback is how long the rendered GIF plays.
func playback(p Plan) float64 {
	d := p.End - p.Start
	if p.Speed > 0 && p.Speed != 1 {
		d /= p.Speed
	}
	return d
}

func (e *Engine) encode(ctx context.Context, p Plan) error {
	_, stderr, err := e.run.Run(ctx, e.cfg.FFmpegBin, BuildArgs(p)...)
	if err != nil {
		if ctx.Err() != nil {
			return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "media.encode", "encode interrupted")
		}
		msg := LastLine(stderr)
		if msg == "" {
			msg = err.Error()
		}
		return errors.WrapWithCode(err, errors.CodeEncode, "media.encode", "ffmpeg failed: "+msg)
	}
	return nil
}

func (e *Engine) overlay(opts Options, outDir string) (Overlay, error) {
	font := e.FontFor(opts.TextStyle.Font)
	if font == "" {
		return Overlay{}, errors.New(errors.CodeEncode, "no usable font")
	}

	textFile := filepath.Join(outDir, "overlay.txt")
	if err := os.WriteFile(textFile, []byte(opts.Text), 0o644); err != nil {
		return Overlay{}, errors.Wrap(err, "media.overlay", "write overlay text")
	}

	st := opts.TextStyle
	return Overlay{
		TextFile:   textFile,
		FontFile:   font,
		Size:       st.Size,
		Color:      st.Color,
		Background: st.Background,
		Align:      st.Align,
		VAlign:     st.VAlign,
		Position:   st.Position,
	}, nil
}

// FontFor resolves requested to a font file, falling back to the bundled face.
func (e *Engine) FontFor(requested string) string {
	if p := ResolveFont(requested, e.cfg.FontDirs, e.cfg.FontCandidates, e.exists); p != "" {
		return p
	}
	p, err := e.bundled.get(e.cfg.ScratchDir)
	if err != nil {
		e.log.Warn("bundled font unavailable", "error", err.Error())
		return ""
	}
	return p
}

func gifSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, err := gif.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
