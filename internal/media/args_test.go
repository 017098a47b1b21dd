package media

import (
	"strings"
	"testing"
)

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildArgsBasic(t *testing.T) {
	opts := Options{StartTime: 2, EndTime: 5, FPS: 8, ResizeWidth: 320, Speed: 1}
	p := NewPlan(opts, ProbeInfo{Width: 640, Height: 360, Duration: 10}, "/in/clip.mp4", "/out/clip.gif")
	args := BuildArgs(p)

	if argAfter(args, "-ss") != "2" || argAfter(args, "-to") != "5" {
		t.Errorf("unexpected trim args %v", args)
	}
	if argAfter(args, "-i") != "/in/clip.mp4" || args[len(args)-1] != "/out/clip.gif" {
		t.Errorf("unexpected io args %v", args)
	}
	if argAfter(args, "-loop") != "0" {
		t.Errorf("expected infinite loop, got %v", args)
	}

	graph := argAfter(args, "-filter_complex")
	want := "[0:v]scale=320:180:flags=lanczos,fps=8,split[a][b];[a]palettegen=stats_mode=diff[p];[b][p]paletteuse=dither=bayer:bayer_scale=5"
	if graph != want {
		t.Errorf("filter graph\n got %s\nwant %s", graph, want)
	}
}

func TestBuildArgsSpeedOneAddsNoSetpts(t *testing.T) {
	for _, speed := range []float64{0, 1, -2} {
		p := NewPlan(Options{Speed: speed}, ProbeInfo{Width: 640, Height: 360, Duration: 10}, "in", "out")
		if graph := argAfter(BuildArgs(p), "-filter_complex"); strings.Contains(graph, "setpts") {
			t.Errorf("speed %v must not add setpts: %s", speed, graph)
		}
	}

	p := NewPlan(Options{Speed: 2}, ProbeInfo{Width: 640, Height: 360, Duration: 10}, "in", "out")
	if graph := argAfter(BuildArgs(p), "-filter_complex"); !strings.Contains(graph, "setpts=PTS/2,") {
		t.Errorf("expected setpts for speed 2: %s", graph)
	}
}

func TestBuildArgsFilterOrder(t *testing.T) {
	opts := Options{Crop: &Crop{X: 600, Y: 0, Width: 100, Height: 100}, Speed: 0.5, ResizeWidth: 20, FPS: 12}
	p := NewPlan(opts, ProbeInfo{Width: 640, Height: 360, Duration: 10}, "in", "out")
	p.Text = &Overlay{TextFile: "/w/overlay.txt", FontFile: "/f/Go.ttf", Size: 24, Color: "white", Position: PositionBottom}

	got := p.Filters()
	prefixes := []string{"crop=40:100:600:0", "setpts=PTS/0.5", "scale=20:50:flags=lanczos", "drawtext=", "fps=12"}
	if len(got) != len(prefixes) {
		t.Fatalf("Filters() = %v", got)
	}
	for i, prefix := range prefixes {
		if !strings.HasPrefix(got[i], prefix) {
			t.Errorf("filter %d = %s, want prefix %s", i, got[i], prefix)
		}
	}
}

func TestDrawtext(t *testing.T) {
	got := drawtext(Overlay{
		TextFile:   "/w/overlay.txt",
		FontFile:   "/fonts/My Font:1.ttf",
		Size:       30,
		Color:      "yellow",
		Background: "black@0.5",
		Align:      "center",
		VAlign:     "middle",
		Position:   PositionTopRight,
	})

	for _, want := range []string{
		`fontfile=/fonts/My Font\\:1.ttf`,
		"textfile=/w/overlay.txt",
		"expansion=none",
		"fontsize=30",
		"fontcolor=yellow",
		"x=w-text_w-10",
		"y=10",
		"box=1:boxcolor=black@0.5:boxborderw=6",
		"text_align=C+M",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("drawtext missing %q in %s", want, got)
		}
	}

	plain := drawtext(Overlay{TextFile: "t", FontFile: "f"})
	if strings.Contains(plain, "box=") || strings.Contains(plain, "text_align") {
		t.Errorf("unexpected options in %s", plain)
	}
	if !strings.Contains(plain, "fontsize=24") || !strings.Contains(plain, "fontcolor=white") {
		t.Errorf("expected defaults in %s", plain)
	}
}

func TestEscapeFilterValue(t *testing.T) {
	tests := map[string]string{
		"/tmp/plain.ttf": "/tmp/plain.ttf",
		"a:b":            `a\\:b`,
		"it's":           `it\\\'s`,
		"x,y":            `x\,y`,
		"[a];":           `\[a\]\;`,
	}
	for in, want := range tests {
		if got := escapeFilterValue(in); got != want {
			t.Errorf("escapeFilterValue(%q) = %s, want %s", in, got, want)
		}
	}
}
