package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	apperrors "gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"My Video.MP4":          "My_Video.mp4",
		"../../etc/passwd.mp4":  "etc_passwd.mp4",
		"Vidéo été.mov":         "Video_ete.mov",
		"日本語.mp4":              "video.mp4",
		`C:\clips\a b.webm`:     "C_clips_a_b.webm",
		"noext":                 "noext",
		".mp4":                  "video.mp4",
		"clip (final) [1].mkv":  "clip_final_1.mkv",
		"  spaced   out  .avi ": "spaced_out.avi",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniqueName(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{16}_clip\.mp4$`)
	a, b := UniqueName("clip.mp4"), UniqueName("clip.mp4")
	if !re.MatchString(a) {
		t.Errorf("UniqueName() = %q", a)
	}
	if a == b {
		t.Error("expected distinct names")
	}
}

func TestAllowed(t *testing.T) {
	for _, name := range []string{"a.mp4", "a.MOV", "a.avi", "a.mkv", "a.WebM"} {
		if !Allowed(name) {
			t.Errorf("Allowed(%q) = false", name)
		}
	}
	for _, name := range []string{"a.txt", "a", "a.mp4.exe", "mp4"} {
		if Allowed(name) {
			t.Errorf("Allowed(%q) = true", name)
		}
	}
}

func newTestAcquirer(t *testing.T, cfg Config, opts ...Option) (*Acquirer, string) {
	t.Helper()
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	return New(cfg, logger.Discard(), opts...), cfg.ScratchDir
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestFromUpload(t *testing.T) {
	a, dir := newTestAcquirer(t, Config{MaxBytes: 1 << 20})

	src, err := a.FromUpload(context.Background(), "My Clip.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	if !strings.HasSuffix(src.Name, "_My_Clip.mp4") || filepath.Dir(src.Path) != dir {
		t.Errorf("unexpected source %+v", src)
	}
	if src.Size != int64(len("video-bytes")) {
		t.Errorf("Size = %d", src.Size)
	}
	data, err := os.ReadFile(src.Path)
	if err != nil || string(data) != "video-bytes" {
		t.Errorf("stored content = %q, %v", data, err)
	}
}

func TestFromUploadRejects(t *testing.T) {
	a, dir := newTestAcquirer(t, Config{MaxBytes: 10})

	tests := []struct {
		name     string
		filename string
		body     string
		code     apperrors.Code
	}{
		{"text file", "notes.txt", "hello", apperrors.CodeUnsupportedFormat},
		{"empty name", "  ", "hello", apperrors.CodeValidation},
		{"too large", "big.mp4", "01234567890", apperrors.CodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.FromUpload(context.Background(), tt.filename, strings.NewReader(tt.body))
			if apperrors.GetCode(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
	if left := entries(t, dir); len(left) != 0 {
		t.Errorf("rejected uploads left files: %v", left)
	}
}

// fakeYtDlp mimics yt-dlp: it expands the output template, writes the file and
// a stray fragment, and prints the final path.
type fakeYtDlp struct {
	title string
	ext   string
	fail  bool
	args  []string
}

func (f *fakeYtDlp) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.args = args
	var tmpl string
	for i := range args {
		if args[i] == "-o" {
			tmpl = args[i+1]
		}
	}
	base := strings.TrimSuffix(tmpl, "%(title).80B.%(ext)s")
	if err := os.WriteFile(base+f.title+".f137.mp4.part", []byte("partial"), 0o644); err != nil {
		return nil, nil, err
	}
	if f.fail {
		return nil, []byte("[youtube] abc: Downloading webpage\nERROR: [youtube] abc: Video unavailable\n"), errors.New("exit status 1")
	}
	out := base + f.title + "." + f.ext
	if err := os.WriteFile(out, []byte("downloaded"), 0o644); err != nil {
		return nil, nil, err
	}
	return []byte(out + "\n"), nil, nil
}

func TestFromURL(t *testing.T) {
	yt := &fakeYtDlp{title: "Funny Cät", ext: "mp4"}
	a, dir := newTestAcquirer(t, Config{}, WithRunner(yt))

	src, err := a.FromURL(context.Background(), "https://vimeo.com/123")
	if err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}_Funny_Cat\.mp4$`).MatchString(src.Name) {
		t.Errorf("Name = %q", src.Name)
	}
	if left := entries(t, dir); len(left) != 1 || left[0] != src.Name {
		t.Errorf("expected only the final file, got %v", left)
	}

	joined := strings.Join(yt.args, " ")
	for _, want := range []string{"-f bestvideo+bestaudio/best", "--merge-output-format mp4", "--no-playlist", "--print after_move:filepath"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %s", want, joined)
		}
	}
	if strings.Contains(joined, "--cookies") {
		t.Error("cookies are only for youtube")
	}
	if yt.args[len(yt.args)-1] != "https://vimeo.com/123" {
		t.Errorf("URL must be the last argument: %v", yt.args)
	}
}

func TestFromURLCookies(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	yt := &fakeYtDlp{title: "clip", ext: "webm"}
	a, _ := newTestAcquirer(t, Config{CookiesFile: cookies}, WithRunner(yt))
	if _, err := a.FromURL(context.Background(), "https://www.youtube.com/watch?v=abc"); err != nil {
		t.Fatalf("FromURL() error = %v", err)
	}
	if !strings.Contains(strings.Join(yt.args, " "), "--cookies "+cookies) {
		t.Errorf("expected cookies argument, got %v", yt.args)
	}

	missing := &fakeYtDlp{title: "clip", ext: "mp4"}
	b, _ := newTestAcquirer(t, Config{CookiesFile: "/nope/cookies.txt"}, WithRunner(missing))
	if _, err := b.FromURL(context.Background(), "https://youtu.be/abc"); err != nil {
		t.Fatalf("missing cookies must not fail the download: %v", err)
	}
	if strings.Contains(strings.Join(missing.args, " "), "--cookies") {
		t.Error("missing cookies file must not be passed")
	}
}

func TestFromURLFailure(t *testing.T) {
	a, dir := newTestAcquirer(t, Config{}, WithRunner(&fakeYtDlp{title: "clip", fail: true}))

	_, err := a.FromURL(context.Background(), "https://youtu.be/abc")
	if apperrors.GetCode(err) != apperrors.CodeDownloadFailed {
		t.Fatalf("expected DOWNLOAD_FAILED, got %v", err)
	}
	if cause := apperrors.GetFields(err)["cause"]; cause != "ERROR: [youtube] abc: Video unavailable" {
		t.Errorf("cause = %v", cause)
	}
	if left := entries(t, dir); len(left) != 0 {
		t.Errorf("failed download left files: %v", left)
	}
}

func TestFromURLRejects(t *testing.T) {
	a, _ := newTestAcquirer(t, Config{}, WithRunner(&fakeYtDlp{title: "clip", ext: "mp4"}))
	for _, raw := range []string{"ftp://example.com/a.mp4", "file:///etc/passwd", "not a url", "https://"} {
		if _, err := a.FromURL(context.Background(), raw); apperrors.GetCode(err) != apperrors.CodeValidation {
			t.Errorf("FromURL(%q) = %v, want VALIDATION_ERROR", raw, err)
		}
	}

	b, dir := newTestAcquirer(t, Config{}, WithRunner(&fakeYtDlp{title: "clip", ext: "flv"}))
	if _, err := b.FromURL(context.Background(), "https://example.com/v"); apperrors.GetCode(err) != apperrors.CodeUnsupportedFormat {
		t.Errorf("expected UNSUPPORTED_FORMAT, got %v", err)
	}
	if left := entries(t, dir); len(left) != 0 {
		t.Errorf("rejected download left files: %v", left)
	}
}
