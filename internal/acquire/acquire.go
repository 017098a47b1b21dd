// Package acquire turns an upload or a remote URL into a video file in the
// scratch directory.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gifpipe/internal/media"
	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/pkg/logger"
)

// Config controls where sources land and how remote ones are fetched.
type Config struct {
	ScratchDir  string
	MaxBytes    int64
	YtDlpBin    string
	CookiesFile string
}

// Source is an acquired local video file.
type Source struct {
	Path string
	Name string
	Size int64
}

// Acquirer materialises sources into the scratch directory.
type Acquirer struct {
	cfg    Config
	run    media.Runner
	exists func(string) bool
	log    *logger.Logger
}

// Option customises an Acquirer.
type Option func(*Acquirer)

// WithRunner replaces the command runner used for yt-dlp.
func WithRunner(r media.Runner) Option {
	return func(a *Acquirer) { a.run = r }
}

func New(cfg Config, log *logger.Logger, opts ...Option) *Acquirer {
	if cfg.YtDlpBin == "" {
		cfg.YtDlpBin = "yt-dlp"
	}
	a := &Acquirer{
		cfg:    cfg,
		run:    media.ExecRunner{},
		exists: media.FileExists,
		log:    log.WithComponent("acquire"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// FromUpload stores an uploaded file under a unique sanitized name.
func (a *Acquirer) FromUpload(ctx context.Context, filename string, r io.Reader) (Source, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Source{}, errors.ValidationField("video", "No video file selected.")
	}
	if !Allowed(filename) {
		return Source{}, errors.UnsupportedFormat(strings.ToLower(filepath.Ext(filename)))
	}
	if err := os.MkdirAll(a.cfg.ScratchDir, 0o755); err != nil {
		return Source{}, errors.Wrap(err, "acquire.upload", "create scratch dir")
	}

	name := UniqueName(SanitizeFilename(filename))
	dst := filepath.Join(a.cfg.ScratchDir, name)
	f, err := os.Create(dst)
	if err != nil {
		return Source{}, errors.Wrap(err, "acquire.upload", "create upload file")
	}

	src := r
	if a.cfg.MaxBytes > 0 {
		src = io.LimitReader(r, a.cfg.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return Source{}, errors.Wrap(err, "acquire.upload", "write upload")
	}
	if a.cfg.MaxBytes > 0 && n > a.cfg.MaxBytes {
		_ = os.Remove(dst)
		return Source{}, errors.PayloadTooLarge(a.cfg.MaxBytes)
	}

	a.log.FromContext(ctx).Debug("upload stored", "name", name, "size", n)
	return Source{Path: dst, Name: name, Size: n}, nil
}

// FromURL downloads rawURL with yt-dlp. On failure every file the attempt
// created is removed.
func (a *Acquirer) FromURL(ctx context.Context, rawURL string) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Source{}, errors.ValidationField("url", "URL must use http or https.")
	}
	if err := os.MkdirAll(a.cfg.ScratchDir, 0o755); err != nil {
		return Source{}, errors.Wrap(err, "acquire.url", "create scratch dir")
	}

	log := a.log.FromContext(ctx).WithFields(map[string]any{"host": u.Hostname()})
	token := newToken()
	defer a.removeToken(token)

	args := []string{
		"-f", "bestvideo+bestaudio/best",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--no-warnings",
		"--print", "after_move:filepath",
		"-o", filepath.Join(a.cfg.ScratchDir, token+"_%(title).80B.%(ext)s"),
	}
	if isYouTube(u.Hostname()) {
		if a.cfg.CookiesFile != "" && a.exists(a.cfg.CookiesFile) {
			args = append(args, "--cookies", a.cfg.CookiesFile)
		} else {
			log.Warn("no cookies file for youtube download, continuing without", "cookies_file", a.cfg.CookiesFile)
		}
	}
	args = append(args, u.String())

	stdout, stderr, err := a.run.Run(ctx, a.cfg.YtDlpBin, args...)
	if err != nil {
		cause := media.LastLine(stderr)
		if cause == "" {
			cause = err.Error()
		}
		log.Warn("download failed", "error", cause)
		return Source{}, errors.DownloadFailed(fmt.Errorf("yt-dlp: %s", cause), rawURL).WithField("cause", cause)
	}

	got := a.downloaded(token, media.LastLine(stdout))
	if got == "" {
		return Source{}, errors.DownloadFailed(fmt.Errorf("yt-dlp reported no output file"), rawURL)
	}
	if !Allowed(got) {
		return Source{}, errors.UnsupportedFormat(strings.ToLower(filepath.Ext(got)))
	}

	title := strings.TrimPrefix(filepath.Base(got), token+"_")
	name := UniqueName(SanitizeFilename(title))
	dst := filepath.Join(a.cfg.ScratchDir, name)
	if err := os.Rename(got, dst); err != nil {
		return Source{}, errors.Wrap(err, "acquire.url", "rename download")
	}
	st, err := os.Stat(dst)
	if err != nil {
		return Source{}, errors.Wrap(err, "acquire.url", "stat download")
	}

	log.Info("download complete", "name", name, "size", st.Size())
	return Source{Path: dst, Name: name, Size: st.Size()}, nil
}

// downloaded returns the file yt-dlp produced, preferring the path it printed.
func (a *Acquirer) downloaded(token, printed string) string {
	if printed != "" && a.exists(printed) {
		return printed
	}
	matches, _ := filepath.Glob(filepath.Join(a.cfg.ScratchDir, token+"_*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.HasSuffix(m, ".ytdl") {
			return m
		}
	}
	return ""
}

func (a *Acquirer) removeToken(token string) {
	matches, _ := filepath.Glob(filepath.Join(a.cfg.ScratchDir, token+"*"))
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			a.log.Warn("scratch cleanup failed", "path", m, "error", err.Error())
		}
	}
}

func isYouTube(host string) bool {
	host = strings.ToLower(host)
	for _, d := range []string{"youtube.com", "youtu.be"} {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
