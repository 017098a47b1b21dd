package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gifpipe/internal/acquire"
	"gifpipe/internal/httpapi"
	"gifpipe/internal/httpapi/handlers"
	"gifpipe/internal/ledger"
	"gifpipe/internal/models"
	"gifpipe/internal/pkg/logger"
	"gifpipe/internal/queue"
	"gifpipe/internal/storage/storagetest"
)

const testBaseURL = "http://api.test"

type testAPI struct {
	router  http.Handler
	store   *storagetest.MemStore
	ledger  *ledger.RedisLedger
	queue   *queue.LocalQueue
	scratch string
	deps    handlers.Deps
}

type apiOption func(*handlers.Deps)

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := &testAPI{
		store:   storagetest.New(),
		ledger:  ledger.NewRedisLedger(rdb, ledger.DefaultTTL),
		queue:   queue.NewLocalQueue(8, 3, logger.Discard()),
		scratch: t.TempDir(),
	}
	api.deps = handlers.Deps{
		Acquirer:      acquire.New(acquire.Config{ScratchDir: api.scratch, MaxBytes: 1 << 20}, logger.Discard()),
		Producer:      api.queue,
		Ledger:        api.ledger,
		SP:            api.store,
		PublicBaseURL: testBaseURL,
		MaxUploadSize: 1 << 20,
		Log:           logger.Discard(),
		NewID:         func() string { return "task-1" },
	}
	for _, o := range opts {
		o(&api.deps)
	}
	api.router = httpapi.NewRouter(httpapi.Deps{Handlers: api.deps, CORSOrigins: []string{"*"}, Log: logger.Discard()})
	return api
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *testAPI) putStatus(t *testing.T, st models.Status) {
	t.Helper()
	if err := a.ledger.Put(context.Background(), st); err != nil {
		t.Fatal(err)
	}
}

type formPart struct {
	field, filename string
	body            []byte
}

func multipartRequest(t *testing.T, values map[string]string, files ...formPart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(f.body); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/convert", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newFormRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type envelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

// stubAcquirer writes a fixed file into dir for URL sources.
type stubAcquirer struct {
	dir string
	err error
}

func (s stubAcquirer) FromUpload(ctx context.Context, filename string, r io.Reader) (acquire.Source, error) {
	return acquire.Source{}, s.err
}

func (s stubAcquirer) FromURL(ctx context.Context, rawURL string) (acquire.Source, error) {
	if s.err != nil {
		return acquire.Source{}, s.err
	}
	name := "00000000000000aa_remote_clip.mp4"
	p := filepath.Join(s.dir, name)
	if err := os.WriteFile(p, []byte("remote video"), 0o644); err != nil {
		return acquire.Source{}, err
	}
	return acquire.Source{Path: p, Name: name, Size: 12}, nil
}
