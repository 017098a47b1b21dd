package handlers_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"gifpipe/internal/httpapi/handlers"
	"gifpipe/internal/models"
	apperrors "gifpipe/internal/pkg/errors"
)

func TestConvertRejectsTextFile(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(multipartRequest(t, nil, formPart{"video", "notes.txt", []byte("hello")}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decode[envelope](t, rec)
	if env.Error.Code != "UNSUPPORTED_FORMAT" || env.Error.Message != "File type not allowed." {
		t.Errorf("error = %+v", env.Error)
	}
	if strings.Contains(rec.Body.String(), "task_id") {
		t.Error("rejected request must not return a task id")
	}
	if api.queue.Len() != 0 || len(api.store.Keys()) != 0 {
		t.Errorf("nothing may be enqueued or stored, queue=%d keys=%v", api.queue.Len(), api.store.Keys())
	}
	if files := scratchFiles(t, api.scratch); len(files) != 0 {
		t.Errorf("scratch not empty: %v", files)
	}
}

func TestConvertMissingInput(t *testing.T) {
	tests := []struct {
		name  string
		files []formPart
		want  string
	}{
		{"no file part", nil, "No video file part in the request."},
		{"empty filename", []formPart{{"video", "", nil}}, "No video file selected."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			rec := api.do(multipartRequest(t, map[string]string{"fps": "12"}, tt.files...))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if env := decode[envelope](t, rec); env.Error.Message != tt.want {
				t.Errorf("message = %q, want %q", env.Error.Message, tt.want)
			}
		})
	}
}

func TestConvertAccepted(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(multipartRequest(t,
		map[string]string{"fps": "8", "resize": "320", "start_time": "2", "end_time": "5"},
		formPart{"video", "My Clip.MP4", []byte("fake video bytes")},
	))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]string](t, rec)["task_id"]; got != "task-1" {
		t.Fatalf("task_id = %q", got)
	}

	st, err := api.ledger.Get(context.Background(), "task-1")
	if err != nil || st.State != models.StatePending {
		t.Errorf("ledger status = %+v, %v", st, err)
	}

	keys := api.store.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "uploads/") || !strings.HasSuffix(keys[0], "_My_Clip.mp4") {
		t.Fatalf("stored keys = %v", keys)
	}
	if files := scratchFiles(t, api.scratch); len(files) != 0 {
		t.Errorf("local copy not removed: %v", files)
	}

	if api.queue.Len() != 1 {
		t.Fatalf("queue length = %d", api.queue.Len())
	}
	var got models.Descriptor
	ctx, cancel := context.WithCancel(context.Background())
	_ = api.queue.Consume(ctx, 0, func(_ context.Context, d models.Descriptor) error {
		got = d
		cancel()
		return nil
	})
	if got.ID != "task-1" || got.SourceKey != keys[0] || got.SourceKind != models.SourceUpload {
		t.Errorf("descriptor = %+v", got)
	}
	if got.Options.FPS != 8 || got.Options.ResizeWidth != 320 || got.Options.StartTime != 2 || got.Options.EndTime != 5 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestConvertFromURL(t *testing.T) {
	dir := t.TempDir()
	api := newTestAPI(t, func(d *handlers.Deps) {
		d.Acquirer = stubAcquirer{dir: dir}
	})

	rec := api.do(newFormRequest(url.Values{"url": {"https://example.com/v.mp4"}}))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !api.store.Has("uploads/00000000000000aa_remote_clip.mp4") {
		t.Errorf("stored keys = %v", api.store.Keys())
	}
}

func TestConvertDownloadFailure(t *testing.T) {
	api := newTestAPI(t, func(d *handlers.Deps) {
		d.Acquirer = stubAcquirer{err: apperrors.DownloadFailed(context.DeadlineExceeded, "https://example.com/v")}
	})

	rec := api.do(newFormRequest(url.Values{"url": {"https://example.com/v"}}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decode[envelope](t, rec); env.Error.Code != "DOWNLOAD_FAILED" {
		t.Errorf("code = %s", env.Error.Code)
	}
}

type downProducer struct{}

func (downProducer) Enqueue(context.Context, models.Descriptor) error {
	return apperrors.Unavailable("redis")
}

func TestConvertBrokerUnavailable(t *testing.T) {
	api := newTestAPI(t, func(d *handlers.Deps) {
		d.Producer = downProducer{}
	})

	rec := api.do(multipartRequest(t, nil, formPart{"video", "clip.mp4", []byte("video")}))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if keys := api.store.Keys(); len(keys) != 0 {
		t.Errorf("source blob should be removed, got %v", keys)
	}
}

func TestConvertTooLarge(t *testing.T) {
	api := newTestAPI(t)

	big := make([]byte, 2<<20)
	rec := api.do(multipartRequest(t, nil, formPart{"video", "clip.mp4", big}))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if files := scratchFiles(t, api.scratch); len(files) != 0 {
		t.Errorf("partial upload left behind: %v", files)
	}
}

func TestConvertStorageFailure(t *testing.T) {
	api := newTestAPI(t)
	api.store.FailPut = func(string) error { return context.DeadlineExceeded }

	rec := api.do(multipartRequest(t, nil, formPart{"video", "clip.mp4", []byte("video")}))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if api.queue.Len() != 0 {
		t.Error("job enqueued despite storage failure")
	}
	if files := scratchFiles(t, api.scratch); len(files) != 0 {
		t.Errorf("local copy not removed: %v", files)
	}
}
