package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"gifpipe/internal/ports"
)

func TestToInfo(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	tests := []struct {
		name  string
		attrs *storage.ObjectAttrs
		want  time.Time
	}{
		{"updated wins", &storage.ObjectAttrs{Name: "gifs/a.gif", Created: created, Updated: updated}, updated},
		{"created fallback", &storage.ObjectAttrs{Name: "gifs/a.gif", Created: created}, created},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := toInfo(tt.attrs)
			if !info.ModTime.Equal(tt.want) {
				t.Errorf("ModTime = %v, want %v", info.ModTime, tt.want)
			}
			if info.Key != "gifs/a.gif" {
				t.Errorf("Key = %s", info.Key)
			}
		})
	}
}

const listBody = `{
  "kind": "storage#objects",
  "items": [
    {"name": "gifs/a.gif", "bucket": "bkt", "size": "12", "contentType": "image/gif",
     "timeCreated": "2026-01-01T00:00:00Z", "updated": "2026-01-02T00:00:00Z"},
    {"name": "gifs/b.gif", "bucket": "bkt", "size": "7", "contentType": "image/gif",
     "timeCreated": "2026-01-03T00:00:00Z"}
  ]
}`

// newFakeBucket serves an object listing for bucket "bkt" and answers 404 to
// everything else.
func newFakeBucket(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/bkt/o") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, listBody)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object"}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewWithOptions(context.Background(), "bkt",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatMissingIsNotFound(t *testing.T) {
	c := newFakeBucket(t)

	_, err := c.StatObject(context.Background(), "gifs/missing.gif")
	if !errors.Is(err, ports.ErrObjectNotFound) {
		t.Fatalf("StatObject() error = %v, want ErrObjectNotFound", err)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	c := newFakeBucket(t)

	_, _, _, err := c.GetObject(context.Background(), "gifs/missing.gif")
	if !errors.Is(err, ports.ErrObjectNotFound) {
		t.Fatalf("GetObject() error = %v, want ErrObjectNotFound", err)
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	c := newFakeBucket(t)

	if err := c.DeleteObject(context.Background(), "gifs/missing.gif"); err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
}

func TestListObjects(t *testing.T) {
	c := newFakeBucket(t)

	infos, err := c.ListObjects(context.Background(), "gifs/")
	if err != nil {
		t.Fatalf("ListObjects() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d objects, want 2", len(infos))
	}
	if infos[0].Key != "gifs/a.gif" || infos[0].Size != 12 || infos[0].ContentType != "image/gif" {
		t.Errorf("first object = %+v", infos[0])
	}
	if want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC); !infos[0].ModTime.Equal(want) {
		t.Errorf("ModTime = %v, want updated time %v", infos[0].ModTime, want)
	}
	if want := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC); !infos[1].ModTime.Equal(want) {
		t.Errorf("ModTime = %v, want creation time %v", infos[1].ModTime, want)
	}
	if c.Provider() != "gcs" {
		t.Errorf("Provider() = %s", c.Provider())
	}
}
