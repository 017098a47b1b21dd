package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gifpipe/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const fileFields = "id, name, size, mimeType, modifiedTime"

// Client implements ports.StorageProvider backed by Google Drive.
// Object keys are stored as Drive file names inside one folder; the file id is
// resolved by name on every call.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	existing, err := c.find(ctx, in.ObjectKey)
	if err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
		return ports.PutObjectOutput{}, err
	}

	opts := []googleapi.MediaOption{}
	if in.ContentType != "" {
		opts = append(opts, googleapi.ContentType(in.ContentType))
	}

	if existing != nil {
		_, err = c.srv.Files.Update(existing.Id, &drive.File{}).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{Name: in.ObjectKey}
		if c.folderID != "" {
			file.Parents = []string{c.folderID}
		}
		_, err = c.srv.Files.Create(file).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return nil, "", 0, err
	}

	resp, err := c.srv.Files.Get(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	return toInfo(f), nil
}

func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	var out []ports.ObjectInfo
	err := c.srv.Files.List().
		Q(c.folderQuery()).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				if strings.HasPrefix(f.Name, prefix) {
					out = append(out, toInfo(f))
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("gdrive list failed: %w", err)
	}
	return out, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	f, err := c.find(ctx, objectKey)
	if errors.Is(err, ports.ErrObjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = c.srv.Files.Delete(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// GetSignedURL is unsupported: Drive links need the caller's credentials, so
// downloads are proxied by the API instead.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, ports.ErrSignedURLUnsupported
}

func (c *Client) find(ctx context.Context, name string) (*drive.File, error) {
	q := c.folderQuery() + " and name = '" + escapeQuery(name) + "'"
	res, err := c.srv.Files.List().
		Q(q).
		Fields(googleapi.Field("files(" + fileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		OrderBy("modifiedTime desc").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gdrive lookup failed: %w", err)
	}
	if len(res.Files) == 0 {
		return nil, ports.ErrObjectNotFound
	}
	return res.Files[0], nil
}

func (c *Client) folderQuery() string {
	q := "trashed = false"
	if c.folderID != "" {
		q = "'" + escapeQuery(c.folderID) + "' in parents and " + q
	}
	return q
}

func toInfo(f *drive.File) ports.ObjectInfo {
	mod, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return ports.ObjectInfo{
		Key:         f.Name,
		Size:        f.Size,
		ContentType: f.MimeType,
		ModTime:     mod,
	}
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
