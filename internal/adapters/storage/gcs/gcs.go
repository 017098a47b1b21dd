package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gifpipe/internal/ports"
)

// Client implements ports.StorageProvider on a Google Cloud Storage bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// New opens a client. credentialsFile may be empty to use application default credentials.
func New(ctx context.Context, bucket, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return NewWithOptions(ctx, bucket, opts...)
}

// NewWithOptions opens a client with explicit client options, such as a custom endpoint.
func NewWithOptions(ctx context.Context, bucket string, opts ...option.ClientOption) (*Client, error) {
	cl, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &Client{client: cl, bucket: bucket}, nil
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) Close() error { return c.client.Close() }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	wc := c.client.Bucket(c.bucket).Object(in.ObjectKey).NewWriter(ctx)
	if in.ContentType != "" {
		wc.ContentType = in.ContentType
	}

	n, err := io.Copy(wc, in.Reader)
	if err != nil {
		_ = wc.Close()
		return ports.PutObjectOutput{}, fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("Writer.Close: %w", err)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	r, err := c.client.Bucket(c.bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}
	return r, r.Attrs.ContentType, r.Attrs.Size, nil
}

func (c *Client) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	attrs, err := c.client.Bucket(c.bucket).Object(objectKey).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ports.ObjectInfo{}, ports.ErrObjectNotFound
		}
		return ports.ObjectInfo{}, err
	}
	return toInfo(attrs), nil
}

func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	it := c.client.Bucket(c.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var out []ports.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		out = append(out, toInfo(attrs))
	}
	return out, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.client.Bucket(c.bucket).Object(objectKey).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	exp := time.Now().UTC().Add(expiresIn)
	u, err := c.client.Bucket(c.bucket).SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: exp,
	})
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("sign %s: %w", objectKey, err)
	}
	return ports.SignedURLOutput{URL: u, ExpiresAt: exp}, nil
}

func toInfo(a *storage.ObjectAttrs) ports.ObjectInfo {
	mod := a.Updated
	if mod.IsZero() {
		mod = a.Created
	}
	return ports.ObjectInfo{
		Key:         a.Name,
		Size:        a.Size,
		ContentType: a.ContentType,
		ModTime:     mod,
	}
}
