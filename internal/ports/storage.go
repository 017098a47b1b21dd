package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned by GetObject and StatObject for a missing key.
	ErrObjectNotFound = errors.New("object not found")
	// ErrSignedURLUnsupported is returned by GetSignedURL when the backend cannot sign.
	ErrSignedURLUnsupported = errors.New("signed urls not supported by this provider")
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectInfo describes a stored object. ModTime is what retention compares against.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// StorageProvider is the blob store contract shared by the API, the worker and the sweeper.
// Keys are slash separated ("uploads/x.mp4", "gifs/x.gif") on every backend.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	StatObject(ctx context.Context, objectKey string) (ObjectInfo, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// DeleteObject treats a missing key as success.
	DeleteObject(ctx context.Context, objectKey string) error

	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
