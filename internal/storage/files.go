package storage

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"

	"gifpipe/internal/pkg/errors"
	"gifpipe/internal/ports"
)

// PutFile uploads the local file at localPath under key.
func PutFile(ctx context.Context, sp Provider, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Storage(err, "storage.put", key)
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	_, err = sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: mime.TypeByExtension(filepath.Ext(localPath)),
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return errors.Storage(err, "storage.put", key)
	}
	return nil
}

// GetFile downloads key into localPath, creating parent directories.
func GetFile(ctx context.Context, sp Provider, key, localPath string) error {
	rc, _, _, err := sp.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return errors.WrapWithCode(err, errors.CodeNotFound, "storage.get", "source blob missing").WithField("key", key)
		}
		return errors.Storage(err, "storage.get", key)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.Wrap(err, "storage.get", "create directory")
	}
	out, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "storage.get", "create file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return errors.Storage(err, "storage.get", key)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "storage.get", "close file")
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func Delete(ctx context.Context, sp Provider, key string) error {
	if err := sp.DeleteObject(ctx, key); err != nil {
		return errors.Storage(err, "storage.delete", key)
	}
	return nil
}
