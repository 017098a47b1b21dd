// Package storagetest provides an in-memory blob store for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gifpipe/internal/ports"
)

type object struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// MemStore is a concurrency-safe ports.StorageProvider kept in memory.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]object

	// Now stamps ModTime on writes.
	Now func() time.Time
	// Sign enables GetSignedURL when set.
	Sign func(key string, ttl time.Duration) (string, time.Time)
	// FailPut, FailGet and FailDelete inject errors for matching keys.
	FailPut    func(key string) error
	FailGet    func(key string) error
	FailDelete func(key string) error
	// FailList injects an error for a prefix.
	FailList func(prefix string) error
}

func New() *MemStore {
	return &MemStore{objects: map[string]object{}, Now: time.Now}
}

func (m *MemStore) Provider() string { return "memory" }

func (m *MemStore) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if m.FailPut != nil {
		if err := m.FailPut(in.ObjectKey); err != nil {
			return ports.PutObjectOutput{}, err
		}
	}
	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	m.Set(in.ObjectKey, data, in.ContentType, m.Now())
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: int64(len(data))}, nil
}

// Set stores data under key with an explicit modification time.
func (m *MemStore) Set(key string, data []byte, contentType string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType, modTime: modTime}
}

func (m *MemStore) GetObject(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	if m.FailGet != nil {
		if err := m.FailGet(key); err != nil {
			return nil, "", 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", 0, ports.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), o.contentType, int64(len(o.data)), nil
}

func (m *MemStore) StatObject(ctx context.Context, key string) (ports.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return ports.ObjectInfo{}, ports.ErrObjectNotFound
	}
	return ports.ObjectInfo{Key: key, Size: int64(len(o.data)), ContentType: o.contentType, ModTime: o.modTime}, nil
}

func (m *MemStore) ListObjects(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	if m.FailList != nil {
		if err := m.FailList(prefix); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.ObjectInfo
	for k, o := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ports.ObjectInfo{Key: k, Size: int64(len(o.data)), ContentType: o.contentType, ModTime: o.modTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemStore) DeleteObject(ctx context.Context, key string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemStore) GetSignedURL(ctx context.Context, key string, ttl time.Duration) (ports.SignedURLOutput, error) {
	if m.Sign == nil {
		return ports.SignedURLOutput{}, ports.ErrSignedURLUnsupported
	}
	if !m.Has(key) {
		return ports.SignedURLOutput{}, ports.ErrObjectNotFound
	}
	u, exp := m.Sign(key, ttl)
	return ports.SignedURLOutput{URL: u, ExpiresAt: exp}, nil
}

// Has reports whether key is stored.
func (m *MemStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Keys returns every stored key, sorted.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrInjected is a convenience error for the Fail hooks.
var ErrInjected = errors.New("injected storage failure")
