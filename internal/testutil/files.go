package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var ErrStorageDown = errors.New("storage unavailable")

// Files is an in-memory object storage backend that records every call.
type Files struct {
	mu      sync.Mutex
	objects map[string][]byte

	Removed []string
	Signed  []string

	FailPut    bool
	FailRemove bool
	FailSign   map[string]bool
}

func NewFiles() *Files {
	return &Files{objects: map[string][]byte{}, FailSign: map[string]bool{}}
}

func (f *Files) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPut {
		return ErrStorageDown
	}
	f.objects[key] = data
	return nil
}

func (f *Files) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, key)
	if f.FailRemove {
		return ErrStorageDown
	}
	delete(f.objects, key)
	return nil
}

func (f *Files) Presign(_ context.Context, key string, expiry time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Signed = append(f.Signed, key)
	if f.FailSign[key] {
		return "", ErrStorageDown
	}
	return fmt.Sprintf("https://files.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

// Seed stores an object directly, bypassing the gateway.
func (f *Files) Seed(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = []byte(key)
}

func (f *Files) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *Files) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

func (f *Files) RemovedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Removed...)
}
