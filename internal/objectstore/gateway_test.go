package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"acessolivre/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failRm   map[string]bool
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}, failRm: map[string]bool{}}
}

func (f *fakeBackend) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBackend) Remove(_ context.Context, key string) error {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRm[key] {
		return errors.New("storage unavailable")
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}

func TestUploadUsesUUIDNameAndExtension(t *testing.T) {
	backend := newFakeBackend()
	g := NewGateway(backend, zap.NewNop().Sugar())

	p, err := g.Upload(context.Background(), File{
		Name:        "ramp.PNG",
		ContentType: "image/png",
		Size:        3,
		Body:        bytes.NewReader([]byte{1, 2, 3}),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(p, ".png"))
	assert.Len(t, ImageID(p), 36)
	assert.Contains(t, backend.objects, p)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	g := NewGateway(newFakeBackend(), zap.NewNop().Sugar())

	_, err := g.Upload(context.Background(), File{
		Name:        "doc.pdf",
		ContentType: "application/pdf",
		Size:        10,
		Body:        strings.NewReader("%PDF-1.4.."),
	})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDeleteManyReportsPartialFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["a.jpg"] = nil
	backend.objects["b.jpg"] = nil
	backend.failRm["b.jpg"] = true

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	g := NewGateway(backend, zap.NewNop().Sugar(), WithMetrics(m))

	ok := g.DeleteMany(context.Background(), []string{"a.jpg", "b.jpg"})

	assert.False(t, ok)
	assert.NotContains(t, backend.objects, "a.jpg")
	assert.Contains(t, backend.objects, "b.jpg")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrorCounter("delete")))
}

func TestDeleteManyEmpty(t *testing.T) {
	g := NewGateway(newFakeBackend(), zap.NewNop().Sugar())
	assert.True(t, g.DeleteMany(context.Background(), nil))
}

func TestDeleteManyIsBounded(t *testing.T) {
	backend := newFakeBackend()
	backend.delay = 5 * time.Millisecond
	g := NewGateway(backend, zap.NewNop().Sugar(), WithConcurrency(3))

	paths := make([]string, 20)
	for i := range paths {
		paths[i] = strings.Repeat("x", i+1) + ".jpg"
	}
	assert.True(t, g.DeleteMany(context.Background(), paths))
	assert.LessOrEqual(t, backend.peak.Load(), int32(3))
}

func TestImageID(t *testing.T) {
	assert.Equal(t, "6a9c0f4e", ImageID("6a9c0f4e.png"))
	assert.Equal(t, "abc", ImageID("comments/abc.jpeg"))
	assert.Equal(t, "noext", ImageID("noext"))
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed("image/jpeg"))
	assert.True(t, Allowed("image/webp; charset=binary"))
	assert.False(t, Allowed("image/gif"))
}
