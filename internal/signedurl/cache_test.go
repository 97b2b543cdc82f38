package signedurl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"acessolivre/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSigner struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	delay time.Duration
}

func newCountingSigner() *countingSigner {
	return &countingSigner{calls: map[string]int{}, fail: map[string]bool{}}
}

func (s *countingSigner) SignURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[Key(path, expiry)]++
	if s.fail[path] {
		return "", errors.New("object not found")
	}
	return fmt.Sprintf("https://files.test/%s?exp=%d&n=%d", path, int(expiry.Seconds()), s.calls[Key(path, expiry)]), nil
}

func (s *countingSigner) count(path string, expiry time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[Key(path, expiry)]
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a.jpg:3600", Key("a.jpg", time.Hour))
}

func TestTTLLeavesSafetyMargin(t *testing.T) {
	assert.Equal(t, 55*time.Minute, TTL(time.Hour))
	assert.Equal(t, 2*time.Minute, TTL(4*time.Minute))
}

func TestGetHitSuppressesBackendCall(t *testing.T) {
	signer := newCountingSigner()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	c := New(signer, zap.NewNop().Sugar(), WithMetrics(m))
	ctx := context.Background()

	first, err := c.Get(ctx, "a.jpg", time.Hour)
	require.NoError(t, err)
	second, err := c.Get(ctx, "a.jpg", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, signer.count("a.jpg", time.Hour))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.URLCacheCounter("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.URLCacheCounter("miss")))

	_, err = c.Get(ctx, "a.jpg", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, signer.count("a.jpg", 2*time.Hour))
	assert.Equal(t, 1, signer.count("a.jpg", time.Hour))
}

func TestGetDefaultExpiry(t *testing.T) {
	signer := newCountingSigner()
	c := New(signer, zap.NewNop().Sugar())

	_, err := c.Get(context.Background(), "a.jpg", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, signer.count("a.jpg", DefaultExpiry))
}

func TestGetFailureIsNotCached(t *testing.T) {
	signer := newCountingSigner()
	signer.fail["gone.jpg"] = true
	c := New(signer, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := c.Get(ctx, "gone.jpg", time.Hour)
	require.Error(t, err)
	_, err = c.Get(ctx, "gone.jpg", time.Hour)
	require.Error(t, err)

	assert.Equal(t, 2, signer.count("gone.jpg", time.Hour))
	assert.Equal(t, 0, c.Len())
}

func TestGetManyIsolatesFailures(t *testing.T) {
	signer := newCountingSigner()
	signer.fail["broken.jpg"] = true
	c := New(signer, zap.NewNop().Sugar())

	urls := c.GetMany(context.Background(), []string{"ok.jpg", "broken.jpg"}, time.Hour)

	require.Len(t, urls, 2)
	assert.NotEmpty(t, urls[0])
	assert.Empty(t, urls[1])
}

func TestGetManyPreservesOrderAndUsesCache(t *testing.T) {
	signer := newCountingSigner()
	c := New(signer, zap.NewNop().Sugar())
	ctx := context.Background()

	cached, err := c.Get(ctx, "b.jpg", time.Hour)
	require.NoError(t, err)

	urls := c.GetMany(ctx, []string{"a.jpg", "b.jpg", "c.jpg", ""}, time.Hour)

	require.Len(t, urls, 4)
	assert.Contains(t, urls[0], "a.jpg")
	assert.Equal(t, cached, urls[1])
	assert.Contains(t, urls[2], "c.jpg")
	assert.Empty(t, urls[3])
	assert.Equal(t, 1, signer.count("b.jpg", time.Hour))
}

func TestConcurrentMissesAreCoalesced(t *testing.T) {
	signer := newCountingSigner()
	signer.delay = 20 * time.Millisecond
	c := New(signer, zap.NewNop().Sugar())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "hot.jpg", time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, signer.count("hot.jpg", time.Hour))
}

func TestCancelledCallerDoesNotFailSharedMiss(t *testing.T) {
	signer := newCountingSigner()
	signer.delay = 100 * time.Millisecond
	c := New(signer, zap.NewNop().Sugar())

	first, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Get(first, "shared.jpg", time.Hour)
	}()

	time.Sleep(5 * time.Millisecond)
	url, err := c.Get(context.Background(), "shared.jpg", time.Hour)
	wg.Wait()

	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.ErrorIs(t, firstErr, context.DeadlineExceeded)
	assert.Equal(t, 1, signer.count("shared.jpg", time.Hour))
	assert.Equal(t, 1, c.Len())
}

func TestGetManyKeepsUrlsWhenAnotherRequestIsCancelled(t *testing.T) {
	signer := newCountingSigner()
	signer.delay = 100 * time.Millisecond
	c := New(signer, zap.NewNop().Sugar())

	gone, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	go c.GetMany(gone, []string{"a.jpg", "b.jpg"}, time.Hour)

	time.Sleep(5 * time.Millisecond)
	urls := c.GetMany(context.Background(), []string{"a.jpg", "b.jpg"}, time.Hour)
	require.Len(t, urls, 2)
	assert.NotEmpty(t, urls[0])
	assert.NotEmpty(t, urls[1])
}

type mapRemote struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (r *mapRemote) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", false, r.err
	}
	v, ok := r.data[key]
	return v, ok, nil
}

func (r *mapRemote) Set(_ context.Context, key, url string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.data[key] = url
	return nil
}

func TestRemoteTierIsConsulted(t *testing.T) {
	signer := newCountingSigner()
	remote := &mapRemote{data: map[string]string{Key("shared.jpg", time.Hour): "https://files.test/shared"}}
	c := New(signer, zap.NewNop().Sugar(), WithRemote(remote))

	url, err := c.Get(context.Background(), "shared.jpg", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "https://files.test/shared", url)
	assert.Equal(t, 0, signer.count("shared.jpg", time.Hour))

	_, err = c.Get(context.Background(), "fresh.jpg", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, remote.data, Key("fresh.jpg", time.Hour))
}

func TestRemoteErrorsAreIgnored(t *testing.T) {
	signer := newCountingSigner()
	c := New(signer, zap.NewNop().Sugar(), WithRemote(&mapRemote{err: errors.New("connection refused")}))

	url, err := c.Get(context.Background(), "a.jpg", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestSizeBound(t *testing.T) {
	c := New(newCountingSigner(), zap.NewNop().Sugar(), WithSize(2))
	for _, p := range []string{"a", "b", "c"} {
		_, err := c.Get(context.Background(), p, time.Hour)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}
