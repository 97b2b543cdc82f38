package signedurl

import (
	"context"
	"strconv"
	"sync"
	"time"

	"acessolivre/internal/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultExpiry      = time.Hour
	DefaultSize        = 1000
	DefaultConcurrency = 10

	// entries expire this long before the url itself does
	safetyMargin = 5 * time.Minute
)

// Signer issues a time-limited url for a stored path.
type Signer interface {
	SignURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// Remote is an optional shared tier consulted after the in-process LRU.
// Get returns ok=false on a miss.
type Remote interface {
	Get(ctx context.Context, key string) (url string, ok bool, err error)
	Set(ctx context.Context, key, url string, ttl time.Duration) error
}

// Cache memoizes signed urls per (path, expiry). It only saves latency:
// evicting any entry at any time is always correct.
type Cache struct {
	signer      Signer
	remote      Remote
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
	size        int
	concurrency int

	mu    sync.Mutex
	lrus  map[time.Duration]*expirable.LRU[string, string]
	group singleflight.Group
}

type Option func(*Cache)

func WithSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.size = n
		}
	}
}

func WithRemote(r Remote) Option {
	return func(c *Cache) { c.remote = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func New(signer Signer, logger *zap.SugaredLogger, opts ...Option) *Cache {
	c := &Cache{
		signer:      signer,
		logger:      logger,
		size:        DefaultSize,
		concurrency: DefaultConcurrency,
		lrus:        make(map[time.Duration]*expirable.LRU[string, string]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is the cache key for a (path, expiry) pair: "path:seconds".
func Key(path string, expiry time.Duration) string {
	return path + ":" + strconv.FormatInt(int64(expiry/time.Second), 10)
}

// TTL is how long an entry for urls valid for expiry may be served.
func TTL(expiry time.Duration) time.Duration {
	if expiry <= safetyMargin {
		return expiry / 2
	}
	return expiry - safetyMargin
}

func (c *Cache) lru(expiry time.Duration) *expirable.LRU[string, string] {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lrus[expiry]
	if !ok {
		l = expirable.NewLRU[string, string](c.size, nil, TTL(expiry))
		c.lrus[expiry] = l
	}
	return l
}

func (c *Cache) store(l *expirable.LRU[string, string], key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !l.Contains(key) {
		l.Add(key, url)
	}
}

// Get returns the signed url for path. A signing failure is returned to the
// caller and never cached. expiry <= 0 means DefaultExpiry.
func (c *Cache) Get(ctx context.Context, path string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	key := Key(path, expiry)
	l := c.lru(expiry)

	if url, ok := l.Get(key); ok {
		c.metrics.URLLookup("hit")
		return url, nil
	}

	if c.remote != nil {
		url, ok, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.Warnw("signed url remote cache get failed", "key", key, "error", err)
		} else if ok {
			c.metrics.URLLookup("remote_hit")
			c.store(l, key, url)
			return url, nil
		}
	}

	// The shared call signs on a detached context; each caller waits on its own.
	signCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		url, err := c.signer.SignURL(signCtx, path, expiry)
		if err != nil {
			return "", err
		}
		c.store(l, key, url)
		if c.remote != nil {
			if err := c.remote.Set(signCtx, key, url, TTL(expiry)); err != nil {
				c.logger.Warnw("signed url remote cache set failed", "key", key, "error", err)
			}
		}
		return url, nil
	})

	select {
	case <-ctx.Done():
		c.metrics.URLLookup("error")
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.metrics.URLLookup("error")
			return "", res.Err
		}
		c.metrics.URLLookup("miss")
		return res.Val.(string), nil
	}
}

// GetMany resolves paths in input order. Cached entries are served directly and
// the rest are signed concurrently. A position whose url could not be resolved
// holds "" and does not affect the others.
func (c *Cache) GetMany(ctx context.Context, paths []string, expiry time.Duration) []string {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	out := make([]string, len(paths))
	if len(paths) == 0 {
		return out
	}
	l := c.lru(expiry)

	var missing []int
	for i, p := range paths {
		if p == "" {
			continue
		}
		if url, ok := l.Get(Key(p, expiry)); ok {
			c.metrics.URLLookup("hit")
			out[i] = url
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out
	}

	var eg errgroup.Group
	eg.SetLimit(c.concurrency)
	for _, i := range missing {
		eg.Go(func() error {
			url, err := c.Get(ctx, paths[i], expiry)
			if err != nil {
				c.logger.Warnw("failed to sign url", "path", paths[i], "error", err)
				return nil
			}
			out[i] = url
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// Len reports the number of live in-process entries, across all expiries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lrus {
		n += l.Len()
	}
	return n
}
