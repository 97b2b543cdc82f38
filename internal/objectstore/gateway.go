package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"acessolivre/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 10
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("empty file")
)

// AllowedImageTypes maps accepted content types to the extension used for the
// stored object.
var AllowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Backend is the minimal object storage surface the gateway needs.
type Backend interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// File is an upload candidate. Size may be -1 when unknown.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Gateway wraps a Backend with per-call timeouts, bounded delete fan-out,
// metrics and logging.
type Gateway struct {
	backend     Backend
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
	timeout     time.Duration
	concurrency int
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithConcurrency(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func NewGateway(backend Backend, logger *zap.SugaredLogger, opts ...Option) *Gateway {
	g := &Gateway{
		backend:     backend,
		logger:      logger,
		timeout:     DefaultTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Upload stores f under a fresh "<uuid>.<ext>" path and returns that path.
func (g *Gateway) Upload(ctx context.Context, f File) (string, error) {
	ext, err := extensionFor(f)
	if err != nil {
		return "", err
	}
	if f.Size == 0 {
		return "", ErrEmptyFile
	}

	key := fmt.Sprintf("%s.%s", uuid.NewString(), ext)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	err = g.backend.Put(ctx, key, f.Body, f.Size, f.ContentType)
	g.metrics.ObserveStorage("upload", started, err)
	if err != nil {
		g.logger.Errorw("image upload failed", "name", f.Name, "error", err)
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}

	g.logger.Infow("image uploaded", "path", key)
	return key, nil
}

// Delete removes one object. Failures are logged and reported as false.
func (g *Gateway) Delete(ctx context.Context, storedPath string) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	err := g.backend.Remove(ctx, storedPath)
	g.metrics.ObserveStorage("delete", started, err)
	if err != nil {
		g.logger.Errorw("image delete failed", "path", storedPath, "error", err)
		return false
	}

	g.logger.Infow("image deleted", "path", storedPath)
	return true
}

// DeleteMany deletes every path with at most g.concurrency deletions in flight.
// Each deletion is independent; the result is true only when all succeeded.
func (g *Gateway) DeleteMany(ctx context.Context, paths []string) bool {
	if len(paths) == 0 {
		return true
	}

	results := make([]bool, len(paths))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, p := range paths {
		eg.Go(func() error {
			results[i] = g.Delete(ctx, p)
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	for _, ok := range results {
		if !ok {
			failed++
		}
	}
	if failed > 0 {
		g.logger.Warnw("some images failed to delete", "failed", failed, "total", len(paths))
		return false
	}
	return true
}

// SignURL asks the backend for a time-limited URL for storedPath.
func (g *Gateway) SignURL(ctx context.Context, storedPath string, expiry time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	url, err := g.backend.Presign(ctx, storedPath, expiry)
	g.metrics.ObserveStorage("sign", started, err)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", storedPath, err)
	}
	return url, nil
}

// ImageID derives the public identifier of a stored image: its file name
// without extension ("6a9c...53a8.png" -> "6a9c...53a8").
func ImageID(storedPath string) string {
	base := path.Base(storedPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

func extensionFor(f File) (string, error) {
	contentType := f.ContentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = parsed
	}
	ext, ok := AllowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, f.ContentType)
	}
	// keep the client's extension when it agrees with the content type
	if given := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), "."); given != "" {
		if given == ext || (ext == "jpg" && given == "jpeg") {
			return given, nil
		}
	}
	return ext, nil
}

// Allowed reports whether contentType may be uploaded.
func Allowed(contentType string) bool {
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = parsed
	}
	_, ok := AllowedImageTypes[contentType]
	return ok
}
