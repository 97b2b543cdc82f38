package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Storage keeps images in a Cloudinary folder. The stored path
// "<uuid>.<ext>" maps to the public id "<folder>/<uuid>".
type Storage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func New(cloudinaryURL, folder string) (*Storage, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Storage{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

func (s *Storage) publicID(key string) string {
	id := strings.TrimSuffix(key, path.Ext(key))
	if s.folder == "" {
		return id
	}
	return s.folder + "/" + id
}

func (s *Storage) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) error {
	resp, err := s.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		PublicID:  s.publicID(key),
		Overwrite: api.Bool(false),
		Type:      api.Authenticated,
	})
	if err != nil {
		return fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, key string) error {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: s.publicID(key),
		Type:     api.Authenticated,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", resp.Error.Message)
	}
	if resp.Result != "ok" {
		return errors.New("cloudinary destroy: " + resp.Result)
	}
	return nil
}

// Presign builds a signed delivery url for an authenticated asset. Cloudinary
// signatures do not carry an expiry, so expiry only scopes the cache entry.
func (s *Storage) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	img, err := s.cld.Image(s.publicID(key))
	if err != nil {
		return "", fmt.Errorf("cloudinary image: %w", err)
	}
	img.DeliveryType = api.Authenticated
	img.Config.URL.Secure = true
	img.Config.URL.SignURL = true
	return img.String()
}
