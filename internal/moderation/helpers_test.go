package moderation

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/objectstore"
	"acessolivre/internal/signedurl"
	"acessolivre/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu             sync.Mutex
	transitions    []string
	cleanupFailed  [][]string
	storeFailures  []string
	ratingUpdates  []float64
	deletedImages  []string
	createdComment []int64
}

func (o *recordingObserver) CommentCreated(commentID, _ int64, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.createdComment = append(o.createdComment, commentID)
}

func (o *recordingObserver) CommentTransitioned(_ int64, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, status)
}

func (o *recordingObserver) CommentDeleted(int64) {}

func (o *recordingObserver) ImageDeleted(imageID string, _ int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletedImages = append(o.deletedImages, imageID)
}

func (o *recordingObserver) RatingUpdated(_ int64, avg float64, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ratingUpdates = append(o.ratingUpdates, avg)
}

func (o *recordingObserver) StorageCleanupFailed(_ string, paths []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanupFailed = append(o.cleanupFailed, paths)
}

func (o *recordingObserver) StoreFailure(op string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeFailures = append(o.storeFailures, op)
}

type fixture struct {
	store *testutil.Store
	files *testutil.Files
	obs   *recordingObserver
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()
	files := testutil.NewFiles()
	logger := zap.NewNop().Sugar()
	gw := objectstore.NewGateway(files, logger)
	obs := &recordingObserver{}

	svc := NewService(Deps{
		Tx:        store,
		Locations: store.Locations(),
		Comments:  store.Comments(),
		Files:     gw,
		URLs:      signedurl.New(gw, logger),
		Observer:  obs,
	})
	return &fixture{store: store, files: files, obs: obs, svc: svc}
}

func (f *fixture) location(t *testing.T, images ...string) int64 {
	t.Helper()
	l := &locations.Location{Name: "Biblioteca Central", Description: "Campus library", Images: images}
	require.NoError(t, f.store.Locations().Create(context.Background(), l))
	return l.ID
}

func (f *fixture) comment(t *testing.T, locationID int64, rating int, status string, images ...string) int64 {
	t.Helper()
	for _, p := range images {
		f.files.Seed(p)
	}
	c := &comments.Comment{
		UserName:   "Maria",
		Rating:     rating,
		Body:       "Rampa na entrada principal",
		LocationID: locationID,
		Status:     status,
		Images:     images,
	}
	require.NoError(t, f.store.Comments().Create(context.Background(), c))
	return c.ID
}

func (f *fixture) icon(t *testing.T, name, iconPath string) int64 {
	t.Helper()
	f.files.Seed(iconPath)
	ic := &comments.Icon{Name: name, IconPath: iconPath}
	require.NoError(t, f.store.Comments().CreateIcon(context.Background(), ic))
	return ic.ID
}

func pngFile(name string) objectstore.File {
	data := []byte("\x89PNG\r\n\x1a\nfake")
	return objectstore.File{Name: name, ContentType: "image/png", Size: int64(len(data)), Body: bytes.NewReader(data)}
}
