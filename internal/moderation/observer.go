package moderation

import (
	"acessolivre/internal/metrics"

	"go.uber.org/zap"
)

// Observer receives every mutation and failure of the service.
type Observer interface {
	CommentCreated(commentID, locationID int64, images int)
	CommentTransitioned(commentID int64, status string)
	CommentDeleted(commentID int64)
	ImageDeleted(imageID string, commentID int64)
	RatingUpdated(locationID int64, avg float64, approved int)
	StorageCleanupFailed(op string, paths []string)
	StoreFailure(op string, err error)
}

type logObserver struct {
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewObserver logs through logger and counts transitions on m (m may be nil).
func NewObserver(logger *zap.SugaredLogger, m *metrics.Metrics) Observer {
	return &logObserver{logger: logger, metrics: m}
}

func (o *logObserver) CommentCreated(commentID, locationID int64, images int) {
	o.logger.Infow("comment created", "comment_id", commentID, "location_id", locationID, "images", images)
}

func (o *logObserver) CommentTransitioned(commentID int64, status string) {
	o.metrics.Transition(status)
	o.logger.Infow("comment status changed", "comment_id", commentID, "status", status)
}

func (o *logObserver) CommentDeleted(commentID int64) {
	o.logger.Infow("comment deleted", "comment_id", commentID)
}

func (o *logObserver) ImageDeleted(imageID string, commentID int64) {
	o.logger.Infow("comment image deleted", "image_id", imageID, "comment_id", commentID)
}

func (o *logObserver) RatingUpdated(locationID int64, avg float64, approved int) {
	o.logger.Infow("location rating updated", "location_id", locationID, "avg_rating", avg, "approved", approved)
}

func (o *logObserver) StorageCleanupFailed(op string, paths []string) {
	o.logger.Warnw("storage cleanup failed, files may be orphaned", "op", op, "paths", paths)
}

func (o *logObserver) StoreFailure(op string, err error) {
	o.logger.Errorw("store operation failed", "op", op, "error", err)
}

// NopObserver discards every event.
func NopObserver() Observer { return nopObserver{} }

type nopObserver struct{}

func (nopObserver) CommentCreated(int64, int64, int) {}
func (nopObserver) CommentTransitioned(int64, string) {}
func (nopObserver) CommentDeleted(int64) {}
func (nopObserver) ImageDeleted(string, int64) {}
func (nopObserver) RatingUpdated(int64, float64, int) {}
func (nopObserver) StorageCleanupFailed(string, []string) {}
func (nopObserver) StoreFailure(string, error) {}
