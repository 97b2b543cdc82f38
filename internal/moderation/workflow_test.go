package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"acessolivre/internal/domain/comments"
	"acessolivre/internal/objectstore"
	"acessolivre/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTwiceFailsWithNotPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 4, comments.StatusPending)

	res, err := f.svc.Transition(ctx, id, comments.StatusApproved)
	require.NoError(t, err)
	require.NotNil(t, res.Comment)
	assert.Equal(t, comments.StatusApproved, res.Comment.Status)

	before, _ := f.store.Location(loc)

	for _, target := range []string{comments.StatusApproved, comments.StatusRejected} {
		_, err := f.svc.Transition(ctx, id, target)
		require.ErrorIs(t, err, ErrNotPending)
	}

	c, ok := f.store.Comment(id)
	require.True(t, ok)
	assert.Equal(t, comments.StatusApproved, c.Status)
	after, _ := f.store.Location(loc)
	assert.Equal(t, *before.AvgRating, *after.AvgRating)
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 5, comments.StatusPending)

	const callers = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		notPending int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transition(context.Background(), id, comments.StatusApproved)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrNotPending):
				notPending++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, notPending)
	l, _ := f.store.Location(loc)
	assert.InDelta(t, 5.0, *l.AvgRating, 1e-9)
}

func TestTransitionValidatesTargetFirst(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"pending", "archived", ""} {
		_, err := f.svc.Transition(context.Background(), 999, target)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	}
}

func TestTransitionMissingComment(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transition(context.Background(), 42, comments.StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveMergesImagesWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "a.jpg")
	id := f.comment(t, loc, 3, comments.StatusPending, "a.jpg", "b.jpg")

	res, err := f.svc.Transition(context.Background(), id, comments.StatusApproved)
	require.NoError(t, err)

	l, _ := f.store.Location(loc)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, l.Images)
	require.Len(t, res.Comment.Images, 2)
	assert.Equal(t, "a", res.Comment.Images[0].ID)
	assert.Contains(t, res.Comment.Images[0].URL, "a.jpg")
}

func TestApproveRollsBackWhenRatingUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 4, comments.StatusPending, "a.jpg")

	f.store.FailOn("locations.SetAvgRating", testutil.ErrInjected)
	_, err := f.svc.Transition(ctx, id, comments.StatusApproved)
	require.ErrorIs(t, err, ErrUpdate)
	assert.NotErrorIs(t, err, testutil.ErrInjected)
	assert.Contains(t, f.obs.storeFailures, "comment.approve")

	c, _ := f.store.Comment(id)
	assert.Equal(t, comments.StatusPending, c.Status)
	l, _ := f.store.Location(loc)
	assert.Empty(t, l.Images)
	assert.Nil(t, l.AvgRating)

	f.store.FailOn("locations.SetAvgRating", nil)
	_, err = f.svc.Transition(ctx, id, comments.StatusApproved)
	require.NoError(t, err)
	l, _ = f.store.Location(loc)
	assert.InDelta(t, 4.0, *l.AvgRating, 1e-9)
	assert.Equal(t, []string{"a.jpg"}, l.Images)
}

func TestApproveRollsBackWhenCommitFails(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 2, comments.StatusPending)

	f.store.FailOn("tx.Commit", testutil.ErrInjected)
	_, err := f.svc.Transition(context.Background(), id, comments.StatusApproved)
	require.ErrorIs(t, err, ErrUpdate)

	c, _ := f.store.Comment(id)
	assert.Equal(t, comments.StatusPending, c.Status)
}

func TestRejectDeletesRowEvenWhenStorageFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 1, comments.StatusPending, "a.jpg", "b.jpg")
	f.files.FailRemove = true

	res, err := f.svc.Transition(ctx, id, comments.StatusRejected)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Nil(t, res.Comment)

	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, f.files.RemovedPaths())
	require.Len(t, f.obs.cleanupFailed, 1)

	_, err = f.svc.GetComment(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.store.ImageRefs())
}

func TestRejectRemovesFiles(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 2, comments.StatusPending, "a.jpg")

	_, err := f.svc.Transition(context.Background(), id, comments.StatusRejected)
	require.NoError(t, err)
	assert.False(t, f.files.Has("a.jpg"))
	assert.Empty(t, f.obs.cleanupFailed)
}

func TestCreateRatingBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)

	for _, rating := range []int{0, 6, -1} {
		_, err := f.svc.Create(ctx, CreateInput{
			LocationID: loc,
			UserName:   "Ana",
			Rating:     rating,
			Comment:    "ok",
			Images:     []objectstore.File{pngFile("x.png")},
		})
		require.ErrorIs(t, err, ErrInvalidRating)
	}
	assert.Empty(t, f.files.Keys())
	pending, err := f.svc.GetPending(ctx, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, pending)

	for _, rating := range []int{1, 5} {
		v, err := f.svc.Create(ctx, CreateInput{LocationID: loc, UserName: "Ana", Rating: rating, Comment: "ok"})
		require.NoError(t, err)
		assert.Equal(t, comments.StatusPending, v.Status)
		assert.Equal(t, rating, v.Rating)
	}
}

func TestCreateUploadsImagesAndAttachesIcons(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	ramp := f.icon(t, "Rampa", "icons/ramp.png")

	v, err := f.svc.Create(context.Background(), CreateInput{
		LocationID: loc,
		UserName:   "  João  ",
		Rating:     4,
		Comment:    "Boa acessibilidade",
		Images:     []objectstore.File{pngFile("one.png"), pngFile("two.png")},
		IconIDs:    []int64{ramp, ramp},
	})
	require.NoError(t, err)

	assert.Equal(t, "João", v.UserName)
	require.Len(t, v.Images, 2)
	for _, img := range v.Images {
		assert.Len(t, img.ID, 36)
		assert.NotEmpty(t, img.URL)
	}
	require.Len(t, v.Icons, 1)
	assert.Equal(t, "Rampa", v.Icons[0].Name)
	assert.Contains(t, v.Icons[0].IconURL, "icons/ramp.png")
	assert.Len(t, f.files.Keys(), 3)
	assert.Equal(t, 2, f.store.ImageRefs())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)

	_, err := f.svc.Create(ctx, CreateInput{LocationID: loc + 100, UserName: "Ana", Rating: 3})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Create(ctx, CreateInput{LocationID: loc, UserName: "Ana", Rating: 3, IconIDs: []int64{777}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Create(ctx, CreateInput{LocationID: loc, UserName: "", Rating: 3})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Create(ctx, CreateInput{
		LocationID: loc,
		UserName:   "Ana",
		Rating:     3,
		Images:     []objectstore.File{pngFile("a.png"), {Name: "a.gif", ContentType: "image/gif", Size: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Empty(t, f.files.Keys())
}

func TestCreateUploadFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	f.files.FailPut = true

	_, err := f.svc.Create(context.Background(), CreateInput{
		LocationID: loc,
		UserName:   "Ana",
		Rating:     3,
		Images:     []objectstore.File{pngFile("a.png")},
	})
	require.ErrorIs(t, err, ErrCreate)

	pending, err := f.svc.GetPending(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateStoreFailureRemovesUploads(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	f.store.FailOn("comments.Create", testutil.ErrInjected)

	_, err := f.svc.Create(context.Background(), CreateInput{
		LocationID: loc,
		UserName:   "Ana",
		Rating:     3,
		Images:     []objectstore.File{pngFile("a.png"), pngFile("b.png")},
	})
	require.ErrorIs(t, err, ErrCreate)
	assert.Empty(t, f.files.Keys())
	assert.Len(t, f.files.RemovedPaths(), 2)
}

func TestDeleteRequiresAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 3, comments.StatusPending, "a.jpg")

	f.store.FailOn("comments.GetForUpdate", testutil.ErrInjected)
	f.store.FailOn("comments.GetByID", testutil.ErrInjected)

	for _, target := range []int64{id, 99999} {
		ok, err := f.svc.Delete(ctx, target, false)
		require.ErrorIs(t, err, ErrPermissionDenied)
		assert.False(t, ok)
	}

	_, exists := f.store.Comment(id)
	assert.True(t, exists)
	assert.Empty(t, f.files.RemovedPaths())
	assert.Empty(t, f.obs.storeFailures)
}

func TestDeleteComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 3, comments.StatusPending, "a.jpg")
	f.files.FailRemove = true

	ok, err := f.svc.Delete(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, ok)

	_, exists := f.store.Comment(id)
	assert.False(t, exists)
	assert.Equal(t, []string{"a.jpg"}, f.files.RemovedPaths())

	_, err = f.svc.Delete(ctx, id, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteApprovedCommentRetractsRatingAndImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	keep := f.comment(t, loc, 4, comments.StatusPending, "keep.jpg")
	drop := f.comment(t, loc, 2, comments.StatusPending, "drop.jpg")

	for _, id := range []int64{keep, drop} {
		_, err := f.svc.Transition(ctx, id, comments.StatusApproved)
		require.NoError(t, err)
	}
	l, _ := f.store.Location(loc)
	require.InDelta(t, 3.0, *l.AvgRating, 1e-9)

	_, err := f.svc.Delete(ctx, drop, true)
	require.NoError(t, err)

	l, _ = f.store.Location(loc)
	assert.InDelta(t, 4.0, *l.AvgRating, 1e-9)
	assert.Equal(t, []string{"keep.jpg"}, l.Images)

	_, err = f.svc.Delete(ctx, keep, true)
	require.NoError(t, err)
	l, _ = f.store.Location(loc)
	assert.Equal(t, 0.0, *l.AvgRating)
	assert.Empty(t, l.Images)
}

func TestDeleteImageUpdatesCommentAndLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 5, comments.StatusPending, "x1.jpg", "y2.png")
	_, err := f.svc.Transition(ctx, id, comments.StatusApproved)
	require.NoError(t, err)

	ok, err := f.svc.DeleteImage(ctx, "x1")
	require.NoError(t, err)
	assert.True(t, ok)

	c, _ := f.store.Comment(id)
	assert.Equal(t, []string{"y2.png"}, c.Images)
	l, _ := f.store.Location(loc)
	assert.Equal(t, []string{"y2.png"}, l.Images)
	assert.False(t, f.files.Has("x1.jpg"))
	assert.Equal(t, 1, f.store.ImageRefs())
	assert.Equal(t, []string{"x1"}, f.obs.deletedImages)

	_, err = f.svc.DeleteImage(ctx, "x1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteImageSurvivesStorageFailure(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 5, comments.StatusPending, "x1.jpg")
	f.files.FailRemove = true

	ok, err := f.svc.DeleteImage(context.Background(), "x1")
	require.NoError(t, err)
	assert.True(t, ok)

	c, _ := f.store.Comment(id)
	assert.Empty(t, c.Images)
	require.Len(t, f.obs.cleanupFailed, 1)
}

func TestDeleteImageRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t, "x1.jpg")
	id := f.comment(t, loc, 5, comments.StatusApproved, "x1.jpg")
	f.store.FailOn("locations.SetImages", testutil.ErrInjected)

	_, err := f.svc.DeleteImage(context.Background(), "x1")
	require.ErrorIs(t, err, ErrDelete)

	c, _ := f.store.Comment(id)
	assert.Equal(t, []string{"x1.jpg"}, c.Images)
	assert.Equal(t, 1, f.store.ImageRefs())
	assert.True(t, f.files.Has("x1.jpg"))
}

func TestDeleteImageLostRaceIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	id := f.comment(t, loc, 4, comments.StatusPending, "x1.jpg", "y2.png")

	// The index still points at the comment but its image list moved on, as
	// seen by a second deletion that waited for the row lock.
	require.NoError(t, f.store.Comments().SetImages(ctx, id, []string{"y2.png"}))

	_, err := f.svc.DeleteImage(ctx, "x1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.obs.storeFailures)

	c, _ := f.store.Comment(id)
	assert.Equal(t, []string{"y2.png"}, c.Images)
}

func TestDeleteImageMissingIndexRowIsNotFound(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 4, comments.StatusPending, "x1.jpg")
	f.store.FailOn("comments.DeleteImageRef", comments.ErrImageNotFound)

	_, err := f.svc.DeleteImage(context.Background(), "x1")
	require.ErrorIs(t, err, ErrNotFound)

	c, _ := f.store.Comment(id)
	assert.Equal(t, []string{"x1.jpg"}, c.Images)
	assert.True(t, f.files.Has("x1.jpg"))
}

func TestApproveSurvivesIconLookupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.location(t)
	iconID := f.icon(t, "Cadeirante", "wheelchair.png")
	c := &comments.Comment{
		UserName:   "Maria",
		Rating:     4,
		Body:       "Elevador funcionando",
		LocationID: loc,
		Status:     comments.StatusPending,
		IconIDs:    []int64{iconID},
	}
	require.NoError(t, f.store.Comments().Create(ctx, c))
	f.store.FailOn("comments.IconsByIDs", testutil.ErrInjected)

	res, err := f.svc.Transition(ctx, c.ID, comments.StatusApproved)
	require.NoError(t, err)
	require.NotNil(t, res.Comment)
	assert.Equal(t, comments.StatusApproved, res.Comment.Status)
	assert.Empty(t, res.Comment.Icons)
	assert.Contains(t, f.obs.storeFailures, "comment.approve.hydrate")

	stored, _ := f.store.Comment(c.ID)
	assert.Equal(t, comments.StatusApproved, stored.Status)
}

func TestImagesNeverNull(t *testing.T) {
	f := newFixture(t)
	loc := f.location(t)
	id := f.comment(t, loc, 3, comments.StatusPending)

	v, err := f.svc.GetComment(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, v.Images)
	assert.Empty(t, v.Images)
	require.NotNil(t, v.Icons)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"images":[]`)
	assert.Contains(t, string(raw), `"comment_icons":[]`)
}
