package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"acessolivre/internal/moderation"
	"acessolivre/internal/params"

	"github.com/go-chi/chi/v5"
)

type CreateCommentPayload struct {
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	UserName   string  `json:"user_name" validate:"required,notblank,max=30"`
	Rating     int     `json:"rating"`
	Comment    string  `json:"comment" validate:"max=500"`
	IconIDs    []int64 `json:"comment_icon_ids" validate:"omitempty,dive,gt=0"`
}

type UpdateCommentStatusPayload struct {
	Status string `json:"status" validate:"required"`
}

type commentListResponse struct {
	Comments []moderation.CommentView `json:"comments"`
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// createCommentHandler accepts a multipart form: the "comment" field holds
// the JSON payload and "images" carries up to five photos.
func (app *application) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateCommentPayload
	if err := app.parseForm(w, r, "comment", &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	images, closeImages, err := formFiles(r, "images", maxImages)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer closeImages()

	comment, err := app.comments.Create(r.Context(), moderation.CreateInput{
		LocationID: payload.LocationID,
		UserName:   payload.UserName,
		Rating:     payload.Rating,
		Comment:    payload.Comment,
		Images:     images,
		IconIDs:    payload.IconIDs,
	})
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, comment); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getCommentHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := idParam(r, "commentID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	comment, err := app.comments.GetComment(r.Context(), commentID)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, comment); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getRecentCommentsHandler(w http.ResponseWriter, r *http.Request) {
	window := params.ParseWindow(r.URL.Query(), moderation.DefaultRecentLimit, moderation.MaxRecentLimit)

	cs, err := app.comments.GetRecentApproved(r.Context(), window.Limit)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, commentListResponse{Comments: cs}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getPendingCommentsHandler(w http.ResponseWriter, r *http.Request) {
	window := params.ParseWindow(r.URL.Query(), moderation.DefaultPendingLimit, moderation.MaxPendingLimit)

	cs, err := app.comments.GetPending(r.Context(), window.Skip, window.Limit)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, commentListResponse{Comments: cs}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getLocationCommentsHandler(w http.ResponseWriter, r *http.Request) {
	locationID, err := idParam(r, "locationID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	window := params.ParseWindow(r.URL.Query(), moderation.DefaultLocationLimit, moderation.MaxLocationLimit)

	cs, err := app.comments.GetByLocation(r.Context(), locationID, window.Skip, window.Limit)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, commentListResponse{Comments: cs}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) updateCommentStatusHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := idParam(r, "commentID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload UpdateCommentStatusPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	result, err := app.comments.Transition(r.Context(), commentID, payload.Status)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	commentID, err := idParam(r, "commentID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if _, err := app.comments.Delete(r.Context(), commentID, getAdminFromContext(r) != nil); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]string{"message": "comment deleted successfully"})
}

func (app *application) deleteCommentImageHandler(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	if imageID == "" {
		app.badRequestResponse(w, r, errors.New("invalid imageID"))
		return
	}

	if _, err := app.comments.DeleteImage(r.Context(), imageID); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]string{"message": "image deleted successfully"})
}
