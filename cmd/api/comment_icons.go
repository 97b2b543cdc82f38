package main

import (
	"errors"
	"net/http"

	"acessolivre/internal/moderation"
)

type iconListResponse struct {
	Icons []moderation.IconView `json:"comment_icons"`
}

func (app *application) listCommentIconsHandler(w http.ResponseWriter, r *http.Request) {
	icons, err := app.comments.ListIcons(r.Context())
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, iconListResponse{Icons: icons}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getCommentIconHandler(w http.ResponseWriter, r *http.Request) {
	iconID, err := idParam(r, "iconID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	icon, err := app.comments.GetIcon(r.Context(), iconID)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, icon); err != nil {
		app.internalServerError(w, r, err)
	}
}

// createCommentIconHandler expects a multipart form with "name" and "image".
func (app *application) createCommentIconHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.parseForm(w, r, "", nil); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	image, closeImage, ok, err := formFile(r, "image")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer closeImage()
	if !ok {
		app.badRequestResponse(w, r, errors.New("image is required"))
		return
	}

	icon, err := app.comments.CreateIcon(r.Context(), r.FormValue("name"), image)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, icon); err != nil {
		app.internalServerError(w, r, err)
	}
}

// updateCommentIconHandler accepts the same form as create; both fields are
// optional.
func (app *application) updateCommentIconHandler(w http.ResponseWriter, r *http.Request) {
	iconID, err := idParam(r, "iconID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.parseForm(w, r, "", nil); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var patch moderation.IconPatch
	if values, ok := r.MultipartForm.Value["name"]; ok && len(values) > 0 {
		patch.Name = &values[0]
	}

	image, closeImage, ok, err := formFile(r, "image")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer closeImage()
	if ok {
		patch.Image = &image
	}

	icon, err := app.comments.UpdateIcon(r.Context(), iconID, patch)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, icon); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) deleteCommentIconHandler(w http.ResponseWriter, r *http.Request) {
	iconID, err := idParam(r, "iconID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if _, err := app.comments.DeleteIcon(r.Context(), iconID); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]string{"message": "comment icon deleted successfully"})
}
