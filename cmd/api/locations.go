package main

import (
	"errors"
	"net/http"

	"acessolivre/internal/domain/locations"
	"acessolivre/internal/places"
	"acessolivre/internal/params"
)

type CreateLocationPayload struct {
	Name        string  `json:"name" validate:"required,notblank,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Top         float64 `json:"top"`
	Left        float64 `json:"left"`
	ItemIDs     []int64 `json:"accessibility_item_ids" validate:"omitempty,dive,gt=0"`
}

type UpdateLocationPayload struct {
	Name        *string  `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Top         *float64 `json:"top"`
	Left        *float64 `json:"left"`
	ItemIDs     *[]int64 `json:"accessibility_item_ids"`
}

type locationListResponse struct {
	Locations []places.LocationView `json:"locations"`
}

type itemListResponse struct {
	Items []places.ItemView `json:"accessibility_items"`
}

func (app *application) listLocationsHandler(w http.ResponseWriter, r *http.Request) {
	window := params.ParseWindow(r.URL.Query(), places.DefaultListLimit, places.MaxListLimit)

	ls, err := app.places.ListLocations(r.Context(), window.Skip, window.Limit)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, locationListResponse{Locations: ls}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getLocationHandler(w http.ResponseWriter, r *http.Request) {
	locationID, err := idParam(r, "locationID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	l, err := app.places.GetLocation(r.Context(), locationID)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, l); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) createLocationHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateLocationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	l, err := app.places.CreateLocation(r.Context(), places.CreateInput{
		Name:        payload.Name,
		Description: payload.Description,
		Top:         payload.Top,
		Left:        payload.Left,
		ItemIDs:     payload.ItemIDs,
	})
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, l); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) updateLocationHandler(w http.ResponseWriter, r *http.Request) {
	locationID, err := idParam(r, "locationID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload UpdateLocationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	l, err := app.places.UpdateLocation(r.Context(), locationID, locations.Patch{
		Name:        payload.Name,
		Description: payload.Description,
		Top:         payload.Top,
		Left:        payload.Left,
		ItemIDs:     payload.ItemIDs,
	})
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, l); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) deleteLocationHandler(w http.ResponseWriter, r *http.Request) {
	locationID, err := idParam(r, "locationID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if _, err := app.places.DeleteLocation(r.Context(), locationID); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]string{"message": "location deleted successfully"})
}

// uploadLocationImagesHandler appends the "images" files of a multipart form
// to the location gallery.
func (app *application) uploadLocationImagesHandler(w http.ResponseWriter, r *http.Request) {
	locationID, err := idParam(r, "locationID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.parseForm(w, r, "", nil); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	images, closeImages, err := formFiles(r, "images", maxImages)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer closeImages()

	l, err := app.places.AddImages(r.Context(), locationID, images)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, l); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := app.places.ListItems(r.Context())
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, itemListResponse{Items: items}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := idParam(r, "itemID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	item, err := app.places.GetItem(r.Context(), itemID)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, item); err != nil {
		app.internalServerError(w, r, err)
	}
}

// createItemHandler expects a multipart form with "name" and an "icon" file.
func (app *application) createItemHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.parseForm(w, r, "", nil); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	icon, closeIcon, ok, err := formFile(r, "icon")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	defer closeIcon()
	if !ok {
		app.badRequestResponse(w, r, errors.New("icon is required"))
		return
	}

	item, err := app.places.CreateItem(r.Context(), r.FormValue("name"), icon)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, item); err != nil {
		app.internalServerError(w, r, err)
	}
}
