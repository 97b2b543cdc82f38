package main

import (
	"errors"
	"net/http"

	"acessolivre/internal/domain/admins"
)

type CreateTokenPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=3,max=72"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	AdminID int64  `json:"admin_id"`
}

// createTokenHandler exchanges administrator credentials for a bearer token.
func (app *application) createTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	admin, err := app.admins.GetByEmail(r.Context(), payload.Email)
	if err != nil {
		switch {
		case errors.Is(err, admins.ErrNotFound):
			app.unauthorizedErrorResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := admin.Password.Compare(payload.Password); err != nil {
		app.unauthorizedErrorResponse(w, r, err)
		return
	}

	token, err := app.authenticator.GenerateToken(admin.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, tokenResponse{Token: token, AdminID: admin.ID}); err != nil {
		app.internalServerError(w, r, err)
	}
}
