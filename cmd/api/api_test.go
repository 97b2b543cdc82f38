package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"acessolivre/internal/auth"
	"acessolivre/internal/config"
	"acessolivre/internal/domain/admins"
	"acessolivre/internal/domain/comments"
	"acessolivre/internal/domain/locations"
	"acessolivre/internal/moderation"
	"acessolivre/internal/objectstore"
	"acessolivre/internal/places"
	"acessolivre/internal/ratelimiter"
	"acessolivre/internal/signedurl"
	"acessolivre/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type testApp struct {
	app    *application
	store  *testutil.Store
	files  *testutil.Files
	router http.Handler
}

func newTestApplication(t *testing.T, rl ratelimiter.Config) *testApp {
	t.Helper()

	logger := zap.NewNop().Sugar()
	store := testutil.NewStore()
	files := testutil.NewFiles()
	gw := objectstore.NewGateway(files, logger)
	urls := signedurl.New(gw, logger)

	if rl.TimeFrame == 0 {
		rl.TimeFrame = time.Minute
	}

	app := &application{
		config: &config.Config{
			Env:           "test",
			AuthBasicUser: "ops",
			AuthBasicPass: "secret",
		},
		logger: logger,
		admins: store.Admins(),
		comments: moderation.NewService(moderation.Deps{
			Tx:        store,
			Locations: store.Locations(),
			Comments:  store.Comments(),
			Files:     gw,
			URLs:      urls,
		}),
		places: places.NewService(places.Deps{
			Tx:        store,
			Locations: store.Locations(),
			Files:     gw,
			URLs:      urls,
		}),
		authenticator: auth.NewJWTAuthenticator("test-secret", "acessolivre", time.Hour),
		rateLimiter:   ratelimiter.NewFixedWindowLimiter(rl.RequestsPerTimeFrame, rl.TimeFrame),
		rateLimit:     rl,
	}

	return &testApp{app: app, store: store, files: files, router: app.mount()}
}

func (ta *testApp) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	ta.router.ServeHTTP(rr, req)
	return rr
}

func (ta *testApp) adminToken(t *testing.T) string {
	t.Helper()
	a := &admins.Admin{Email: "admin@acessolivre.org"}
	require.NoError(t, a.Password.Set("correct horse"))
	require.NoError(t, ta.store.Admins().Create(context.Background(), a))

	token, err := ta.app.authenticator.GenerateToken(a.ID)
	require.NoError(t, err)
	return token
}

func (ta *testApp) location(t *testing.T) int64 {
	t.Helper()
	l := &locations.Location{Name: "Restaurante Universitario"}
	require.NoError(t, ta.store.Locations().Create(context.Background(), l))
	return l.ID
}

func (ta *testApp) pendingComment(t *testing.T, locationID int64, rating int) int64 {
	t.Helper()
	c := &comments.Comment{
		UserName:   "Joao",
		Rating:     rating,
		Body:       "Piso tatil ate o balcao",
		LocationID: locationID,
		Status:     comments.StatusPending,
	}
	require.NoError(t, ta.store.Comments().Create(context.Background(), c))
	return c.ID
}

func commentForm(t *testing.T, payload string, images ...[]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("comment", payload))
	for i, img := range images {
		part, err := mw.CreateFormFile("images", "photo"+string(rune('a'+i))+".png")
		require.NoError(t, err)
		_, err = part.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func TestHealthRequiresBasicAuth(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := ta.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.SetBasicAuth("ops", "secret")
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateToken(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	ta.adminToken(t)

	t.Run("valid credentials", func(t *testing.T) {
		body := strings.NewReader(`{"email":"admin@acessolivre.org","password":"correct horse"}`)
		rr := ta.do(t, httptest.NewRequest(http.MethodPost, "/v1/authentication/token", body))
		require.Equal(t, http.StatusCreated, rr.Code)

		var got tokenResponse
		decodeData(t, rr, &got)
		_, err := ta.app.authenticator.ValidateToken(got.Token)
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		body := strings.NewReader(`{"email":"admin@acessolivre.org","password":"wrong"}`)
		rr := ta.do(t, httptest.NewRequest(http.MethodPost, "/v1/authentication/token", body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		body := strings.NewReader(`{"email":"nobody@acessolivre.org","password":"correct horse"}`)
		rr := ta.do(t, httptest.NewRequest(http.MethodPost, "/v1/authentication/token", body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})

	rr := ta.do(t, httptest.NewRequest(http.MethodGet, "/v1/comments/pending", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/comments/pending", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateCommentThenApprove(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	token := ta.adminToken(t)
	locationID := ta.location(t)

	payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":4,"comment":"Banheiro adaptado"}`
	body, contentType := commentForm(t, payload, pngHeader)
	req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
	req.Header.Set("Content-Type", contentType)
	rr := ta.do(t, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created moderation.CommentView
	decodeData(t, rr, &created)
	assert.Equal(t, comments.StatusPending, created.Status)
	require.Len(t, created.Images, 1)
	assert.Len(t, ta.files.Keys(), 1)

	req = httptest.NewRequest(http.MethodPatch, "/v1/comments/"+itoa(created.ID)+"/status",
		strings.NewReader(`{"status":"approved"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result moderation.TransitionResult
	decodeData(t, rr, &result)
	require.NotNil(t, result.Comment)
	assert.Equal(t, comments.StatusApproved, result.Comment.Status)

	loc, ok := ta.store.Location(locationID)
	require.True(t, ok)
	require.NotNil(t, loc.AvgRating)
	assert.InDelta(t, 4.0, *loc.AvgRating, 1e-9)
	assert.Len(t, loc.Images, 1)

	// a second transition is rejected because the comment is no longer pending
	req = httptest.NewRequest(http.MethodPatch, "/v1/comments/"+itoa(created.ID)+"/status",
		strings.NewReader(`{"status":"rejected"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreateCommentValidation(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	locationID := ta.location(t)

	t.Run("rating out of range", func(t *testing.T) {
		payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":6,"comment":"ok"}`
		body, contentType := commentForm(t, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("empty body is accepted", func(t *testing.T) {
		payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":3,"comment":""}`
		body, contentType := commentForm(t, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	})

	t.Run("body over 500 characters", func(t *testing.T) {
		payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":3,"comment":"` + strings.Repeat("a", 501) + `"}`
		body, contentType := commentForm(t, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown location", func(t *testing.T) {
		payload := `{"location_id":9999,"user_name":"Ana","rating":3,"comment":"ok"}`
		body, contentType := commentForm(t, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":3,"comment":"ok"}`
		body, contentType := commentForm(t, payload, []byte("plain text, not a picture"))
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Empty(t, ta.files.Keys())
	})

	t.Run("missing payload", func(t *testing.T) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := ta.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestInvalidStatusIsUnprocessable(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	token := ta.adminToken(t)
	commentID := ta.pendingComment(t, ta.location(t), 3)

	req := httptest.NewRequest(http.MethodPatch, "/v1/comments/"+itoa(commentID)+"/status",
		strings.NewReader(`{"status":"archived"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := ta.do(t, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	c, ok := ta.store.Comment(commentID)
	require.True(t, ok)
	assert.Equal(t, comments.StatusPending, c.Status)
}

func TestDeleteCommentPermission(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	token := ta.adminToken(t)
	commentID := ta.pendingComment(t, ta.location(t), 2)

	rr := ta.do(t, httptest.NewRequest(http.MethodDelete, "/v1/comments/"+itoa(commentID), nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	_, ok := ta.store.Comment(commentID)
	assert.True(t, ok)

	req := httptest.NewRequest(http.MethodDelete, "/v1/comments/"+itoa(commentID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	_, ok = ta.store.Comment(commentID)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodDelete, "/v1/comments/"+itoa(commentID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetCommentNotFound(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})

	rr := ta.do(t, httptest.NewRequest(http.MethodGet, "/v1/comments/42", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ta.do(t, httptest.NewRequest(http.MethodGet, "/v1/comments/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateCommentIsRateLimited(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{RequestsPerTimeFrame: 1, TimeFrame: time.Minute, Enabled: true})
	locationID := ta.location(t)
	payload := `{"location_id":` + itoa(locationID) + `,"user_name":"Ana","rating":5,"comment":"Elevador"}`

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		body, contentType := commentForm(t, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/comments/", body)
		req.Header.Set("Content-Type", contentType)
		rr := ta.do(t, req)
		assert.Equal(t, want, rr.Code, "request %d", i)
	}
}

func TestLocationLifecycle(t *testing.T) {
	ta := newTestApplication(t, ratelimiter.Config{})
	token := ta.adminToken(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/locations/",
		strings.NewReader(`{"name":"Bloco A","description":"Predio de aulas","top":10.5,"left":3}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := ta.do(t, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created places.LocationView
	decodeData(t, rr, &created)
	assert.Equal(t, "Bloco A", created.Name)
	assert.NotNil(t, created.Images)

	rr = ta.do(t, httptest.NewRequest(http.MethodGet, "/v1/locations/"+itoa(created.ID), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPatch, "/v1/locations/"+itoa(created.ID), strings.NewReader(`{"name":"Bloco B"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated places.LocationView
	decodeData(t, rr, &updated)
	assert.Equal(t, "Bloco B", updated.Name)
	assert.Equal(t, "Predio de aulas", updated.Description)

	req = httptest.NewRequest(http.MethodDelete, "/v1/locations/"+itoa(created.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = ta.do(t, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, httptest.NewRequest(http.MethodGet, "/v1/locations/"+itoa(created.ID), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
