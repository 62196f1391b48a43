package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinelike/internal/app/films"
	"cinelike/internal/app/likes"
	"cinelike/internal/auth"
	"cinelike/internal/http/middleware"
	"cinelike/internal/store"
)

type stubLikeService struct {
	liked     bool
	toggleErr error
	lastUser  string
	lastReq   likes.ToggleRequest

	syncErr    error
	lastSynced []string
	syncCalls  int

	likedFilms []store.LikedFilm
	likedErr   error
}

func (s *stubLikeService) Toggle(ctx context.Context, userID string, req likes.ToggleRequest) (bool, error) {
	s.lastUser = userID
	s.lastReq = req
	if s.toggleErr != nil {
		return false, s.toggleErr
	}
	return s.liked, nil
}

func (s *stubLikeService) SyncOnAuthentication(ctx context.Context, userID string, filmIDs []string) (likes.SyncResult, error) {
	s.lastUser = userID
	s.lastSynced = filmIDs
	s.syncCalls++
	if s.syncErr != nil {
		return likes.SyncResult{}, s.syncErr
	}
	return likes.SyncResult{Requested: len(filmIDs)}, nil
}

func (s *stubLikeService) LikedFilms(ctx context.Context, userID string) ([]store.LikedFilm, error) {
	s.lastUser = userID
	if s.likedErr != nil {
		return nil, s.likedErr
	}
	return s.likedFilms, nil
}

type stubFilmService struct {
	films     []store.Film
	err       error
	lastQuery store.FilmFilter
}

func (s *stubFilmService) List(ctx context.Context, filter store.FilmFilter) ([]store.Film, error) {
	s.lastQuery = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.films, nil
}

// newTestHandler serves the routes behind header-based identity, as the
// service does when a trusted front end sets X-User-ID.
func newTestHandler(likeSvc LikeService, filmSvc FilmService) http.Handler {
	srv := New(likeSvc, filmSvc, nil)
	return middleware.Identity(auth.NewAuthenticator(nil, true))(srv.Routes())
}

func doRequest(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(auth.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestLikeFilmRequiresUser(t *testing.T) {
	svc := &stubLikeService{}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/films/like", "", map[string]any{"filmId": "f1"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != msgUserIDRequired {
		t.Fatalf("unexpected error message %q", msg)
	}
	if svc.lastUser != "" {
		t.Fatalf("service should not be called")
	}
}

func TestLikeFilmSuccess(t *testing.T) {
	svc := &stubLikeService{liked: true}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/films/like", "user-1", map[string]any{
		"filmId":   "tt0001",
		"tmdbId":   42,
		"title":    "Real Title",
		"director": nil,
		"year":     1999,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp likeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Liked {
		t.Fatalf("expected liked=true")
	}

	if svc.lastUser != "user-1" {
		t.Fatalf("expected user-1, got %q", svc.lastUser)
	}
	if svc.lastReq.FilmID != "tt0001" || svc.lastReq.ExternalCatalogID == nil || *svc.lastReq.ExternalCatalogID != 42 {
		t.Fatalf("unexpected request forwarded: %+v", svc.lastReq)
	}
	if svc.lastReq.Director != nil {
		t.Fatalf("expected nil director")
	}
	if svc.lastReq.Year == nil || *svc.lastReq.Year != 1999 {
		t.Fatalf("expected year 1999")
	}
}

func TestLikeFilmPrefersExternalCatalogID(t *testing.T) {
	svc := &stubLikeService{}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/films/like", "user-1", map[string]any{
		"filmId":            "f1",
		"externalCatalogId": 7,
		"tmdbId":            9,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := svc.lastReq.ExternalCatalogID; got == nil || *got != 7 {
		t.Fatalf("expected externalCatalogId 7, got %v", got)
	}
}

func TestLikeFilmBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		svcErr  error
		wantMsg string
	}{
		{name: "malformed json", body: "{", wantMsg: "invalid JSON body"},
		{name: "empty body", body: nil, wantMsg: "request body is required"},
		{name: "wrong type", body: `{"filmId":"f1","year":"nineteen"}`, wantMsg: "year must be a number"},
		{name: "service validation", body: map[string]any{"filmId": ""}, svcErr: &likes.ValidationError{Field: "filmId", Rule: "required"}, wantMsg: "filmId is required"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(&stubLikeService{toggleErr: tc.svcErr}, &stubFilmService{})
			rec := doRequest(t, h, http.MethodPost, "/api/films/like", "user-1", tc.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if msg := decodeError(t, rec); msg != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, msg)
			}
		})
	}
}

func TestLikeFilmInternalError(t *testing.T) {
	h := newTestHandler(&stubLikeService{toggleErr: errors.New("db down")}, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/films/like", "user-1", map[string]any{"filmId": "f1"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != msgLikeFailed {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestLikeFilmRejectsGet(t *testing.T) {
	h := newTestHandler(&stubLikeService{}, &stubFilmService{})

	rec := doRequest(t, h, http.MethodGet, "/api/films/like", "user-1", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestSyncAnonymous(t *testing.T) {
	svc := &stubLikeService{}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/user/sync-anonymous", "user-1", map[string]any{
		"filmLikes":   []string{"f1", "f2"},
		"preferences": map[string]any{},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp syncResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success=true")
	}
	if len(svc.lastSynced) != 2 || svc.lastSynced[0] != "f1" || svc.lastSynced[1] != "f2" {
		t.Fatalf("unexpected synced ids %v", svc.lastSynced)
	}
}

func TestSyncAnonymousEmptyList(t *testing.T) {
	svc := &stubLikeService{}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodPost, "/api/user/sync-anonymous", "user-1", `{"filmLikes":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if svc.syncCalls != 1 {
		t.Fatalf("expected one sync call, got %d", svc.syncCalls)
	}
}

func TestSyncAnonymousErrors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       any
		svcErr     error
		wantStatus int
		wantMsg    string
	}{
		{name: "no user", body: `{"filmLikes":[]}`, wantStatus: http.StatusUnauthorized, wantMsg: msgUserIDRequired},
		{name: "missing filmLikes", userID: "user-1", body: `{}`, wantStatus: http.StatusBadRequest, wantMsg: "filmLikes is required"},
		{name: "filmLikes not array", userID: "user-1", body: `{"filmLikes":"f1"}`, wantStatus: http.StatusBadRequest, wantMsg: "filmLikes must be an array"},
		{name: "internal", userID: "user-1", body: `{"filmLikes":["f1"]}`, svcErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantMsg: msgSyncFailed},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(&stubLikeService{syncErr: tc.svcErr}, &stubFilmService{})
			rec := doRequest(t, h, http.MethodPost, "/api/user/sync-anonymous", tc.userID, tc.body)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if msg := decodeError(t, rec); msg != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, msg)
			}
		})
	}
}

func TestLikedFilms(t *testing.T) {
	svc := &stubLikeService{likedFilms: []store.LikedFilm{{Film: store.Film{ID: "f1", Title: "Stalker"}}}}
	h := newTestHandler(svc, &stubFilmService{})

	rec := doRequest(t, h, http.MethodGet, "/api/user/likes", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp []store.LikedFilm
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "f1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/user/likes", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestListFilms(t *testing.T) {
	filmSvc := &stubFilmService{films: []store.Film{{ID: "f1", Title: "Stalker"}}}
	h := newTestHandler(&stubLikeService{}, filmSvc)

	rec := doRequest(t, h, http.MethodGet, "/api/films?genre=Drama&q=tark&limit=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	want := store.FilmFilter{Genre: "Drama", Query: "tark", Limit: 5}
	if filmSvc.lastQuery != want {
		t.Fatalf("expected filter %+v, got %+v", want, filmSvc.lastQuery)
	}

	var resp []store.Film
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Title != "Stalker" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestListFilmsInvalidLimit(t *testing.T) {
	h := newTestHandler(&stubLikeService{}, &stubFilmService{})

	rec := doRequest(t, h, http.MethodGet, "/api/films?limit=-3", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != films.ErrInvalidLimit.Error() {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestListFilmsInternalError(t *testing.T) {
	h := newTestHandler(&stubLikeService{}, &stubFilmService{err: errors.New("db down")})

	rec := doRequest(t, h, http.MethodGet, "/api/films", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubLikeService{}, &stubFilmService{})

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
