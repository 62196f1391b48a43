package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cinelike/internal/app/likes"
	"cinelike/internal/store"
)

const maxBodyBytes = 1 << 20

// LikeService captures the like workflows needed by the HTTP handlers.
type LikeService interface {
	Toggle(ctx context.Context, userID string, req likes.ToggleRequest) (bool, error)
	SyncOnAuthentication(ctx context.Context, userID string, filmIDs []string) (likes.SyncResult, error)
	LikedFilms(ctx context.Context, userID string) ([]store.LikedFilm, error)
}

// FilmService describes catalog listing.
type FilmService interface {
	List(ctx context.Context, filter store.FilmFilter) ([]store.Film, error)
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	likes   LikeService
	films   FilmService
	metrics http.Handler
}

// New configures a Server. metricsHandler may be nil to omit /metrics.
func New(likeSvc LikeService, filmSvc FilmService, metricsHandler http.Handler) *Server {
	return &Server{
		likes:   likeSvc,
		films:   filmSvc,
		metrics: metricsHandler,
	}
}

// Routes exposes the HTTP handlers for likes, catalog listing and sync.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	mux.HandleFunc("POST /api/films/like", s.handleLikeFilm)
	mux.HandleFunc("GET /api/films", s.handleListFilms)

	mux.HandleFunc("POST /api/user/sync-anonymous", s.handleSyncAnonymous)
	mux.HandleFunc("GET /api/user/likes", s.handleLikedFilms)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a single JSON object from the request body. The returned
// error message is safe to show to clients.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return fmt.Errorf("%s must be %s", typeErr.Field, jsonTypeName(typeErr.Type.Kind().String()))
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return nil
}

func jsonTypeName(kind string) string {
	switch kind {
	case "string":
		return "a string"
	case "slice", "array":
		return "an array"
	case "bool":
		return "a boolean"
	case "map", "struct", "ptr":
		return "an object"
	default:
		return "a number"
	}
}
