package httpapi

import (
	"errors"
	"net/http"

	"cinelike/internal/app/likes"
	"cinelike/internal/auth"
	"cinelike/internal/logging"
)

const (
	msgUserIDRequired = "User ID required"
	msgLikeFailed     = "Failed to like film"
	msgSyncFailed     = "Failed to sync anonymous data"
	msgLikesFailed    = "Failed to fetch liked films"
)

type likeRequest struct {
	FilmID            string  `json:"filmId"`
	ExternalCatalogID *int64  `json:"externalCatalogId"`
	TmdbID            *int64  `json:"tmdbId"`
	Title             *string `json:"title"`
	Director          *string `json:"director"`
	Genre             *string `json:"genre"`
	ImageURL          *string `json:"imageUrl"`
	Year              *int    `json:"year"`
}

// toggleRequest maps the wire body onto the service request; the legacy
// tmdbId field is used only when externalCatalogId is absent.
func (req likeRequest) toggleRequest() likes.ToggleRequest {
	externalID := req.ExternalCatalogID
	if externalID == nil {
		externalID = req.TmdbID
	}
	return likes.ToggleRequest{
		FilmID:            req.FilmID,
		ExternalCatalogID: externalID,
		Title:             req.Title,
		Director:          req.Director,
		Genre:             req.Genre,
		ImageURL:          req.ImageURL,
		Year:              req.Year,
	}
}

type likeResponse struct {
	Liked bool `json:"liked"`
}

type syncRequest struct {
	FilmLikes *[]string `json:"filmLikes"`
	// Preferences is accepted for forward compatibility and ignored.
	Preferences map[string]any `json:"preferences,omitempty"`
}

type syncResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleLikeFilm(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, msgUserIDRequired)
		return
	}

	var req likeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	liked, err := s.likes.Toggle(r.Context(), userID, req.toggleRequest())
	if err != nil {
		switch {
		case errors.Is(err, likes.ErrUnauthenticated):
			writeError(w, http.StatusUnauthorized, msgUserIDRequired)
		case errors.Is(err, likes.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logging.FromContext(r.Context()).Error().Err(err).Str("film_id", req.FilmID).Msg("film like failed")
			writeError(w, http.StatusInternalServerError, msgLikeFailed)
		}
		return
	}

	writeJSON(w, http.StatusOK, likeResponse{Liked: liked})
}

func (s *Server) handleSyncAnonymous(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, msgUserIDRequired)
		return
	}

	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.FilmLikes == nil {
		writeError(w, http.StatusBadRequest, "filmLikes is required")
		return
	}

	if _, err := s.likes.SyncOnAuthentication(r.Context(), userID, *req.FilmLikes); err != nil {
		if errors.Is(err, likes.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, msgUserIDRequired)
			return
		}
		logging.FromContext(r.Context()).Error().Err(err).Msg("sync anonymous data failed")
		writeError(w, http.StatusInternalServerError, msgSyncFailed)
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{Success: true})
}

func (s *Server) handleLikedFilms(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, msgUserIDRequired)
		return
	}

	liked, err := s.likes.LikedFilms(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("list liked films failed")
		writeError(w, http.StatusInternalServerError, msgLikesFailed)
		return
	}

	writeJSON(w, http.StatusOK, liked)
}
