package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"cinelike/internal/app/films"
	"cinelike/internal/logging"
	"cinelike/internal/store"
)

func (s *Server) handleListFilms(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.FilmFilter{
		Genre: query.Get("genre"),
		Query: query.Get("q"),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, films.ErrInvalidLimit.Error())
			return
		}
		filter.Limit = limit
	}

	result, err := s.films.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, films.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(r.Context()).Error().Err(err).Msg("list films failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch films")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
