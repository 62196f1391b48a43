package films

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinelike/internal/store"
)

type stubStore struct {
	got   store.FilmFilter
	films []store.Film
}

func (s *stubStore) ListFilms(_ context.Context, filter store.FilmFilter) ([]store.Film, error) {
	s.got = filter
	return s.films, nil
}

func TestListPassesFilter(t *testing.T) {
	st := &stubStore{films: []store.Film{{ID: "f1", Title: "Stalker"}}}
	svc := New(st)

	films, err := svc.List(context.Background(), store.FilmFilter{Genre: "drama", Query: "tark", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, st.films, films)
	assert.Equal(t, store.FilmFilter{Genre: "drama", Query: "tark", Limit: 10}, st.got)
}

func TestListRejectsNegativeLimit(t *testing.T) {
	_, err := New(&stubStore{}).List(context.Background(), store.FilmFilter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
