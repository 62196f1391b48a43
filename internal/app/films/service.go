package films

import (
	"context"
	"errors"

	"cinelike/internal/store"
)

// ErrInvalidLimit indicates a negative result limit.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Store defines persistence operations required for catalog listing.
type Store interface {
	ListFilms(ctx context.Context, filter store.FilmFilter) ([]store.Film, error)
}

// Service describes catalog operations used by HTTP handlers.
type Service interface {
	List(ctx context.Context, filter store.FilmFilter) ([]store.Film, error)
}

type service struct {
	store Store
}

// New constructs a films Service backed by the given store.
func New(st Store) Service {
	return &service{store: st}
}

func (s *service) List(ctx context.Context, filter store.FilmFilter) ([]store.Film, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Limit < 0 {
		return nil, ErrInvalidLimit
	}
	return s.store.ListFilms(ctx, filter)
}
