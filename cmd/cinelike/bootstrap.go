package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"cinelike/internal/store"
)

func demoFilms() []store.Film {
	film := func(id string, catalogID int64, title, director, genre string, year int) store.Film {
		return store.Film{
			ID:                id,
			ExternalCatalogID: &catalogID,
			Title:             title,
			Director:          &director,
			Genre:             &genre,
			Year:              &year,
		}
	}

	return []store.Film{
		film("tt0068646", 238, "The Godfather", "Francis Ford Coppola", "Crime", 1972),
		film("tt0110912", 680, "Pulp Fiction", "Quentin Tarantino", "Crime", 1994),
		film("tt0245429", 129, "Spirited Away", "Hayao Miyazaki", "Animation", 2001),
		film("tt6751668", 496243, "Parasite", "Bong Joon-ho", "Thriller", 2019),
		film("tt1375666", 27205, "Inception", "Christopher Nolan", "Science Fiction", 2010),
	}
}

func bootstrapDemoFilms(ctx context.Context, dataStore *store.Store) error {
	seeded, err := dataStore.SeedFilms(ctx, demoFilms())
	if err != nil {
		return fmt.Errorf("bootstrap demo films: %w", err)
	}
	if seeded > 0 {
		log.Info().Int("films", seeded).Msg("seeded demo catalog")
	}
	return nil
}
