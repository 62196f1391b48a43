package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownTitle is stored for films first seen without a title.
const UnknownTitle = "Unknown Title"

const maxFilmListLimit = 200

// Film is a catalog entry persisted under its canonical id.
type Film struct {
	ID                string    `json:"id"`
	ExternalCatalogID *int64    `json:"externalCatalogId,omitempty"`
	Title             string    `json:"title"`
	Director          *string   `json:"director"`
	Genre             *string   `json:"genre"`
	ImageURL          *string   `json:"imageUrl"`
	Year              *int      `json:"year"`
	CreatedAt         time.Time `json:"createdAt"`
}

// FilmMetadata carries caller-supplied catalog data used to materialize or
// backfill a film row. Nil fields are unknown.
type FilmMetadata struct {
	ExternalCatalogID *int64
	Title             *string
	Director          *string
	Genre             *string
	ImageURL          *string
	Year              *int
}

// FilmFilter narrows ListFilms.
type FilmFilter struct {
	Genre string
	Query string
	Limit int
}

const (
	selectFilmIDByExternalIDQuery = `
		SELECT id
		FROM films
		WHERE tmdb_id = $1
		LIMIT 1`

	selectFilmForUpdateQuery = `
		SELECT id, tmdb_id, title, director, genre, image_url, year, created_at
		FROM films
		WHERE id = $1
		FOR UPDATE`

	insertFilmQuery = `
		INSERT INTO films (id, tmdb_id, title, director, genre, image_url, year)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	updateFilmQuery = `
		UPDATE films
		SET tmdb_id = $2, title = $3, director = $4, genre = $5, image_url = $6, year = $7, updated_at = NOW()
		WHERE id = $1`

	countFilmsQuery = `SELECT COUNT(*) FROM films`

	selectFilmsQuery = `
		SELECT id, tmdb_id, title, director, genre, image_url, year, created_at
		FROM films`
)

// ResolveFilmID maps the caller's film identifier to the canonical persisted
// id. When externalID names an existing film, that film's id wins; otherwise
// filmID is canonical. It never writes.
func (s *Store) ResolveFilmID(ctx context.Context, filmID string, externalID *int64) (string, error) {
	return resolveFilmID(ctx, s.db, filmID, externalID)
}

func resolveFilmID(ctx context.Context, q querier, filmID string, externalID *int64) (string, error) {
	if externalID == nil {
		return filmID, nil
	}

	var id string
	err := q.QueryRowContext(ctx, selectFilmIDByExternalIDQuery, *externalID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return filmID, nil
		}
		return "", fmt.Errorf("resolve film by external id: %w", err)
	}
	return id, nil
}

// ensureFilm creates the film row for id when absent, or backfills fields the
// stored row is missing. The row stays locked until the transaction ends.
func ensureFilm(ctx context.Context, tx *sql.Tx, id string, meta FilmMetadata) (Film, error) {
	film, err := lockFilm(ctx, tx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created := newFilm(id, meta)
		inserted, err := insertFilm(ctx, tx, created)
		if err != nil {
			return Film{}, err
		}
		if inserted {
			return created, nil
		}
		// Another transaction created it between our read and insert.
		film, err = lockFilm(ctx, tx, id)
		if err != nil {
			return Film{}, fmt.Errorf("reload film: %w", err)
		}
	case err != nil:
		return Film{}, fmt.Errorf("lock film: %w", err)
	}

	merged, changed := mergeFilm(film, meta)
	if !changed {
		return film, nil
	}

	if _, err := tx.ExecContext(ctx, updateFilmQuery,
		merged.ID, merged.ExternalCatalogID, merged.Title, merged.Director, merged.Genre, merged.ImageURL, merged.Year,
	); err != nil {
		return Film{}, fmt.Errorf("backfill film: %w", err)
	}
	return merged, nil
}

func lockFilm(ctx context.Context, q querier, id string) (Film, error) {
	return scanFilm(q.QueryRowContext(ctx, selectFilmForUpdateQuery, id))
}

func insertFilm(ctx context.Context, q querier, film Film) (bool, error) {
	res, err := q.ExecContext(ctx, insertFilmQuery,
		film.ID, film.ExternalCatalogID, film.Title, film.Director, film.Genre, film.ImageURL, film.Year,
	)
	if err != nil {
		return false, fmt.Errorf("insert film: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func newFilm(id string, meta FilmMetadata) Film {
	film := Film{
		ID:                id,
		ExternalCatalogID: meta.ExternalCatalogID,
		Title:             UnknownTitle,
		Director:          meta.Director,
		Genre:             meta.Genre,
		ImageURL:          meta.ImageURL,
		Year:              meta.Year,
	}
	if meta.Title != nil && strings.TrimSpace(*meta.Title) != "" {
		film.Title = *meta.Title
	}
	return film
}

// mergeFilm fills only what existing lacks; stored values always win. A
// sentinel title counts as missing.
func mergeFilm(existing Film, incoming FilmMetadata) (Film, bool) {
	merged := existing
	changed := false

	if merged.ExternalCatalogID == nil && incoming.ExternalCatalogID != nil {
		merged.ExternalCatalogID = incoming.ExternalCatalogID
		changed = true
	}
	if merged.Title == UnknownTitle && incoming.Title != nil {
		if title := strings.TrimSpace(*incoming.Title); title != "" && title != UnknownTitle {
			merged.Title = *incoming.Title
			changed = true
		}
	}
	if merged.Director == nil && incoming.Director != nil {
		merged.Director = incoming.Director
		changed = true
	}
	if merged.Genre == nil && incoming.Genre != nil {
		merged.Genre = incoming.Genre
		changed = true
	}
	if merged.ImageURL == nil && incoming.ImageURL != nil {
		merged.ImageURL = incoming.ImageURL
		changed = true
	}
	if merged.Year == nil && incoming.Year != nil {
		merged.Year = incoming.Year
		changed = true
	}

	return merged, changed
}

// likeEscaper quotes LIKE metacharacters using Postgres' default escape
// character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ListFilms returns films matching filter, newest first.
func (s *Store) ListFilms(ctx context.Context, filter FilmFilter) ([]Film, error) {
	query := selectFilmsQuery

	var (
		clauses []string
		args    []any
	)

	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		args = append(args, genre)
		clauses = append(clauses, fmt.Sprintf("LOWER(genre) = LOWER($%d)", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR director ILIKE $%d OR genre ILIKE $%d)", n, n, n))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > maxFilmListLimit {
			limit = maxFilmListLimit
		}
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select films: %w", err)
	}
	defer rows.Close()

	films := []Film{}
	for rows.Next() {
		film, err := scanFilm(rows)
		if err != nil {
			return nil, err
		}
		films = append(films, film)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate films: %w", err)
	}

	return films, nil
}

// SeedFilms inserts films when the catalog is empty. It reports how many rows
// were written.
func (s *Store) SeedFilms(ctx context.Context, films []Film) (int, error) {
	var seeded int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, countFilmsQuery).Scan(&count); err != nil {
			return fmt.Errorf("count films: %w", err)
		}
		if count > 0 {
			return nil
		}

		for _, film := range films {
			if err := validateFilmID(film.ID); err != nil {
				return err
			}
			if strings.TrimSpace(film.Title) == "" {
				film.Title = UnknownTitle
			}
			inserted, err := insertFilm(ctx, tx, film)
			if err != nil {
				return fmt.Errorf("seed film %q: %w", film.ID, err)
			}
			if inserted {
				seeded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seeded, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilm(scanner rowScanner) (Film, error) {
	var (
		film       Film
		externalID sql.NullInt64
		director   sql.NullString
		genre      sql.NullString
		imageURL   sql.NullString
		year       sql.NullInt32
	)

	if err := scanner.Scan(&film.ID, &externalID, &film.Title, &director, &genre, &imageURL, &year, &film.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Film{}, err
		}
		return Film{}, fmt.Errorf("scan film: %w", err)
	}

	if externalID.Valid {
		film.ExternalCatalogID = &externalID.Int64
	}
	film.Director = nullStringPtr(director)
	film.Genre = nullStringPtr(genre)
	film.ImageURL = nullStringPtr(imageURL)
	if year.Valid {
		y := int(year.Int32)
		film.Year = &y
	}

	return film, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
