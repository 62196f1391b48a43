package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// LikedFilm is a film together with the time the user liked it.
type LikedFilm struct {
	Film
	LikedAt time.Time `json:"likedAt"`
}

// NormalizeResult reports the effect of NormalizeLikeIdentities.
type NormalizeResult struct {
	Dropped   int64
	Repointed int64
}

const (
	selectLikeIDsQuery = `
		SELECT id
		FROM user_film_likes
		WHERE user_id = $1 AND film_id = ANY($2)`

	deleteLikesQuery = `
		DELETE FROM user_film_likes
		WHERE id = ANY($1)`

	insertLikeQuery = `
		INSERT INTO user_film_likes (id, user_id, film_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, film_id) DO NOTHING`

	selectLikedFilmsQuery = `
		SELECT f.id, f.tmdb_id, f.title, f.director, f.genre, f.image_url, f.year, f.created_at, l.created_at
		FROM user_film_likes l
		JOIN films f ON f.id = l.film_id
		WHERE l.user_id = $1
		ORDER BY l.created_at DESC, f.id ASC`

	dropShadowedLikesQuery = `
		DELETE FROM user_film_likes l
		USING films f, user_film_likes c
		WHERE f.tmdb_id IS NOT NULL
			AND l.film_id = f.tmdb_id::text
			AND l.film_id <> f.id
			AND c.user_id = l.user_id
			AND c.film_id = f.id`

	repointLikesQuery = `
		UPDATE user_film_likes l
		SET film_id = f.id
		FROM films f
		WHERE f.tmdb_id IS NOT NULL
			AND l.film_id = f.tmdb_id::text
			AND l.film_id <> f.id`
)

// ToggleLike flips whether userID likes the film named by filmID and
// meta.ExternalCatalogID, and reports the resulting state. Liking a film not
// yet stored materializes it from meta. The read-check-write sequence runs in
// one transaction.
func (s *Store) ToggleLike(ctx context.Context, userID, filmID string, meta FilmMetadata) (bool, error) {
	if userID == "" {
		return false, ErrInvalidUserID
	}
	if err := validateFilmID(filmID); err != nil {
		return false, err
	}

	var liked bool
	err := withConflictRetry(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			canonicalID, err := resolveFilmID(ctx, tx, filmID, meta.ExternalCatalogID)
			if err != nil {
				return err
			}

			// Historical rows may sit under the pre-reconciliation id.
			existing, err := findLikeIDs(ctx, tx, userID, candidateIDs(canonicalID, filmID))
			if err != nil {
				return err
			}

			if len(existing) > 0 {
				// Zero rows affected means a concurrent unlike got there
				// first; the outcome is the same.
				if _, err := tx.ExecContext(ctx, deleteLikesQuery, pq.Array(existing)); err != nil {
					return fmt.Errorf("delete like: %w", err)
				}
				liked = false
				return nil
			}

			if _, err := ensureFilm(ctx, tx, canonicalID, meta); err != nil {
				return err
			}
			// A concurrent toggle that already inserted this pair wins; its
			// outcome is "liked" as well.
			if _, err := insertLike(ctx, tx, userID, canonicalID); err != nil {
				return err
			}
			liked = true
			return nil
		})
	})
	if err != nil {
		return false, err
	}

	return liked, nil
}

// EnsureLike records that userID likes filmID unless an equivalent like
// already exists. It never removes a like. lookupExternalID, when set, is only
// used to find an existing film stored under that catalog id.
func (s *Store) EnsureLike(ctx context.Context, userID, filmID string, lookupExternalID *int64) (bool, error) {
	if userID == "" {
		return false, ErrInvalidUserID
	}
	if err := validateFilmID(filmID); err != nil {
		return false, err
	}

	var created bool
	err := withConflictRetry(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			canonicalID, err := resolveFilmID(ctx, tx, filmID, lookupExternalID)
			if err != nil {
				return err
			}

			existing, err := findLikeIDs(ctx, tx, userID, candidateIDs(canonicalID, filmID))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				created = false
				return nil
			}

			if _, err := ensureFilm(ctx, tx, canonicalID, FilmMetadata{}); err != nil {
				return err
			}
			created, err = insertLike(ctx, tx, userID, canonicalID)
			return err
		})
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

// LikedFilms returns the films userID likes, most recent first.
func (s *Store) LikedFilms(ctx context.Context, userID string) ([]LikedFilm, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	rows, err := s.db.QueryContext(ctx, selectLikedFilmsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("select liked films: %w", err)
	}
	defer rows.Close()

	liked := []LikedFilm{}
	for rows.Next() {
		var lf LikedFilm
		film, err := scanFilm(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &lf.LikedAt)...)
		}))
		if err != nil {
			return nil, err
		}
		lf.Film = film
		liked = append(liked, lf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liked films: %w", err)
	}

	return liked, nil
}

// NormalizeLikeIdentities moves likes stored under a bare catalog id onto the
// canonical id of the film carrying that catalog id. A like that would
// duplicate an existing canonical like is dropped instead.
func (s *Store) NormalizeLikeIdentities(ctx context.Context) (NormalizeResult, error) {
	var result NormalizeResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, dropShadowedLikesQuery)
		if err != nil {
			return fmt.Errorf("drop shadowed likes: %w", err)
		}
		if result.Dropped, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		res, err = tx.ExecContext(ctx, repointLikesQuery)
		if err != nil {
			return fmt.Errorf("repoint likes: %w", err)
		}
		if result.Repointed, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return NormalizeResult{}, err
	}
	return result, nil
}

func findLikeIDs(ctx context.Context, q querier, userID string, filmIDs []string) ([]string, error) {
	rows, err := q.QueryContext(ctx, selectLikeIDsQuery, userID, pq.Array(filmIDs))
	if err != nil {
		return nil, fmt.Errorf("find like: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return ids, nil
}

func insertLike(ctx context.Context, q querier, userID, filmID string) (bool, error) {
	res, err := q.ExecContext(ctx, insertLikeQuery, uuid.NewString(), userID, filmID)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
