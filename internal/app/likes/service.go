package likes

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"cinelike/internal/logging"
	"cinelike/internal/metrics"
	"cinelike/internal/store"
)

const (
	defaultSyncConcurrency = 4
	maxFilmIDLength        = 255
)

var (
	// ErrUnauthenticated indicates the call carries no user identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports the first constraint a request violated.
type ValidationError struct {
	Field string
	Rule  string
	Param string
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field, e.Param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field, e.Param)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", e.Field, e.Param)
	case "lte":
		return fmt.Sprintf("%s must be at most %s", e.Field, e.Param)
	default:
		return fmt.Sprintf("%s is invalid", e.Field)
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ToggleRequest names the film to toggle and carries optional catalog
// metadata used when the film is first stored.
type ToggleRequest struct {
	FilmID            string  `json:"filmId" validate:"required,max=255"`
	ExternalCatalogID *int64  `json:"externalCatalogId" validate:"omitempty,gt=0"`
	Title             *string `json:"title" validate:"omitempty,max=500"`
	Director          *string `json:"director" validate:"omitempty,max=255"`
	Genre             *string `json:"genre" validate:"omitempty,max=100"`
	ImageURL          *string `json:"imageUrl" validate:"omitempty,max=2048"`
	Year              *int    `json:"year" validate:"omitempty,gte=1800,lte=2200"`
}

// SyncResult summarizes one anonymous-interaction merge. It is informational
// only; per-item failures never fail the call.
type SyncResult struct {
	Requested int  `json:"requested"`
	Created   int  `json:"created"`
	Existing  int  `json:"existing"`
	Failed    int  `json:"failed"`
	Skipped   bool `json:"skipped"`
}

// Store defines persistence operations required for like workflows.
type Store interface {
	ToggleLike(ctx context.Context, userID, filmID string, meta store.FilmMetadata) (bool, error)
	EnsureLike(ctx context.Context, userID, filmID string, lookupExternalID *int64) (bool, error)
	LikedFilms(ctx context.Context, userID string) ([]store.LikedFilm, error)
}

// SyncGuard suppresses replays of an identical sync request. Invalidate is
// called whenever a user's likes change so that no earlier claim hides the
// next sync.
type SyncGuard interface {
	Acquire(ctx context.Context, userID string, filmIDs []string) (string, bool)
	Release(ctx context.Context, token string)
	Invalidate(ctx context.Context, userID string)
}

// Service describes high level like operations used by HTTP handlers.
type Service interface {
	Toggle(ctx context.Context, userID string, req ToggleRequest) (bool, error)
	SyncOnAuthentication(ctx context.Context, userID string, filmIDs []string) (SyncResult, error)
	LikedFilms(ctx context.Context, userID string) ([]store.LikedFilm, error)
}

// Config tunes the service. Zero values pick defaults.
type Config struct {
	Guard           SyncGuard
	SyncConcurrency int
}

type service struct {
	store       Store
	guard       SyncGuard
	concurrency int
	validate    *validator.Validate
}

// New constructs a likes Service backed by the given store.
func New(st Store, cfg Config) Service {
	concurrency := cfg.SyncConcurrency
	if concurrency <= 0 {
		concurrency = defaultSyncConcurrency
	}
	return &service{
		store:       st,
		guard:       cfg.Guard,
		concurrency: concurrency,
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func (s *service) Toggle(ctx context.Context, userID string, req ToggleRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrUnauthenticated
	}

	req.FilmID = strings.TrimSpace(req.FilmID)
	if err := s.validateRequest(req); err != nil {
		return false, err
	}

	liked, err := s.store.ToggleLike(ctx, userID, req.FilmID, store.FilmMetadata{
		ExternalCatalogID: req.ExternalCatalogID,
		Title:             req.Title,
		Director:          req.Director,
		Genre:             req.Genre,
		ImageURL:          req.ImageURL,
		Year:              req.Year,
	})
	if err != nil {
		metrics.LikeTogglesTotal.WithLabelValues(metrics.ResultError).Inc()
		if errors.Is(err, store.ErrInvalidFilmID) {
			return false, &ValidationError{Field: "filmId", Rule: "invalid"}
		}
		return false, fmt.Errorf("toggle like: %w", err)
	}

	if s.guard != nil {
		s.guard.Invalidate(ctx, userID)
	}
	if liked {
		metrics.LikeTogglesTotal.WithLabelValues(metrics.ResultLiked).Inc()
	} else {
		metrics.LikeTogglesTotal.WithLabelValues(metrics.ResultUnliked).Inc()
	}
	return liked, nil
}

func (s *service) validateRequest(req ToggleRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		return &ValidationError{Field: first.Field(), Rule: first.Tag(), Param: first.Param()}
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// SyncOnAuthentication merges a visitor's locally liked film ids into
// userID's likes. Each id is ensured independently; failures are logged and
// counted but never returned.
func (s *service) SyncOnAuthentication(ctx context.Context, userID string, filmIDs []string) (SyncResult, error) {
	if err := ctx.Err(); err != nil {
		return SyncResult{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SyncResult{}, ErrUnauthenticated
	}

	ids, rejected := normalizeFilmIDs(filmIDs)
	result := SyncResult{Requested: len(ids) + len(rejected), Failed: len(rejected)}

	logger := logging.FromContext(ctx)
	for _, id := range rejected {
		logger.Warn().Str("film_id", id).Msg("skipping invalid anonymous film id")
		metrics.SyncItemsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
	}
	if len(ids) == 0 {
		return result, nil
	}

	var token string
	if s.guard != nil {
		var admitted bool
		if token, admitted = s.guard.Acquire(ctx, userID, ids); !admitted {
			metrics.SyncRunsSkippedTotal.Inc()
			logger.Info().Int("films", len(ids)).Msg("anonymous sync already applied recently")
			result.Skipped = true
			return result, nil
		}
	}

	var created, existing, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := s.store.EnsureLike(ctx, userID, id, numericCatalogID(id))
			switch {
			case err != nil:
				failed.Add(1)
				metrics.SyncItemsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
				logger.Warn().Err(err).Str("film_id", id).Msg("failed to merge anonymous like")
			case ok:
				created.Add(1)
				metrics.SyncItemsTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
			default:
				existing.Add(1)
				metrics.SyncItemsTotal.WithLabelValues(metrics.OutcomeExisted).Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Created = int(created.Load())
	result.Existing = int(existing.Load())
	result.Failed += int(failed.Load())

	// A partially failed run may be retried by the client.
	if failed.Load() > 0 && s.guard != nil {
		s.guard.Release(ctx, token)
	}

	logger.Info().
		Int("requested", result.Requested).
		Int("created", result.Created).
		Int("existing", result.Existing).
		Int("failed", result.Failed).
		Msg("merged anonymous likes")

	return result, nil
}

func (s *service) LikedFilms(ctx context.Context, userID string) ([]store.LikedFilm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.store.LikedFilms(ctx, userID)
}

// normalizeFilmIDs trims and de-duplicates ids, preserving first-seen order.
// Empty and oversized ids are returned separately.
func normalizeFilmIDs(filmIDs []string) (valid, rejected []string) {
	seen := make(map[string]struct{}, len(filmIDs))
	for _, raw := range filmIDs {
		id := strings.TrimSpace(raw)
		if id == "" || len(id) > maxFilmIDLength {
			rejected = append(rejected, raw)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	return valid, rejected
}

// numericCatalogID treats a purely numeric id as a possible external catalog
// id, since visitors may have liked a film before it was stored.
func numericCatalogID(id string) *int64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
