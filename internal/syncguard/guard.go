// Package syncguard suppresses replays of identical anonymous-sync requests
// using short-lived Redis keys.
package syncguard

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"cinelike/internal/logging"
)

const (
	keyPrefix    = "sync:"
	initialEpoch = "0"
)

// client is the subset of redis.Cmdable the guard needs.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Guard records recently merged (user, film id set) pairs. Every pair is
// scoped to the user's current epoch; Invalidate starts a new epoch so that
// later syncs are admitted again. A nil Guard, or one without a client,
// admits every request.
type Guard struct {
	client client
	ttl    time.Duration
	now    func() time.Time
}

// New returns a Guard backed by rdb. Passing a nil rdb disables the guard.
func New(rdb *redis.Client, ttl time.Duration) *Guard {
	if rdb == nil {
		return &Guard{ttl: ttl, now: time.Now}
	}
	return &Guard{client: rdb, ttl: ttl, now: time.Now}
}

// Acquire claims the (userID, filmIDs) pair in the user's current epoch. It
// reports false only when an identical request was admitted within the TTL
// and the user's likes have not changed since. The returned token is passed
// to Release. Redis failures admit the request.
func (g *Guard) Acquire(ctx context.Context, userID string, filmIDs []string) (string, bool) {
	if g == nil || g.client == nil {
		return "", true
	}

	logger := logging.FromContext(ctx)
	epoch, err := g.client.Get(ctx, epochKey(userID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		epoch = initialEpoch
	case err != nil:
		logger.Warn().Err(err).Str("user_id", userID).Msg("sync guard unavailable, continuing")
		return "", true
	}

	key := Key(userID, epoch, filmIDs)
	ok, err := g.client.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("sync guard unavailable, continuing")
		return "", true
	}
	return key, ok
}

// Release forgets a claim returned by Acquire so an identical request is
// admitted again.
func (g *Guard) Release(ctx context.Context, token string) {
	if g == nil || g.client == nil || token == "" {
		return
	}

	if err := g.client.Del(ctx, token).Err(); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("key", token).Msg("release sync guard")
	}
}

// Invalidate starts a new epoch for userID, so no earlier claim suppresses
// the next sync. The epoch marker lives as long as the claims it supersedes.
func (g *Guard) Invalidate(ctx context.Context, userID string) {
	if g == nil || g.client == nil {
		return
	}

	epoch := strconv.FormatInt(g.now().UnixNano(), 10)
	if err := g.client.Set(ctx, epochKey(userID), epoch, g.ttl).Err(); err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("user_id", userID).Msg("invalidate sync guard")
	}
}

// Key derives the Redis key for a user, an epoch and an unordered film id set.
func Key(userID, epoch string, filmIDs []string) string {
	sorted := append([]string(nil), filmIDs...)
	sort.Strings(sorted)

	sum := blake2b.Sum256([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, userID, epoch, hex.EncodeToString(sum[:]))
}

func epochKey(userID string) string {
	return keyPrefix + userID + ":epoch"
}
