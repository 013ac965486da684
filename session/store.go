package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// ErrRedisUnavailable wraps every transport or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a refresh token has no live entry: it was
// never issued, already rotated, logged out, or expired.
var ErrNotFound = errors.New("refresh session not found")

// ErrUserMismatch is returned by Rotate when the stored owner differs from the
// subject presented by the caller. The entry is left untouched.
var ErrUserMismatch = errors.New("refresh session user mismatch")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// KEYS[1] old entry, KEYS[2] new entry, KEYS[3] user index
// ARGV[1] user id, ARGV[2] new ttl ms, ARGV[3] old hash, ARGV[4] new hash
const rotateScript = `
local owner = redis.call("GET", KEYS[1])
if not owner then
  redis.call("SREM", KEYS[3], ARGV[3])
  return 0
end
if owner ~= ARGV[1] then
  return 1
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("SREM", KEYS[3], ARGV[3])
redis.call("SADD", KEYS[3], ARGV[4])
local idx_ttl = redis.call("PTTL", KEYS[3])
if idx_ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[3], ARGV[2])
end
return 2
`

var rotateLua = redis.NewScript(rotateScript)

// KEYS[1] entry. Returns the previous owner or "".
const deleteScript = `
local owner = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1])
return owner or ""
`

var deleteLua = redis.NewScript(deleteScript)

// Store is a Redis-backed refresh-token registry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "refresh"
	}
	return &Store{redis: client, prefix: prefix}
}

// Hash returns the hex SHA-256 of token, the form used in Redis keys.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) key(hash string) string {
	return s.prefix + ":" + hash
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

func unavailable(op string, err error) error {
	return oops.Code("SESSION_" + op + "_FAILED").
		With("operation", op).
		Wrap(fmt.Errorf("%w: %v", ErrRedisUnavailable, err))
}

// Put records token as issued to userID for ttl.
func (s *Store) Put(ctx context.Context, token, userID string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	hash := Hash(token)
	userKey := s.userKey(userID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(hash), userID, ttl)
		pipe.SAdd(ctx, userKey, hash)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return unavailable("PUT", err)
	}
	return nil
}

// Get returns the user a live token was issued to.
func (s *Store) Get(ctx context.Context, token string) (string, error) {
	userID, err := s.redis.Get(ctx, s.key(Hash(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable("GET", err)
	}
	return userID, nil
}

// Delete removes the entry for token. Deleting an absent entry is not an
// error.
func (s *Store) Delete(ctx context.Context, token string) error {
	hash := Hash(token)
	owner, err := deleteLua.Run(ctx, s.redis, []string{s.key(hash)}).Text()
	if err != nil {
		return unavailable("DELETE", err)
	}
	if owner != "" {
		if err := s.redis.SRem(ctx, s.userKey(owner), hash).Err(); err != nil {
			return unavailable("DELETE", err)
		}
	}
	return nil
}

// Rotate atomically replaces oldToken with newToken for userID. It returns
// ErrNotFound when oldToken has no live entry and ErrUserMismatch when the
// entry belongs to someone else. On any error newToken is not stored.
func (s *Store) Rotate(ctx context.Context, oldToken, userID, newToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}
	oldHash := Hash(oldToken)
	newHash := Hash(newToken)

	status, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(oldHash), s.key(newHash), s.userKey(userID)},
		userID,
		ttl.Milliseconds(),
		oldHash,
		newHash,
	).Int64()
	if err != nil {
		return unavailable("ROTATE", err)
	}

	switch status {
	case rotateStatusRotated:
		return nil
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrUserMismatch
	default:
		return oops.Code("SESSION_ROTATE_FAILED").With("status", status).Errorf("unexpected rotate status")
	}
}

// DeleteAllForUser removes every tracked session of userID.
//
// The deletes run in one MULTI block. A session created concurrently between
// SMEMBERS and EXEC may survive; it still expires with its own TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	hashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, unavailable("REVOKE_ALL", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.key(h))
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			del = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, unavailable("REVOKE_ALL", err)
	}
	if del == nil {
		return 0, nil
	}
	return int(del.Val()), nil
}

// ActiveSessionCount returns how many index entries of userID still have a
// live token.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	hashes, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, unavailable("COUNT", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, s.key(h))
	}
	n, err := s.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("COUNT", err)
	}
	return int(n), nil
}

// Ping checks Redis reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable("PING", err)
	}
	return nil
}
