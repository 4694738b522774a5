package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldID        = "id"
	fieldUserID    = "uid"
	fieldHash      = "th"
	fieldExpiresAt = "exp"
	fieldUsed      = "used"
	fieldRevoked   = "rev"
	fieldCreatedAt = "cat"
	fieldUpdatedAt = "uat"
)

const (
	markStatusNotFound int64 = -1
	markStatusLost     int64 = 0
	markStatusWon      int64 = 1
)

// KEYS[1] record hash. ARGV[1] now (unix ms).
const markUsedScript = `
local used = redis.call("HGET", KEYS[1], "used")
if not used then
  return -1
end
if used == "1" or redis.call("HGET", KEYS[1], "rev") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "used", "1", "uat", ARGV[1])
return 1
`

var markUsedLua = redis.NewScript(markUsedScript)

// KEYS[1] record hash. ARGV[1] set used, ARGV[2] set revoked, ARGV[3] now.
const updateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[1] == "1" then
  redis.call("HSET", KEYS[1], "used", "1")
end
if ARGV[2] == "1" then
  redis.call("HSET", KEYS[1], "rev", "1")
end
redis.call("HSET", KEYS[1], "uat", ARGV[3])
return 1
`

var updateLua = redis.NewScript(updateScript)

// invalidateRetries bounds the optimistic passes of InvalidateAllForUser
// when the user's records keep changing underneath it.
const invalidateRetries = 4

// RedisStore keeps records as Redis hashes with a token-hash index and a
// per-user set. Keys outlive the token by a retention window so replayed
// tokens are still recognised as used.
//
// Every key carries the hash tag {prefix}, so on Redis Cluster a store lives
// in one slot and its transactions never span slots. Scripts only touch the
// keys they declare.
type RedisStore struct {
	redis     redis.UniversalClient
	tag       string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a [RedisStore] under the given key prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "rt"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisStore{
		redis:     rdb,
		tag:       "{" + prefix + "}",
		retention: retention,
		now:       time.Now,
	}
}

// WithClock overrides the store clock.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *RedisStore) recordKey(id string) string { return s.tag + ":r:" + id }

func (s *RedisStore) hashKey(tokenHash string) string { return s.tag + ":h:" + tokenHash }

func (s *RedisStore) userKey(userID string) string { return s.tag + ":u:" + userID }

// Create persists a new record for token.
//
//	Performance: 1 MULTI/EXEC with 5 commands.
func (s *RedisStore) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*Record, error) {
	if userID == "" || token == "" {
		return nil, errors.New("refresh: user id and token are required")
	}
	now := s.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ttl := expiresAt.Sub(now) + s.retention
	if ttl < time.Second {
		ttl = time.Second
	}

	recordKey := s.recordKey(rec.ID)
	userKey := s.userKey(userID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, encodeRecord(rec))
		pipe.PExpire(ctx, recordKey, ttl)
		pipe.Set(ctx, s.hashKey(rec.TokenHash), rec.ID, ttl)
		pipe.SAdd(ctx, userKey, rec.ID)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// FindByToken looks a record up by the hash of token.
func (s *RedisStore) FindByToken(ctx context.Context, token string) (*Record, error) {
	id, err := s.redis.Get(ctx, s.hashKey(internal.HashToken(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.get(ctx, id)
}

func (s *RedisStore) get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeRecord(fields)
}

// Update applies patch to the record with the given ID.
func (s *RedisStore) Update(ctx context.Context, id string, patch Update) (*Record, error) {
	res, err := updateLua.Run(ctx, s.redis, []string{s.recordKey(id)},
		flag(patch.MarkUsed), flag(patch.Revoke), toMillis(s.now())).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res == 0 {
		return nil, ErrNotFound
	}
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// MarkUsed flips the used flag if, and only if, it is still clear.
//
//	Performance: 1 Lua script (HGET + HSET), atomic under concurrent callers.
func (s *RedisStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := markUsedLua.Run(ctx, s.redis, []string{s.recordKey(id)}, toMillis(s.now())).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch res {
	case markStatusWon:
		return true, nil
	case markStatusLost:
		return false, nil
	case markStatusNotFound:
		return false, ErrNotFound
	default:
		return false, fmt.Errorf("%w: unexpected mark status %d", ErrUnavailable, res)
	}
}

// InvalidateAllForUser revokes every live record of userID. The user set and
// every record it names are watched, so a record created or revoked
// concurrently restarts the pass rather than slipping through. IDs whose
// record has expired are pruned from the set.
func (s *RedisStore) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)

	for i := 0; i < invalidateRetries; i++ {
		revoked := 0
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			ids, err := tx.SMembers(ctx, userKey).Result()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			keys := make([]string, len(ids))
			for j, id := range ids {
				keys[j] = s.recordKey(id)
			}
			if err := tx.Watch(ctx, keys...).Err(); err != nil {
				return err
			}

			flags := make([]*redis.StringCmd, len(keys))
			_, err = tx.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for j, key := range keys {
					flags[j] = pipe.HGet(ctx, key, fieldRevoked)
				}
				return nil
			})
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			now := toMillis(s.now())
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for j, cmd := range flags {
					rev, cmdErr := cmd.Result()
					switch {
					case errors.Is(cmdErr, redis.Nil):
						pipe.SRem(ctx, userKey, ids[j])
					case cmdErr != nil:
						return cmdErr
					case rev != "1":
						pipe.HSet(ctx, keys[j], fieldRevoked, "1", fieldUpdatedAt, now)
						revoked++
					}
				}
				return nil
			})
			return err
		}, userKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return revoked, nil
	}
	return 0, fmt.Errorf("%w: records of user kept changing", ErrUnavailable)
}

// ListForUser returns all retained records of userID, in no particular order.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	records := make([]*Record, 0, len(ids))
	for _, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}
		if len(fields) == 0 {
			continue
		}
		rec, decErr := decodeRecord(fields)
		if decErr != nil {
			return nil, decErr
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeRecord(r *Record) map[string]interface{} {
	return map[string]interface{}{
		fieldID:        r.ID,
		fieldUserID:    r.UserID,
		fieldHash:      r.TokenHash,
		fieldExpiresAt: toMillis(r.ExpiresAt),
		fieldUsed:      flag(r.Used),
		fieldRevoked:   flag(r.Revoked),
		fieldCreatedAt: toMillis(r.CreatedAt),
		fieldUpdatedAt: toMillis(r.UpdatedAt),
	}
}

func decodeRecord(fields map[string]string) (*Record, error) {
	rec := &Record{
		ID:        fields[fieldID],
		UserID:    fields[fieldUserID],
		TokenHash: fields[fieldHash],
		Used:      fields[fieldUsed] == "1",
		Revoked:   fields[fieldRevoked] == "1",
	}
	if rec.ID == "" || rec.UserID == "" {
		return nil, fmt.Errorf("%w: corrupt record", ErrUnavailable)
	}
	var err error
	if rec.ExpiresAt, err = fromMillis(fields[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = fromMillis(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = fromMillis(fields[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	return rec, nil
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: corrupt timestamp %q", ErrUnavailable, v)
	}
	return time.UnixMilli(ms).UTC(), nil
}
