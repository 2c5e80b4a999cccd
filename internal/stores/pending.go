package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrPendingUnavailable wraps Redis faults.
	ErrPendingUnavailable = errors.New("pending store redis unavailable")
	// ErrPendingInvalidTTL is returned when Save is called with a non-positive TTL.
	ErrPendingInvalidTTL = errors.New("pending entry ttl must be positive")
	// ErrPendingMalformed is returned when a stored value cannot be decoded.
	ErrPendingMalformed = errors.New("pending entry malformed")
)

// LookupStatus tags the outcome of Lookup.
type LookupStatus int

const (
	// LookupNotFound means no entry is stored at the key.
	LookupNotFound LookupStatus = iota
	// LookupMismatch means an entry exists but the presented code differs.
	LookupMismatch
	// LookupOK means the presented code matches the stored entry.
	LookupOK
)

func (s LookupStatus) String() string {
	switch s {
	case LookupMismatch:
		return "mismatch"
	case LookupOK:
		return "ok"
	default:
		return "not_found"
	}
}

// PendingEntry is one outstanding verification.
type PendingEntry struct {
	Key       string
	Code      string
	Payload   []byte
	Remaining time.Duration
}

// LookupResult is the tagged result of Lookup. Entry is set only for LookupOK.
type LookupResult struct {
	Status LookupStatus
	Entry  *PendingEntry
}

// lookupPendingLua returns {value, pttl} or false when the key is absent.
var lookupPendingLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
return {data, redis.call('PTTL', KEYS[1])}
`)

// consumePendingLua deletes the entry only when its code equals ARGV[1].
// Returns 1 on delete, 0 when absent, -1 on code mismatch.
var consumePendingLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
local sep = string.find(data, "\n", 1, true)
if not sep then
  return -1
end
if string.sub(data, 1, sep - 1) ~= ARGV[1] then
  return -1
end
redis.call('DEL', KEYS[1])
return 1
`)

// PendingStore persists pending verification entries in Redis.
type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPendingStore returns a store on redisClient. An empty prefix keeps keys
// in the bare "<flow>:<scope>" form.
func NewPendingStore(redisClient redis.UniversalClient, prefix string) *PendingStore {
	return &PendingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key returns the Redis key for flow and scope.
func (s *PendingStore) Key(flow, scope string) string {
	if s.prefix == "" {
		return flow + ":" + scope
	}
	return s.prefix + ":" + flow + ":" + scope
}

// Save stores code and payload at key, overwriting any previous entry.
func (s *PendingStore) Save(ctx context.Context, key, code string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrPendingInvalidTTL
	}
	if code == "" || strings.Contains(code, "\n") {
		return errors.New("pending entry code invalid")
	}
	if err := s.redis.Set(ctx, key, encodePending(code, payload), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// SaveNew stores the entry only when key is free. It reports whether the
// entry was written. Code-scoped flows use it so that two live codes never
// share a key.
func (s *PendingStore) SaveNew(ctx context.Context, key, code string, payload []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrPendingInvalidTTL
	}
	if code == "" || strings.Contains(code, "\n") {
		return false, errors.New("pending entry code invalid")
	}
	ok, err := s.redis.SetNX(ctx, key, encodePending(code, payload), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return ok, nil
}

// Lookup compares code with the entry at key without consuming it.
func (s *PendingStore) Lookup(ctx context.Context, key, code string) (LookupResult, error) {
	raw, err := lookupPendingLua.Run(ctx, s.redis, []string{key}).Result()
	if errors.Is(err, redis.Nil) {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) != 2 {
		return LookupResult{}, fmt.Errorf("%w: unexpected lua result type", ErrPendingUnavailable)
	}
	data, ok := parts[0].(string)
	if !ok {
		return LookupResult{}, fmt.Errorf("%w: unexpected lua value type", ErrPendingUnavailable)
	}
	pttl, _ := parts[1].(int64)

	storedCode, payload, err := decodePending(data)
	if err != nil {
		return LookupResult{}, err
	}
	if subtle.ConstantTimeCompare([]byte(storedCode), []byte(code)) != 1 {
		return LookupResult{Status: LookupMismatch}, nil
	}

	return LookupResult{
		Status: LookupOK,
		Entry: &PendingEntry{
			Key:       key,
			Code:      storedCode,
			Payload:   payload,
			Remaining: time.Duration(pttl) * time.Millisecond,
		},
	}, nil
}

// Consume atomically deletes the entry at key if its code still equals code.
// It returns the resulting status: LookupOK when this caller claimed the
// entry, LookupNotFound when it was already gone, LookupMismatch when it was
// overwritten by a new initiate.
func (s *PendingStore) Consume(ctx context.Context, key, code string) (LookupStatus, error) {
	res, err := consumePendingLua.Run(ctx, s.redis, []string{key}, code).Int64()
	if err != nil {
		return LookupNotFound, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	switch res {
	case 1:
		return LookupOK, nil
	case -1:
		return LookupMismatch, nil
	default:
		return LookupNotFound, nil
	}
}

// Restore puts a consumed entry back with its remaining TTL. A newer entry
// written at the same key in the meantime wins. Entries whose TTL has run
// out are not restored.
func (s *PendingStore) Restore(ctx context.Context, entry *PendingEntry) error {
	if entry == nil || entry.Remaining <= 0 {
		return nil
	}
	err := s.redis.SetNX(ctx, entry.Key, encodePending(entry.Code, entry.Payload), entry.Remaining).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Delete removes the entry at key. It is idempotent.
func (s *PendingStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

func encodePending(code string, payload []byte) string {
	return code + "\n" + string(payload)
}

func decodePending(data string) (string, []byte, error) {
	idx := strings.IndexByte(data, '\n')
	if idx <= 0 {
		return "", nil, ErrPendingMalformed
	}
	return data[:idx], []byte(data[idx+1:]), nil
}
