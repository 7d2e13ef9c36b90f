package records

import (
	"bytes"
	"context"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Redis stores each member's records in one hash, keyed by method segment,
// and the default preference in a separate string key.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis-backed repository. An empty prefix selects "mrm".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "mrm"
	}
	return &Redis{redis: client, prefix: prefix, now: time.Now}
}

func (s *Redis) recordsKey(memberID string) string {
	return s.prefix + ":r:" + memberID
}

func (s *Redis) defaultKey(memberID string) string {
	return s.prefix + ":d:" + memberID
}

func (s *Redis) List(ctx context.Context, memberID string) ([]method.RegisteredMethod, error) {
	all, err := s.redis.HGetAll(ctx, s.recordsKey(memberID)).Result()
	if err != nil {
		return nil, backendError(err, "list registered methods")
	}

	out := make([]method.RegisteredMethod, 0, len(all))
	for _, raw := range all {
		rm, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	sortRecords(out)
	return out, nil
}

func (s *Redis) Get(ctx context.Context, memberID, segment string) (*method.RegisteredMethod, error) {
	raw, err := s.redis.HGet(ctx, s.recordsKey(memberID), segment).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, backendError(err, "get registered method")
	}
	return decodeRecord(raw)
}

func (s *Redis) Create(ctx context.Context, rm *method.RegisteredMethod) error {
	if err := validateRecord(rm); err != nil {
		return err
	}
	if rm.CreatedAt.IsZero() {
		rm.CreatedAt = s.now().UTC()
	}
	rm.UpdatedAt = rm.CreatedAt

	encoded, err := encodeRecord(rm)
	if err != nil {
		return err
	}
	created, err := s.redis.HSetNX(ctx, s.recordsKey(rm.MemberID), rm.Method, encoded).Result()
	if err != nil {
		return backendError(err, "create registered method")
	}
	if !created {
		return ErrDuplicate
	}
	return nil
}

// UpdateData rewrites the data of an existing record under WATCH so a
// concurrent delete is never resurrected.
func (s *Redis) UpdateData(ctx context.Context, memberID, segment string, data []byte) error {
	return s.rewriteData(ctx, memberID, segment, data, nil, "update registered method")
}

// SwapData rewrites the data only if the watched record still holds old.
func (s *Redis) SwapData(ctx context.Context, memberID, segment string, old, data []byte) error {
	return s.rewriteData(ctx, memberID, segment, data, func(current []byte) error {
		if !bytes.Equal(current, old) {
			return ErrConflict
		}
		return nil
	}, "swap registered method data")
}

func (s *Redis) rewriteData(ctx context.Context, memberID, segment string, data []byte, check func([]byte) error, op string) error {
	const maxRetries = 4
	key := s.recordsKey(memberID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, key, segment).Bytes()
			if err != nil {
				return err
			}
			rm, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if check != nil {
				if err := check(rm.Data); err != nil {
					return err
				}
			}

			rm.Data = data
			rm.UpdatedAt = s.now().UTC()
			encoded, err := encodeRecord(rm)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, segment, encoded)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if errors.Is(err, ErrCorrupt) || errors.Is(err, ErrConflict) {
				return err
			}
			return backendError(err, op)
		}
		return nil
	}

	return backendError(redis.TxFailedErr, op)
}

func (s *Redis) Delete(ctx context.Context, memberID, segment string) error {
	removed, err := s.redis.HDel(ctx, s.recordsKey(memberID), segment).Result()
	if err != nil {
		return backendError(err, "delete registered method")
	}
	if removed == 0 {
		return ErrNotFound
	}

	current, err := s.redis.Get(ctx, s.defaultKey(memberID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return backendError(err, "read default method")
	}
	if current == segment {
		if err := s.redis.Del(ctx, s.defaultKey(memberID)).Err(); err != nil {
			return backendError(err, "clear default method")
		}
	}
	return nil
}

func (s *Redis) DeleteAll(ctx context.Context, memberID string) error {
	if err := s.redis.Del(ctx, s.recordsKey(memberID), s.defaultKey(memberID)).Err(); err != nil {
		return backendError(err, "delete member methods")
	}
	return nil
}

func (s *Redis) DefaultMethod(ctx context.Context, memberID string) (string, error) {
	v, err := s.redis.Get(ctx, s.defaultKey(memberID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", backendError(err, "read default method")
	}
	return v, nil
}

func (s *Redis) SetDefaultMethod(ctx context.Context, memberID, segment string) error {
	if segment == "" {
		if err := s.redis.Del(ctx, s.defaultKey(memberID)).Err(); err != nil {
			return backendError(err, "clear default method")
		}
		return nil
	}

	exists, err := s.redis.HExists(ctx, s.recordsKey(memberID), segment).Result()
	if err != nil {
		return backendError(err, "check registered method")
	}
	if !exists {
		return ErrNotFound
	}
	if err := s.redis.Set(ctx, s.defaultKey(memberID), segment, 0).Err(); err != nil {
		return backendError(err, "set default method")
	}
	return nil
}
