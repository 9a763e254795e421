// Package redisstore keeps sessions in Redis, one JSON document per session, and
// serializes updates with WATCH/MULTI optimistic transactions.
package redisstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/storage"
)

const (
	defaultMaxRetries = 100
	retryBackoff      = time.Millisecond
)

type Config struct {
	Redis      redis.UniversalClient
	Prefix     string
	MaxRetries int
	Now        func() time.Time
}

type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
	now        func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New(c Config) *Store {
	s := &Store{
		redis:      c.Redis,
		prefix:     c.Prefix,
		maxRetries: c.MaxRetries,
		now:        c.Now,
	}

	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

func (s *Store) Create(ctx context.Context, ss *domain.Session) error {
	now := s.now().UTC()
	if ss.CreatedAt.IsZero() {
		ss.CreatedAt = now
	}
	ss.UpdatedAt = now

	b, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("redisstore: marshal session: %w", err)
	}

	key := s.getSessionKey(ss.SessionID)
	exists := errors.New(errors.CodeAlreadyExists, errors.WithMessagef("session already exists: %s", ss.SessionID))

	// The record and its waiting index entry are written in one transaction.
	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return exists
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, 0)
			if ss.Status == domain.StatusWaiting {
				p.ZAdd(ctx, s.getWaitingKey(ss.Filter), redis.Z{
					Score:  float64(ss.CreatedAt.UnixMilli()),
					Member: ss.SessionID,
				})
			}
			return nil
		})
		return err
	}, key)

	// A failed watch means another writer created the key first.
	if stderrors.Is(err, redis.TxFailedErr) || stderrors.Is(err, exists) {
		return exists
	}
	if err != nil {
		return fmt.Errorf("redisstore: create session: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	b, err := s.redis.Get(ctx, s.getSessionKey(sessionID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.Newf(errors.ReasonNotFound, "session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get session: %w", err)
	}

	return decodeSession(b)
}

func (s *Store) Update(ctx context.Context, sessionID string, fn storage.UpdateFunc) (*domain.Session, error) {
	key := s.getSessionKey(sessionID)

	for i := 0; i < s.maxRetries; i++ {
		var updated *domain.Session

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			b, err := tx.Get(ctx, key).Bytes()
			if stderrors.Is(err, redis.Nil) {
				return errors.Newf(errors.ReasonNotFound, "session not found: %s", sessionID)
			}
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			ss, err := decodeSession(b)
			if err != nil {
				return err
			}

			prev := ss.Status
			if err := fn(ss); err != nil {
				return err
			}
			ss.UpdatedAt = s.now().UTC()

			nb, err := json.Marshal(ss)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, nb, 0)
				if prev == domain.StatusWaiting && ss.Status != domain.StatusWaiting {
					p.ZRem(ctx, s.getWaitingKey(ss.Filter), ss.SessionID)
				}
				return nil
			})
			if err != nil {
				return err
			}

			updated = ss
			return nil
		}, key)

		if stderrors.Is(err, redis.TxFailedErr) {
			if err := sleep(ctx, retryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	return nil, errors.New(errors.CodeAborted,
		errors.WithMessagef("too much contention on session %s", sessionID))
}

func (s *Store) FindWaiting(ctx context.Context, f domain.Filter, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		return nil, nil
	}

	wk := s.getWaitingKey(f)
	ids, err := s.redis.ZRange(ctx, wk, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list waiting sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.getSessionKey(id))
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: load waiting sessions: %w", err)
	}

	out := make([]domain.Session, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			s.redis.ZRem(ctx, wk, ids[i])
			continue
		}

		ss, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		if ss.Status != domain.StatusWaiting {
			continue
		}
		out = append(out, *ss)
	}

	return out, nil
}

func (s *Store) getSessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *Store) getWaitingKey(f domain.Filter) string {
	return fmt.Sprintf("%s:waiting:%s", s.prefix, f.Key())
}

func decodeSession(b []byte) (*domain.Session, error) {
	var ss domain.Session
	if err := json.Unmarshal(b, &ss); err != nil {
		return nil, fmt.Errorf("redisstore: unmarshal session: %w", err)
	}
	return &ss, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
