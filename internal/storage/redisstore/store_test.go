package redisstore_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/storage/redisstore"
	"github.com/victornm/duelquiz/internal/testkit"
)

func TestStore_CreateGet(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	ss := waitingSession("s1", "p1")
	require.NoError(t, s.Create(ctx, ss))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, got.Players)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	err = s.Create(ctx, waitingSession("s1", "p9"))
	assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.HasReason(err, errors.ReasonNotFound))
}

func TestStore_Create_IndexesWaiting(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	const n = 10
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ss := waitingSession("s1", fmt.Sprintf("p%d", i))
			ss.CreatedAt = time.UnixMilli(int64(1000 * (i + 1)))

			err := s.Create(ctx, ss)
			if err == nil {
				created.Add(1)
				return
			}
			assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), created.Load(), "exactly one create wins")

	got, err := s.FindWaiting(ctx, domain.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "the winner is indexed once")

	stored, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, stored.Players, got[0].Players, "index points at the stored record")
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("should not write anything when fn fails", func(t *testing.T) {
		s := makeStore(t)
		require.NoError(t, s.Create(ctx, waitingSession("s1", "p1")))

		_, err := s.Update(ctx, "s1", func(ss *domain.Session) error {
			ss.Players = append(ss.Players, "p2")
			return errors.Newf(errors.ReasonGameFull, "nope")
		})
		require.True(t, errors.HasReason(err, errors.ReasonGameFull))

		got, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"p1"}, got.Players)
	})

	t.Run("should fail with not found for an unknown session", func(t *testing.T) {
		s := makeStore(t)

		_, err := s.Update(ctx, "missing", func(*domain.Session) error { return nil })
		assert.True(t, errors.HasReason(err, errors.ReasonNotFound))
	})

	t.Run("should serialize concurrent updates of the same session", func(t *testing.T) {
		s := makeStore(t)
		ss := waitingSession("s1", "p1")
		ss.Scores = map[string]int{"p1": 0}
		require.NoError(t, s.Create(ctx, ss))

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, "s1", func(ss *domain.Session) error {
					ss.Scores["p1"]++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, n, got.Scores["p1"], "no increment should be lost")
	})
}

func TestStore_FindWaiting(t *testing.T) {
	s := makeStore(t)
	ctx := context.Background()

	f := domain.Filter{Category: "Physics"}
	for i := 1; i <= 3; i++ {
		ss := waitingSession(fmt.Sprintf("s%d", i), fmt.Sprintf("p%d", i))
		ss.Filter = f
		ss.CreatedAt = time.UnixMilli(int64(i * 1000))
		require.NoError(t, s.Create(ctx, ss))
	}
	require.NoError(t, s.Create(ctx, waitingSession("other", "p9")))

	got, err := s.FindWaiting(ctx, f, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s1", got[0].SessionID, "oldest first")

	_, err = s.Update(ctx, "s1", func(ss *domain.Session) error {
		ss.Players = append(ss.Players, "p2")
		ss.Status = domain.StatusInProgress
		return nil
	})
	require.NoError(t, err)

	got, err = s.FindWaiting(ctx, f, 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "joined session should leave the waiting index")
	assert.Equal(t, "s2", got[0].SessionID)

	got, err = s.FindWaiting(ctx, f, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func makeStore(t *testing.T) *redisstore.Store {
	return redisstore.New(redisstore.Config{
		Redis:  testkit.Redis(t),
		Prefix: "test",
	})
}

func waitingSession(id, player string) *domain.Session {
	return &domain.Session{
		SessionID:   id,
		Players:     []string{player},
		QuestionIDs: []string{"q1", "q2"},
		Status:      domain.StatusWaiting,
	}
}
