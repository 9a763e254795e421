package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/testkit"
)

func TestChannel_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := notify.NewChannel(notify.Config{
		Redis:  testkit.Redis(t),
		Prefix: "test:pubsub",
	})

	ss := &domain.Session{
		SessionID: "s1",
		Players:   []string{"alice", "bob"},
		Answers: map[string]map[string]*string{
			"bob": {"q1": testkit.Choice("A")},
		},
		Scores: map[string]int{"alice": 3, "bob": 2},
		Winner: "alice",
		Status: domain.StatusCompleted,
	}

	alice, err := ch.Subscribe(ctx, "s1", "alice")
	require.NoError(t, err)
	defer alice.Close()

	bob, err := ch.Subscribe(ctx, "s1", "bob")
	require.NoError(t, err)
	defer bob.Close()

	other, err := ch.Subscribe(ctx, "s2", "carol")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, ch.PublishOpponentJoined(ctx, ss, "bob"))
	require.NoError(t, ch.PublishOpponentAnswered(ctx, ss, "bob", "q1", true))
	require.NoError(t, ch.PublishGameCompleted(ctx, ss))

	t.Run("the other player receives opponent events and the outcome", func(t *testing.T) {
		n := receive(t, alice)
		assert.Equal(t, notify.EventOpponentJoined, n.Event)

		n = receive(t, alice)
		require.Equal(t, notify.EventOpponentAnswered, n.Event)
		var answered notify.OpponentAnswered
		require.NoError(t, json.Unmarshal(n.Data, &answered))
		assert.Equal(t, notify.OpponentAnswered{ParticipantID: "bob", QuestionID: "q1", Correct: true, Answered: 1}, answered)
		assert.NotContains(t, string(n.Data), `"A"`, "the choice must not leak")

		n = receive(t, alice)
		require.Equal(t, notify.EventGameCompleted, n.Event)
		var completed notify.GameCompleted
		require.NoError(t, json.Unmarshal(n.Data, &completed))
		assert.Equal(t, "alice", completed.Winner)
		assert.Equal(t, map[string]int{"alice": 3, "bob": 2}, completed.Scores)
	})

	t.Run("the originator only receives the outcome", func(t *testing.T) {
		n := receive(t, bob)
		assert.Equal(t, notify.EventGameCompleted, n.Event)
	})

	t.Run("other sessions receive nothing", func(t *testing.T) {
		select {
		case n := <-other.C():
			t.Fatalf("unexpected notification %+v", n)
		case <-time.After(100 * time.Millisecond):
		}
	})
}

func TestSubscription_Close(t *testing.T) {
	ch := notify.NewChannel(notify.Config{Redis: testkit.Redis(t)})

	sub, err := ch.Subscribe(context.Background(), "s1", "alice")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close should be idempotent")

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription channel was not closed")
	}
}

func receive(t *testing.T, s *notify.Subscription) notify.Notification {
	t.Helper()

	select {
	case n, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return notify.Notification{}
	}
}
