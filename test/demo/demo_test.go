//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/duelquiz/internal/api"
	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/notify"
)

const (
	addr = "localhost:8081"
)

// TestDuel plays one game against a server started with config.yaml.
func TestDuel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		conn    = makeConn(t)
		wg      = new(sync.WaitGroup)
		players = []string{"p-" + uuid.NewString()[:8], "p-" + uuid.NewString()[:8]}
		clients = []*api.Client{api.NewClient(conn, players[0]), api.NewClient(conn, players[1])}
	)

	// The first player opens a session, the second joins it.
	created, err := clients[0].FindOrCreate(ctx, domain.Filter{})
	require.NoError(t, err)
	session := created.Session.SessionID
	t.Logf("Session %s created by %s", session, players[0])

	// Raw notifications as published on the session topic
	watchTopic(t, makeRedis(t), wg, fmt.Sprintf("local:pubsub:session:%s", session))

	watchEvents(ctx, t, clients[0], wg, players[0], session)

	joined, err := clients[1].FindOrCreate(ctx, domain.Filter{})
	require.NoError(t, err)
	require.Equal(t, session, joined.Session.SessionID)
	watchEvents(ctx, t, clients[1], wg, players[1], session)

	// Both players answer every question concurrently, at their own pace
	var eg errgroup.Group
	for i, c := range clients {
		eg.Go(func() error {
			for j, q := range joined.Questions {
				choice := q.Options[(i+j)%len(q.Options)]
				resp, err := c.SubmitAnswer(ctx, &api.SubmitAnswerRequest{
					SessionID:  session,
					QuestionID: q.ID,
					Choice:     &choice,
				})
				if err != nil {
					return fmt.Errorf("player %q submit answer: %w", players[i], err)
				}

				t.Logf("Player %q answered %q with %q: correct=%t, completed=%t", players[i], q.ID, choice, resp.Correct, resp.SessionCompleted)
				time.Sleep(time.Duration(100*(i+1)) * time.Millisecond)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	got, err := clients[0].GetSession(ctx, session)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, got.Session.Status)
	t.Logf("Final scores: %v, winner=%q, draw=%t", got.Session.Scores, got.Session.Winner, got.Session.IsDraw)

	wg.Wait()
}

func watchEvents(ctx context.Context, t *testing.T, c *api.Client, wg *sync.WaitGroup, player, session string) {
	s, err := c.Events(ctx, session)
	require.NoError(t, err)

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			e, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				t.Logf("%s events: %v", player, err)
				return
			}

			t.Logf("%s received %s: %s", player, e.Event, e.Data)
		}
	}()
}

func watchTopic(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, topic string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	sub := rc.Subscribe(ctx, topic)
	t.Cleanup(func() {
		cancel()
		sub.Close()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			t.Logf("topic %s: %s", msg.Channel, msg.Payload)
			if notifyEvent(msg.Payload) == notify.EventGameCompleted {
				return
			}
		}
	}()
}

func notifyEvent(payload string) string {
	var n notify.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return ""
	}
	return n.Event
}

func makeConn(t *testing.T) *grpc.ClientConn {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}
