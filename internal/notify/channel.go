// Package notify carries live session updates to the two players over a Redis
// pubsub channel per session. Delivery is best effort: a player who is not
// subscribed when an event is published never sees it and has to read the
// session again.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/duelquiz/internal/domain"
)

const (
	EventOpponentJoined   = "opponent_joined"
	EventOpponentAnswered = "opponent_answered"
	EventGameCompleted    = "game_completed"
)

const defaultBuffer = 16

type (
	Notification struct {
		Event     string          `json:"event"`
		SessionID string          `json:"session_id"`
		Exclude   string          `json:"exclude,omitempty"`
		Data      json.RawMessage `json:"data"`
	}

	OpponentJoined struct {
		ParticipantID string `json:"participant_id"`
	}

	// OpponentAnswered deliberately omits the choice, so a player cannot learn
	// the answer before answering the same question.
	OpponentAnswered struct {
		ParticipantID string `json:"participant_id"`
		QuestionID    string `json:"question_id"`
		Correct       bool   `json:"correct"`
		Answered      int    `json:"answered"`
	}

	GameCompleted struct {
		Scores map[string]int `json:"scores"`
		Winner string         `json:"winner,omitempty"`
		IsDraw bool           `json:"is_draw"`
	}
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// Buffer is the number of notifications queued per subscriber.
	Buffer int
}

type Channel struct {
	redis  redis.UniversalClient
	prefix string
	buffer int
}

func NewChannel(c Config) *Channel {
	ch := &Channel{
		redis:  c.Redis,
		prefix: c.Prefix,
		buffer: c.Buffer,
	}

	if ch.buffer <= 0 {
		ch.buffer = defaultBuffer
	}

	return ch
}

// PublishOpponentJoined tells the waiting player that joiner took the second seat.
func (c *Channel) PublishOpponentJoined(ctx context.Context, ss *domain.Session, joiner string) error {
	return c.publish(ctx, ss.SessionID, EventOpponentJoined, joiner, OpponentJoined{
		ParticipantID: joiner,
	})
}

// PublishOpponentAnswered tells the other player that player answered question q.
func (c *Channel) PublishOpponentAnswered(ctx context.Context, ss *domain.Session, player, q string, correct bool) error {
	return c.publish(ctx, ss.SessionID, EventOpponentAnswered, player, OpponentAnswered{
		ParticipantID: player,
		QuestionID:    q,
		Correct:       correct,
		Answered:      len(ss.Answers[player]),
	})
}

// PublishGameCompleted sends the final outcome to both players.
func (c *Channel) PublishGameCompleted(ctx context.Context, ss *domain.Session) error {
	return c.publish(ctx, ss.SessionID, EventGameCompleted, "", GameCompleted{
		Scores: ss.Scores,
		Winner: ss.Winner,
		IsDraw: ss.IsDraw,
	})
}

func (c *Channel) publish(ctx context.Context, session, event, exclude string, data any) error {
	d, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", event, err)
	}

	b, err := json.Marshal(Notification{
		Event:     event,
		SessionID: session,
		Exclude:   exclude,
		Data:      d,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}

	if err := c.redis.Publish(ctx, c.getTopic(session), b).Err(); err != nil {
		return fmt.Errorf("notify: publish %s: %w", event, err)
	}

	return nil
}

// Subscribe opens a subscription to the session topic on behalf of participant.
// Notifications the participant originated are filtered out. The caller must
// Close the subscription when its connection ends.
func (c *Channel) Subscribe(ctx context.Context, session, participant string) (*Subscription, error) {
	ps := c.redis.Subscribe(ctx, c.getTopic(session))

	// Wait for the subscription to be confirmed, so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notify: subscribe %s: %w", session, err)
	}

	s := &Subscription{
		ps:   ps,
		c:    make(chan Notification, c.buffer),
		done: make(chan struct{}),
	}

	go s.run(ctx, participant)

	return s, nil
}

func (c *Channel) getTopic(session string) string {
	return fmt.Sprintf("%s:session:%s", c.prefix, session)
}

type Subscription struct {
	ps   *redis.PubSub
	c    chan Notification
	done chan struct{}
	once sync.Once
}

// C delivers notifications until the subscription is closed.
func (s *Subscription) C() <-chan Notification {
	return s.c
}

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *Subscription) run(ctx context.Context, participant string) {
	defer close(s.c)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				slog.WarnContext(ctx, "notify: drop malformed notification", "channel", msg.Channel, "error", err)
				continue
			}

			if n.Exclude != "" && n.Exclude == participant {
				continue
			}

			select {
			case s.c <- n:
			case <-s.done:
				return
			}
		}
	}
}
