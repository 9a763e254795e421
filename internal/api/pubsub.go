package api

import (
	"context"
	"fmt"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/session"
)

// subscribe opens a notification subscription for the caller, who must be a
// player of the session. The session is read after subscribing, so a
// completion is either in the returned session or delivered on the
// subscription.
func (a *API) subscribe(ctx context.Context, sessionID string) (*notify.Subscription, *domain.Session, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub, err := a.nc.Subscribe(ctx, sessionID, p)
	if err != nil {
		return nil, nil, fmt.Errorf("api: subscribe: %w", err)
	}

	ss, err := a.ss.GetSession(ctx, session.GetSessionRequest{
		SessionID:     sessionID,
		ParticipantID: p,
	})
	if err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	return sub, ss, nil
}

// forward hands notifications to send until the game completes, the
// subscription closes or ctx ends.
func forward(ctx context.Context, sub *notify.Subscription, send func(*Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-sub.C():
			if !ok {
				return nil
			}

			if err := send(toEvent(n)); err != nil {
				return fmt.Errorf("api: send %s: %w", n.Event, err)
			}

			if n.Event == notify.EventGameCompleted {
				return nil
			}
		}
	}
}
