package api

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/match"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/session"
)

type Config struct {
	GRPC     *grpc.Server
	HTTP     gin.IRouter
	Match    *match.Service
	Session  *session.Service
	Notifier *notify.Channel
}

// API serves the duel over gRPC and HTTP. Both transports share the methods
// below; they differ only in how the participant id and the event stream are
// carried.
type API struct {
	ms *match.Service
	ss *session.Service
	nc *notify.Channel
}

var _ DuelServiceServer = (*API)(nil)

func New(c Config) *API {
	a := &API{
		ms: c.Match,
		ss: c.Session,
		nc: c.Notifier,
	}

	if c.GRPC != nil {
		RegisterDuelServiceServer(c.GRPC, a)
	}
	if c.HTTP != nil {
		a.registerHTTP(c.HTTP)
	}

	return a
}

func (a *API) FindOrCreate(ctx context.Context, req *FindOrCreateRequest) (*MatchResponse, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.ms.FindOrCreate(ctx, match.FindOrCreateRequest{
		ParticipantID: p,
		Filter:        req.Filter,
	})
	if err != nil {
		return nil, err
	}

	return &MatchResponse{
		Session:   toSession(resp.Session, p),
		Questions: toQuestions(resp.Questions),
		Created:   resp.Created,
	}, nil
}

func (a *API) ListOpen(ctx context.Context, req *ListOpenRequest) (*ListOpenResponse, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := a.ms.ListOpen(ctx, match.ListOpenRequest{
		ParticipantID: p,
		Filter:        req.Filter,
	})
	if err != nil {
		return nil, err
	}

	resp := &ListOpenResponse{
		Sessions: make([]*Session, 0, len(sessions)),
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, toSession(&sessions[i], p))
	}

	return resp, nil
}

func (a *API) Join(ctx context.Context, req *JoinRequest) (*MatchResponse, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.ms.Join(ctx, match.JoinRequest{
		SessionID:     req.SessionID,
		ParticipantID: p,
	})
	if err != nil {
		return nil, err
	}

	return &MatchResponse{
		Session:   toSession(resp.Session, p),
		Questions: toQuestions(resp.Questions),
	}, nil
}

func (a *API) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.ss.SubmitAnswer(ctx, session.SubmitAnswerRequest{
		SessionID:     req.SessionID,
		ParticipantID: p,
		QuestionID:    req.QuestionID,
		Choice:        req.Choice,
	})
	if err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{
		Accepted:         resp.Accepted,
		Correct:          resp.Correct,
		SessionCompleted: resp.SessionCompleted,
	}, nil
}

func (a *API) GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionResponse, error) {
	p, err := participant(ctx)
	if err != nil {
		return nil, err
	}

	r := session.GetSessionRequest{
		SessionID:     req.SessionID,
		ParticipantID: p,
	}

	ss, err := a.ss.GetSession(ctx, r)
	if err != nil {
		return nil, err
	}

	qs, err := a.ss.Questions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("api: get questions: %w", err)
	}

	return &GetSessionResponse{
		Session:   toSession(ss, p),
		Questions: toQuestions(qs),
	}, nil
}

type participantKey struct{}

func withParticipant(ctx context.Context, p string) context.Context {
	return context.WithValue(ctx, participantKey{}, p)
}

// participant returns the authenticated caller. Identity is verified upstream;
// here it only has to be present.
func participant(ctx context.Context) (string, error) {
	p, _ := ctx.Value(participantKey{}).(string)
	if p == "" {
		return "", errors.New(errors.CodeUnauthenticated, errors.WithMessagef("participant id is required"))
	}
	return p, nil
}
