package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victornm/duelquiz/internal/catalog"
	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/event"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/storage"
)

type Config struct {
	Store    storage.Store
	Catalog  *catalog.Service
	Notifier *notify.Channel
	EventBus *event.Bus
}

// Service runs a session once both players are seated: it takes answers,
// keeps scores and closes the game when the last answer is in.
type Service struct {
	store    storage.Store
	catalog  *catalog.Service
	notifier *notify.Channel
	eb       *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store:    c.Store,
		catalog:  c.Catalog,
		notifier: c.Notifier,
		eb:       c.EventBus,
	}
}

// SubmitAnswerRequest represents one answer of a player.
type SubmitAnswerRequest struct {
	SessionID     string
	ParticipantID string
	QuestionID    string
	// Choice is nil when the player ran out of time.
	Choice *string
}

type SubmitAnswerResponse struct {
	// Accepted is false when the question was already answered by the player.
	// The first answer stands and the score is untouched.
	Accepted         bool
	Correct          bool
	SessionCompleted bool
}

// SubmitAnswer records an answer, scores it and completes the session when it
// was the last one missing. Everything happens in one store update, so two
// players finishing at the same time complete the session exactly once.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.ParticipantID == "" || req.QuestionID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("participant and question are required"))
	}

	ss, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := checkAnswer(ss, req); err != nil {
		return nil, err
	}

	qs, err := s.catalog.FetchByIDs(ctx, []string{req.QuestionID})
	if err != nil {
		return nil, fmt.Errorf("session: fetch question: %w", err)
	}
	correct := qs[0].IsCorrect(req.Choice)

	var (
		completed bool
		previous  *string
	)
	ss, err = s.store.Update(ctx, req.SessionID, func(ss *domain.Session) error {
		completed, previous = false, nil

		if err := checkAnswer(ss, req); err != nil {
			return err
		}
		if c, ok := ss.Answered(req.ParticipantID, req.QuestionID); ok {
			previous = c
			return errors.Newf(errors.ReasonDuplicateAnswer,
				"participant %s already answered %s", req.ParticipantID, req.QuestionID)
		}

		if ss.Answers == nil {
			ss.Answers = make(map[string]map[string]*string)
		}
		if ss.Answers[req.ParticipantID] == nil {
			ss.Answers[req.ParticipantID] = make(map[string]*string)
		}
		ss.Answers[req.ParticipantID][req.QuestionID] = req.Choice

		if ss.Scores == nil {
			ss.Scores = make(map[string]int)
		}
		if correct {
			ss.Scores[req.ParticipantID]++
		}

		if ss.AllAnswered() {
			complete(ss)
			completed = true
		}
		return nil
	})

	if errors.HasReason(err, errors.ReasonDuplicateAnswer) {
		slog.DebugContext(ctx, "session: duplicate answer ignored",
			"session", req.SessionID, "player", req.ParticipantID, "question", req.QuestionID)
		return &SubmitAnswerResponse{
			Accepted: false,
			Correct:  qs[0].IsCorrect(previous),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: answer recorded",
		"session", ss.SessionID, "player", req.ParticipantID, "question", req.QuestionID, "correct", correct)

	if err := s.notifier.PublishOpponentAnswered(ctx, ss, req.ParticipantID, req.QuestionID, correct); err != nil {
		slog.ErrorContext(ctx, "session: notify opponent answered failed", "session", ss.SessionID, "error", err)
	}
	s.eb.Publish(ctx, domain.EventAnswerRecorded{
		SessionID:  ss.SessionID,
		Player:     req.ParticipantID,
		QuestionID: req.QuestionID,
		Correct:    correct,
		TimedOut:   req.Choice == nil,
	})

	if completed {
		slog.InfoContext(ctx, "session: completed",
			"session", ss.SessionID, "winner", ss.Winner, "draw", ss.IsDraw)

		// The outcome goes out before the response, so the caller never sees
		// its own completion ahead of the opponent's push.
		if err := s.notifier.PublishGameCompleted(ctx, ss); err != nil {
			slog.ErrorContext(ctx, "session: notify game completed failed", "session", ss.SessionID, "error", err)
		}
		s.eb.Publish(ctx, domain.EventSessionCompleted{Session: *ss.Clone()})
	}

	return &SubmitAnswerResponse{
		Accepted:         true,
		Correct:          correct,
		SessionCompleted: completed,
	}, nil
}

// checkAnswer applies the preconditions of an answer in their reporting order.
// The duplicate check is left to the caller.
func checkAnswer(ss *domain.Session, req SubmitAnswerRequest) error {
	switch {
	case ss.Status != domain.StatusInProgress:
		return errors.Newf(errors.ReasonInvalidState, "session %s is %s", ss.SessionID, ss.Status)
	case !ss.HasPlayer(req.ParticipantID):
		return errors.Newf(errors.ReasonForbidden, "participant %s is not in session %s", req.ParticipantID, ss.SessionID)
	case !ss.HasQuestion(req.QuestionID):
		return errors.Newf(errors.ReasonNotFound, "question %s is not in session %s", req.QuestionID, ss.SessionID)
	}
	return nil
}

// complete resolves the outcome between the two players and closes the session.
func complete(ss *domain.Session) {
	a := ss.Players[0]
	b := ss.Opponent(a)

	switch sa, sb := ss.Scores[a], ss.Scores[b]; {
	case sa > sb:
		ss.Winner = a
	case sb > sa:
		ss.Winner = b
	default:
		ss.IsDraw = true
	}

	ss.Status = domain.StatusCompleted
}

type GetSessionRequest struct {
	SessionID     string
	ParticipantID string
}

// GetSession returns the session to one of its players. It is how a client
// catches up on notifications it missed while disconnected.
func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*domain.Session, error) {
	ss, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if !ss.HasPlayer(req.ParticipantID) {
		return nil, errors.Newf(errors.ReasonForbidden, "participant %s is not in session %s", req.ParticipantID, ss.SessionID)
	}

	return ss, nil
}

// Questions returns the session's questions in play order.
func (s *Service) Questions(ctx context.Context, req GetSessionRequest) ([]domain.Question, error) {
	ss, err := s.GetSession(ctx, req)
	if err != nil {
		return nil, err
	}

	return s.catalog.FetchByIDs(ctx, ss.QuestionIDs)
}
