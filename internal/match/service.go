package match

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/victornm/duelquiz/internal/catalog"
	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
	"github.com/victornm/duelquiz/internal/event"
	"github.com/victornm/duelquiz/internal/notify"
	"github.com/victornm/duelquiz/internal/storage"
)

const (
	defaultQuestionCount = 5
	defaultScanLimit     = 5
)

type Config struct {
	Store    storage.Store
	Catalog  *catalog.Service
	Notifier *notify.Channel
	EventBus *event.Bus

	// QuestionCount is the number of questions sampled for a new session.
	QuestionCount int
	// ScanLimit bounds how many waiting sessions are considered per request.
	ScanLimit int
}

// Service pairs players into sessions. The first open session found wins;
// there is no ranking.
type Service struct {
	store    storage.Store
	catalog  *catalog.Service
	notifier *notify.Channel
	eb       *event.Bus

	questionCount int
	scanLimit     int
}

func NewService(c Config) *Service {
	s := &Service{
		store:         c.Store,
		catalog:       c.Catalog,
		notifier:      c.Notifier,
		eb:            c.EventBus,
		questionCount: c.QuestionCount,
		scanLimit:     c.ScanLimit,
	}

	if s.questionCount <= 0 {
		s.questionCount = defaultQuestionCount
	}
	if s.scanLimit <= 0 {
		s.scanLimit = defaultScanLimit
	}

	return s
}

type FindOrCreateRequest struct {
	ParticipantID string
	Filter        domain.Filter
}

type MatchResponse struct {
	Session   *domain.Session
	Questions []domain.Question
	// Created is true when no open session could be joined and a new one was opened.
	Created bool
}

// FindOrCreate joins the oldest open session created with the same filter, or
// opens a new waiting session when there is none.
func (s *Service) FindOrCreate(ctx context.Context, req FindOrCreateRequest) (*MatchResponse, error) {
	if req.ParticipantID == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("participant is required"))
	}

	if err := catalog.ValidateFilter(req.Filter); err != nil {
		return nil, err
	}

	candidates, err := s.store.FindWaiting(ctx, req.Filter, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("match: find waiting sessions: %w", err)
	}

	for _, c := range candidates {
		if c.HasPlayer(req.ParticipantID) {
			return nil, errors.Newf(errors.ReasonAlreadyInSession,
				"participant %s is already waiting in session %s", req.ParticipantID, c.SessionID)
		}
	}

	for _, c := range candidates {
		resp, err := s.Join(ctx, JoinRequest{
			SessionID:     c.SessionID,
			ParticipantID: req.ParticipantID,
		})

		// Someone else got there first, try the next one.
		if errors.HasReason(err, errors.ReasonGameFull) || errors.HasReason(err, errors.ReasonInvalidState) {
			slog.DebugContext(ctx, "match: candidate taken", "session", c.SessionID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}

		return resp, nil
	}

	return s.create(ctx, req)
}

func (s *Service) create(ctx context.Context, req FindOrCreateRequest) (*MatchResponse, error) {
	// Sampling happens before anything is written, so a catalog failure never
	// leaves a half-created session behind.
	qs, err := s.catalog.SampleQuestions(ctx, req.Filter, s.questionCount)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := &domain.Session{
		SessionID:   id.String(),
		Filter:      req.Filter,
		Players:     []string{req.ParticipantID},
		QuestionIDs: make([]string, 0, len(qs)),
		Status:      domain.StatusWaiting,
		Answers:     make(map[string]map[string]*string),
		Scores:      map[string]int{req.ParticipantID: 0},
	}
	for _, q := range qs {
		ss.QuestionIDs = append(ss.QuestionIDs, q.QuestionID)
	}

	if err := s.store.Create(ctx, ss); err != nil {
		return nil, fmt.Errorf("match: create session: %w", err)
	}

	slog.InfoContext(ctx, "match: session created", "session", ss.SessionID, "player", req.ParticipantID)
	s.eb.Publish(ctx, domain.EventSessionCreated{Session: *ss})

	return &MatchResponse{
		Session:   ss,
		Questions: qs,
		Created:   true,
	}, nil
}

type JoinRequest struct {
	SessionID     string
	ParticipantID string
}

// Join takes the second seat of a waiting session and starts the game. The seat
// is handed out at most once: a concurrent second joiner gets GAME_FULL.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*MatchResponse, error) {
	ss, err := s.store.Update(ctx, req.SessionID, func(ss *domain.Session) error {
		switch {
		case ss.HasPlayer(req.ParticipantID):
			return errors.Newf(errors.ReasonAlreadyInSession,
				"participant %s is already in session %s", req.ParticipantID, ss.SessionID)
		case ss.Status == domain.StatusCompleted:
			return errors.Newf(errors.ReasonInvalidState, "session %s is completed", ss.SessionID)
		case ss.Status != domain.StatusWaiting || len(ss.Players) >= domain.MaxPlayers:
			return errors.Newf(errors.ReasonGameFull, "session %s is full", ss.SessionID)
		}

		ss.Players = append(ss.Players, req.ParticipantID)
		if ss.Scores == nil {
			ss.Scores = make(map[string]int)
		}
		ss.Scores[req.ParticipantID] = 0
		ss.Status = domain.StatusInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	qs, err := s.catalog.FetchByIDs(ctx, ss.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("match: fetch questions: %w", err)
	}

	slog.InfoContext(ctx, "match: session joined", "session", ss.SessionID, "player", req.ParticipantID)

	if err := s.notifier.PublishOpponentJoined(ctx, ss, req.ParticipantID); err != nil {
		slog.ErrorContext(ctx, "match: notify opponent joined failed", "session", ss.SessionID, "error", err)
	}
	s.eb.Publish(ctx, domain.EventSessionJoined{Session: *ss, Player: req.ParticipantID})

	return &MatchResponse{
		Session:   ss,
		Questions: qs,
	}, nil
}

type ListOpenRequest struct {
	ParticipantID string
	Filter        domain.Filter
}

// ListOpen returns waiting sessions for the filter that participant could join.
func (s *Service) ListOpen(ctx context.Context, req ListOpenRequest) ([]domain.Session, error) {
	if err := catalog.ValidateFilter(req.Filter); err != nil {
		return nil, err
	}

	sessions, err := s.store.FindWaiting(ctx, req.Filter, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("match: find waiting sessions: %w", err)
	}

	open := make([]domain.Session, 0, len(sessions))
	for _, ss := range sessions {
		if !ss.HasPlayer(req.ParticipantID) {
			open = append(open, ss)
		}
	}

	return open, nil
}
