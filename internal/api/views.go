package api

import (
	"encoding/json"
	"time"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/notify"
)

type (
	// Question is what players see of a catalog question: everything but the answer.
	Question struct {
		ID         string   `json:"id"`
		Text       string   `json:"question"`
		Options    []string `json:"options"`
		Category   string   `json:"category"`
		Difficulty string   `json:"difficulty"`
	}

	// Session is a player's view of a session. Only the viewer's own choices
	// are included; the opponent's progress is reported as a count.
	Session struct {
		SessionID   string             `json:"session_id"`
		Filter      domain.Filter      `json:"filter"`
		Players     []string           `json:"players"`
		QuestionIDs []string           `json:"question_ids"`
		Status      domain.Status      `json:"status"`
		Scores      map[string]int     `json:"scores"`
		Answered    map[string]int     `json:"answered"`
		Answers     map[string]*string `json:"answers,omitempty"`
		Winner      string             `json:"winner,omitempty"`
		IsDraw      bool               `json:"is_draw"`
		CreatedAt   time.Time          `json:"created_at"`
		UpdatedAt   time.Time          `json:"updated_at"`
	}

	Event struct {
		Event     string          `json:"event"`
		SessionID string          `json:"session_id"`
		Data      json.RawMessage `json:"data"`
	}
)

type (
	FindOrCreateRequest struct {
		Filter domain.Filter `json:"filter"`
	}

	MatchResponse struct {
		Session   *Session   `json:"session"`
		Questions []Question `json:"questions"`
		Created   bool       `json:"created"`
	}

	ListOpenRequest struct {
		Filter domain.Filter `json:"filter"`
	}

	ListOpenResponse struct {
		Sessions []*Session `json:"sessions"`
	}

	JoinRequest struct {
		SessionID string `json:"session_id"`
	}

	SubmitAnswerRequest struct {
		SessionID  string `json:"session_id"`
		QuestionID string `json:"question_id"`
		// Choice is null when the player's time ran out.
		Choice *string `json:"choice"`
	}

	SubmitAnswerResponse struct {
		Accepted         bool `json:"accepted"`
		Correct          bool `json:"correct"`
		SessionCompleted bool `json:"session_completed"`
	}

	GetSessionRequest struct {
		SessionID string `json:"session_id"`
	}

	GetSessionResponse struct {
		Session   *Session   `json:"session"`
		Questions []Question `json:"questions"`
	}

	EventsRequest struct {
		SessionID string `json:"session_id"`
	}
)

func toQuestions(qs []domain.Question) []Question {
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, Question{
			ID:         q.QuestionID,
			Text:       q.Text,
			Options:    q.Options,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		})
	}
	return out
}

func toSession(ss *domain.Session, viewer string) *Session {
	s := &Session{
		SessionID:   ss.SessionID,
		Filter:      ss.Filter,
		Players:     ss.Players,
		QuestionIDs: ss.QuestionIDs,
		Status:      ss.Status,
		Scores:      ss.Scores,
		Answered:    make(map[string]int, len(ss.Players)),
		Answers:     ss.Answers[viewer],
		Winner:      ss.Winner,
		IsDraw:      ss.IsDraw,
		CreatedAt:   ss.CreatedAt,
		UpdatedAt:   ss.UpdatedAt,
	}

	for _, p := range ss.Players {
		s.Answered[p] = len(ss.Answers[p])
	}

	return s
}

func toEvent(n notify.Notification) *Event {
	return &Event{
		Event:     n.Event,
		SessionID: n.SessionID,
		Data:      n.Data,
	}
}
