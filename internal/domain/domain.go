package domain

import (
	"slices"
	"time"
)

// MaxPlayers is the number of participants in a duel.
const MaxPlayers = 2

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Filter narrows the catalog a session's questions are sampled from.
// Empty fields match any value.
type Filter struct {
	Category   string `json:"category,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Key identifies the question pool of the filter.
func (f Filter) Key() string {
	c, d := f.Category, f.Difficulty
	if c == "" {
		c = "*"
	}
	if d == "" {
		d = "*"
	}
	return c + "|" + d
}

type Question struct {
	QuestionID    string   `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
}

// IsCorrect reports whether choice matches the correct answer. A nil choice
// means the player ran out of time and is never correct.
func (q Question) IsCorrect(choice *string) bool {
	return choice != nil && *choice == q.CorrectAnswer
}

// Session is a two-player match over a fixed question sequence.
type Session struct {
	SessionID   string                        `json:"session_id"`
	Filter      Filter                        `json:"filter"`
	Players     []string                      `json:"players"`
	QuestionIDs []string                      `json:"question_ids"`
	Status      Status                        `json:"status"`
	Answers     map[string]map[string]*string `json:"answers"`
	Scores      map[string]int                `json:"scores"`
	Winner      string                        `json:"winner,omitempty"`
	IsDraw      bool                          `json:"is_draw"`
	CreatedAt   time.Time                     `json:"created_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

func (s *Session) HasPlayer(p string) bool {
	return slices.Contains(s.Players, p)
}

func (s *Session) HasQuestion(q string) bool {
	return slices.Contains(s.QuestionIDs, q)
}

// Opponent returns the other player, or an empty string while waiting.
func (s *Session) Opponent(p string) string {
	for _, o := range s.Players {
		if o != p {
			return o
		}
	}
	return ""
}

// Answered returns the recorded choice of p for q and whether one exists.
func (s *Session) Answered(p, q string) (*string, bool) {
	c, ok := s.Answers[p][q]
	return c, ok
}

// AllAnswered reports whether every player has answered every question.
func (s *Session) AllAnswered() bool {
	if len(s.Players) != MaxPlayers {
		return false
	}
	for _, p := range s.Players {
		if len(s.Answers[p]) != len(s.QuestionIDs) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy sharing no maps or slices with s. Events handed
// to asynchronous handlers carry a clone.
func (s *Session) Clone() *Session {
	c := *s
	c.Players = slices.Clone(s.Players)
	c.QuestionIDs = slices.Clone(s.QuestionIDs)
	c.Scores = make(map[string]int, len(s.Scores))
	for p, sc := range s.Scores {
		c.Scores[p] = sc
	}
	c.Answers = make(map[string]map[string]*string, len(s.Answers))
	for p, as := range s.Answers {
		m := make(map[string]*string, len(as))
		for q, ch := range as {
			if ch != nil {
				v := *ch
				ch = &v
			}
			m[q] = ch
		}
		c.Answers[p] = m
	}
	return &c
}
