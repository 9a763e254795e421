package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/duelquiz/internal/domain"
)

func TestSession_Opponent(t *testing.T) {
	tests := map[string]struct {
		players []string
		player  string

		want string
	}{
		"first player": {
			players: []string{"x", "y"}, player: "x",
			want: "y",
		},
		"second player": {
			players: []string{"x", "y"}, player: "y",
			want: "x",
		},
		"waiting session": {
			players: []string{"x"}, player: "x",
			want: "",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ss := &domain.Session{Players: tc.players}
			assert.Equal(t, tc.want, ss.Opponent(tc.player))
		})
	}
}

func TestSession_Clone(t *testing.T) {
	a := "A"
	ss := &domain.Session{
		SessionID:   "s1",
		Players:     []string{"x", "y"},
		QuestionIDs: []string{"q1"},
		Answers:     map[string]map[string]*string{"x": {"q1": &a}, "y": {"q1": nil}},
		Scores:      map[string]int{"x": 1},
	}

	c := ss.Clone()
	assert.Equal(t, ss, c)

	c.Players[0] = "z"
	c.Scores["x"] = 9
	*c.Answers["x"]["q1"] = "B"
	c.Answers["y"]["q2"] = nil

	assert.Equal(t, []string{"x", "y"}, ss.Players)
	assert.Equal(t, 1, ss.Scores["x"])
	assert.Equal(t, "A", *ss.Answers["x"]["q1"])
	assert.Len(t, ss.Answers["y"], 1)
}
