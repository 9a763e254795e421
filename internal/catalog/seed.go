package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/victornm/duelquiz/internal/domain"
)

//go:embed seed.json
var defaultSeed []byte

type seedDocument struct {
	Questions []domain.Question `json:"questions"`
}

// DefaultSeed returns the built-in question set.
func DefaultSeed() ([]domain.Question, error) {
	return decodeSeed(defaultSeed)
}

// ReadSeed parses a seed document of the form {"questions": [...]}.
func ReadSeed(r io.Reader) ([]domain.Question, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return decodeSeed(b)
}

func decodeSeed(b []byte) ([]domain.Question, error) {
	var doc seedDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return doc.Questions, nil
}

func encodeQuestion(q domain.Question) ([]byte, error) {
	return json.Marshal(q)
}

func decodeQuestion(b []byte) (domain.Question, error) {
	var q domain.Question
	err := json.Unmarshal(b, &q)
	return q, err
}
