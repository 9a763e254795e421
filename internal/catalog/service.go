package catalog

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/errors"
)

var (
	Categories   = []string{"Computer Science", "Databases", "Web Development", "Artificial Intelligence", "Mathematics", "Physics"}
	Difficulties = []string{"Easy", "Medium", "Hard"}
)

const optionCount = 4

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Service gives read access to the question bank kept in Redis.
//
// Every question is a JSON string key. For each filter combination a question
// matches (any/any, category/any, any/difficulty, category/difficulty) its id is
// added to a set, so sampling for a filter is a single SRANDMEMBER.
type Service struct {
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	return &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// ValidateFilter rejects categories and difficulties the catalog does not know.
func ValidateFilter(f domain.Filter) error {
	if f.Category != "" && !slices.Contains(Categories, f.Category) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown category %q", f.Category))
	}
	if f.Difficulty != "" && !slices.Contains(Difficulties, f.Difficulty) {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown difficulty %q", f.Difficulty))
	}
	return nil
}

// SampleQuestions returns exactly count distinct random questions matching f.
func (s *Service) SampleQuestions(ctx context.Context, f domain.Filter, count int) ([]domain.Question, error) {
	if count <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("question count must be positive, got %d", count))
	}

	if err := ValidateFilter(f); err != nil {
		return nil, err
	}

	size, err := s.Count(ctx, f)
	if err != nil {
		return nil, err
	}

	if size < int64(count) {
		return nil, errors.Newf(errors.ReasonInsufficientCatalog,
			"not enough questions for category=%q difficulty=%q: have %d, need %d", f.Category, f.Difficulty, size, count)
	}

	ids, err := s.redis.SRandMemberN(ctx, s.getIndexKey(f), int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: sample: %w", err)
	}

	if len(ids) < count {
		return nil, errors.Newf(errors.ReasonInsufficientCatalog,
			"not enough questions for category=%q difficulty=%q: sampled %d, need %d", f.Category, f.Difficulty, len(ids), count)
	}

	return s.FetchByIDs(ctx, ids)
}

// FetchByIDs returns the questions in the order of ids.
func (s *Service) FetchByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.getQuestionKey(id))
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch: %w", err)
	}

	qs := make([]domain.Question, 0, len(ids))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, errors.Newf(errors.ReasonNotFound, "question not found: %s", ids[i])
		}

		q, err := decodeQuestion([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("catalog: decode question %s: %w", ids[i], err)
		}
		qs = append(qs, q)
	}

	return qs, nil
}

// Count returns the size of the question pool matching f.
func (s *Service) Count(ctx context.Context, f domain.Filter) (int64, error) {
	n, err := s.redis.SCard(ctx, s.getIndexKey(f)).Result()
	if err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// Load writes questions into the catalog, overwriting questions with the same id.
// Questions without an id get a new one. It returns the stored questions.
func (s *Service) Load(ctx context.Context, qs []domain.Question) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if q.QuestionID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("generate question ID: %w", err)
			}
			q.QuestionID = id.String()
		}

		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}

	stale, err := s.previous(ctx, out)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, q := range out {
			b, err := encodeQuestion(q)
			if err != nil {
				return err
			}

			// A reloaded question leaves the pools of its old category and difficulty.
			if old, ok := stale[q.QuestionID]; ok {
				for _, f := range filtersOf(old) {
					p.SRem(ctx, s.getIndexKey(f), q.QuestionID)
				}
			}

			p.Set(ctx, s.getQuestionKey(q.QuestionID), b, 0)
			for _, f := range filtersOf(q) {
				p.SAdd(ctx, s.getIndexKey(f), q.QuestionID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}

	return out, nil
}

// previous returns the stored versions of qs that already exist, by id.
func (s *Service) previous(ctx context.Context, qs []domain.Question) (map[string]domain.Question, error) {
	if len(qs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(qs))
	for i, q := range qs {
		keys[i] = s.getQuestionKey(q.QuestionID)
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog: read stored questions: %w", err)
	}

	stored := make(map[string]domain.Question)
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}

		q, err := decodeQuestion([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("catalog: read stored questions: %w", err)
		}
		stored[q.QuestionID] = q
	}

	return stored, nil
}

// Seed loads qs only when the catalog is empty and returns how many were loaded.
func (s *Service) Seed(ctx context.Context, qs []domain.Question) (int, error) {
	n, err := s.Count(ctx, domain.Filter{})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		return 0, nil
	}

	loaded, err := s.Load(ctx, qs)
	if err != nil {
		return 0, err
	}

	return len(loaded), nil
}

func validateQuestion(q domain.Question) error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question %s: "+format, append([]any{q.QuestionID}, args...)...))
	}

	switch {
	case q.Text == "":
		return invalid("text is required")
	case len(q.Options) != optionCount:
		return invalid("must have exactly %d options, got %d", optionCount, len(q.Options))
	case !slices.Contains(q.Options, q.CorrectAnswer):
		return invalid("correct answer %q is not one of the options", q.CorrectAnswer)
	case !slices.Contains(Categories, q.Category):
		return invalid("unknown category %q", q.Category)
	case !slices.Contains(Difficulties, q.Difficulty):
		return invalid("unknown difficulty %q", q.Difficulty)
	}

	return nil
}

func filtersOf(q domain.Question) []domain.Filter {
	return []domain.Filter{
		{},
		{Category: q.Category},
		{Difficulty: q.Difficulty},
		{Category: q.Category, Difficulty: q.Difficulty},
	}
}

func (s *Service) getQuestionKey(id string) string {
	return fmt.Sprintf("%s:question:%s", s.prefix, id)
}

func (s *Service) getIndexKey(f domain.Filter) string {
	return fmt.Sprintf("%s:questions:%s", s.prefix, f.Key())
}
