// Package testkit builds the Redis-backed collaborators used across package tests.
package testkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/duelquiz/internal/catalog"
	"github.com/victornm/duelquiz/internal/domain"
)

// Redis starts an in-memory Redis server for the duration of the test.
func Redis(t *testing.T) redis.UniversalClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")
	return rc
}

// Questions returns n Easy "Computer Science" questions q1..qn whose correct
// answer is always "A".
func Questions(n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		qs = append(qs, domain.Question{
			QuestionID:    fmt.Sprintf("q%d", i),
			Text:          fmt.Sprintf("question %d", i),
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "A",
			Category:      "Computer Science",
			Difficulty:    "Easy",
		})
	}
	return qs
}

// Catalog returns a catalog on rc preloaded with qs.
func Catalog(t *testing.T, rc redis.UniversalClient, qs []domain.Question) *catalog.Service {
	t.Helper()

	c := catalog.NewService(catalog.Config{
		Redis:  rc,
		Prefix: "test:catalog",
	})

	_, err := c.Load(context.Background(), qs)
	require.NoError(t, err)
	return c
}

// Choice returns a pointer to s, for building answers.
func Choice(s string) *string {
	return &s
}
