package server

import (
	"context"
	"fmt"
	"io"

	"github.com/victornm/duelquiz/internal/catalog"
	"github.com/victornm/duelquiz/internal/domain"
)

// Seed loads questions into the catalog configured in c. Questions are read
// from r, or from the built-in set when r is nil. Existing questions with the
// same id are overwritten.
func Seed(ctx context.Context, c Config, r io.Reader) (int, error) {
	var (
		qs  []domain.Question
		err error
	)
	if r == nil {
		qs, err = catalog.DefaultSeed()
	} else {
		qs, err = catalog.ReadSeed(r)
	}
	if err != nil {
		return 0, err
	}

	rc, err := connectRedis(ctx, c.Redis.Catalog)
	if err != nil {
		return 0, fmt.Errorf("seed: connect catalog: %w", err)
	}
	defer rc.Close()

	loaded, err := catalog.NewService(catalog.Config{
		Redis:  rc,
		Prefix: c.Redis.Catalog.Prefix,
	}).Load(ctx, qs)
	if err != nil {
		return 0, err
	}

	return len(loaded), nil
}
