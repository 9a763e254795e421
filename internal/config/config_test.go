package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/duelquiz/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Catalog struct {
			Addrs  []string
			Prefix string
		}
	}

	Game struct {
		QuestionCount int `mapstructure:"question_count"`
	}
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		arrange func(t *testing.T) string
		assert  func(t *testing.T, c testConfig, err error)
	}{
		"should keep defaults missing from the file": {
			arrange: func(t *testing.T) string {
				return writeFile(t, "http:\n  port: 9000\n")
			},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(9000), c.HTTP.Port)
				assert.Equal(t, "duelquiz:catalog", c.Redis.Catalog.Prefix)
				assert.Equal(t, 5, c.Game.QuestionCount)
			},
		},
		"should read nested and snake case keys": {
			arrange: func(t *testing.T) string {
				return writeFile(t, "redis:\n  catalog:\n    addrs: [\"redis:6379\"]\ngame:\n  question_count: 7\n")
			},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"redis:6379"}, c.Redis.Catalog.Addrs)
				assert.Equal(t, 7, c.Game.QuestionCount)
			},
		},
		"should let the environment override the file": {
			arrange: func(t *testing.T) string {
				t.Setenv("HTTP_PORT", "9100")
				return writeFile(t, "http:\n  port: 9000\n")
			},
			assert: func(t *testing.T, c testConfig, err error) {
				require.NoError(t, err)
				assert.Equal(t, int32(9100), c.HTTP.Port)
			},
		},
		"should fail on a missing file": {
			arrange: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.yaml")
			},
			assert: func(t *testing.T, c testConfig, err error) {
				assert.Error(t, err)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var c testConfig
			c.HTTP.Port = 8080
			c.Redis.Catalog.Prefix = "duelquiz:catalog"
			c.Game.QuestionCount = 5

			file := tc.arrange(t)
			err := config.Load(file, &c)
			tc.assert(t, c, err)
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
