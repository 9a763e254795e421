package telemetry_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/duelquiz/internal/telemetry"
)

func TestNewLogger(t *testing.T) {
	tests := map[string]struct {
		level   string
		format  string
		wantErr bool
	}{
		"json":           {level: "info", format: "json"},
		"text":           {level: "debug", format: "text"},
		"unknown level":  {level: "loud", format: "json", wantErr: true},
		"unknown format": {level: "info", format: "xml", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var b strings.Builder
			l, err := telemetry.NewLogger(&b, tc.level, tc.format)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			l.Info("hello")
			assert.Contains(t, b.String(), "hello")
		})
	}
}
