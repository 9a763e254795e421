package telemetry_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/event"
	"github.com/victornm/duelquiz/internal/telemetry"
)

func TestMetrics_Subscribe(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	eb := event.NewBus()

	telemetry.NewMetrics(reg).Subscribe(eb)

	eb.Publish(ctx, domain.EventSessionCreated{})
	eb.Publish(ctx, domain.EventSessionCreated{})
	eb.Publish(ctx, domain.EventSessionJoined{Player: "p2"})
	eb.Publish(ctx, domain.EventAnswerRecorded{Correct: true})
	eb.Publish(ctx, domain.EventAnswerRecorded{Correct: true})
	eb.Publish(ctx, domain.EventAnswerRecorded{})
	eb.Publish(ctx, domain.EventAnswerRecorded{TimedOut: true})
	eb.Publish(ctx, domain.EventSessionCompleted{Session: domain.Session{IsDraw: true}})
	eb.Publish(ctx, domain.EventSessionCompleted{Session: domain.Session{Winner: "p1"}})
	eb.Stop()

	const want = `
# HELP duelquiz_answers_total Accepted answers by result.
# TYPE duelquiz_answers_total counter
duelquiz_answers_total{result="correct"} 2
duelquiz_answers_total{result="incorrect"} 1
duelquiz_answers_total{result="timeout"} 1
# HELP duelquiz_sessions_completed_total Completed sessions by outcome.
# TYPE duelquiz_sessions_completed_total counter
duelquiz_sessions_completed_total{outcome="draw"} 1
duelquiz_sessions_completed_total{outcome="win"} 1
# HELP duelquiz_sessions_created_total Sessions opened by matchmaking.
# TYPE duelquiz_sessions_created_total counter
duelquiz_sessions_created_total 2
# HELP duelquiz_sessions_joined_total Sessions that found an opponent.
# TYPE duelquiz_sessions_joined_total counter
duelquiz_sessions_joined_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want)))
}
