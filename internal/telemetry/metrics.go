package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/duelquiz/internal/domain"
	"github.com/victornm/duelquiz/internal/event"
)

const namespace = "duelquiz"

// Metrics counts game activity from domain events.
type Metrics struct {
	created   prometheus.Counter
	joined    prometheus.Counter
	answers   *prometheus.CounterVec
	completed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions opened by matchmaking.",
		}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_joined_total",
			Help:      "Sessions that found an opponent.",
		}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Accepted answers by result.",
		}, []string{"result"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Completed sessions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.created, m.joined, m.answers, m.completed)
	return m
}

// Subscribe feeds the counters from eb.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameSessionCreated, func(context.Context, event.Event) error {
		m.created.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionJoined, func(context.Context, event.Event) error {
		m.joined.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAnswerRecorded, func(_ context.Context, e event.Event) error {
		a := e.(domain.EventAnswerRecorded)

		result := "incorrect"
		switch {
		case a.TimedOut:
			result = "timeout"
		case a.Correct:
			result = "correct"
		}

		m.answers.WithLabelValues(result).Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameSessionCompleted, func(_ context.Context, e event.Event) error {
		outcome := "win"
		if e.(domain.EventSessionCompleted).Session.IsDraw {
			outcome = "draw"
		}

		m.completed.WithLabelValues(outcome).Inc()
		return nil
	})
}
