package inprocess

import (
	"context"

	"curricula/domain/core/aggregates"
	"curricula/domain/events"
	"curricula/pkg/observability"
)

// MetricsSubscriber keeps the domain gauges current by observing the event
// stream instead of threading the metrics bundle through every service.
type MetricsSubscriber struct {
	graph   *aggregates.ConceptGraph
	metrics *observability.Metrics
}

// NewMetricsSubscriber creates a metrics subscriber
func NewMetricsSubscriber(graph *aggregates.ConceptGraph, metrics *observability.Metrics) *MetricsSubscriber {
	return &MetricsSubscriber{
		graph:   graph,
		metrics: metrics,
	}
}

// Register subscribes the handler to every event type it tracks.
func (s *MetricsSubscriber) Register(bus *EventBus) error {
	for _, eventType := range []string{
		"graph.updated",
		"mastery.attempt_recorded",
		"planner.curriculum_replanned",
		"energy.weights_published",
		"trajectory.closed",
	} {
		if err := bus.Subscribe(eventType, s); err != nil {
			return err
		}
	}
	return nil
}

// CanHandle implements ports.EventHandler
func (s *MetricsSubscriber) CanHandle(eventType string) bool {
	switch eventType {
	case "graph.updated", "mastery.attempt_recorded", "planner.curriculum_replanned",
		"energy.weights_published", "trajectory.closed":
		return true
	}
	return false
}

// Handle implements ports.EventHandler
func (s *MetricsSubscriber) Handle(ctx context.Context, event events.DomainEvent) error {
	switch e := event.(type) {
	case events.GraphUpdated:
		s.metrics.GraphVersion.Set(float64(e.GraphVersion))
		s.metrics.GraphConcepts.Set(float64(s.graph.ConceptCount()))
	case events.AttemptRecorded:
		s.metrics.AttemptsRecorded.Inc()
	case events.CurriculumReplanned:
		s.metrics.PlansInstalled.Inc()
	case events.WeightsPublished:
		s.metrics.WeightVersion.Set(float64(e.WeightVersion))
	case events.TrajectoryClosed:
		s.metrics.TrajectoriesClosed.Inc()
	}
	return nil
}
