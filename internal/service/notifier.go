package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// CompletionNotifier is told when an interview reaches its terminal state.
type CompletionNotifier interface {
	InterviewCompleted(ctx context.Context, session models.Session) error
}

// CompletedSubject is the subject completed-interview events are published on.
const CompletedSubject = "intervo.interview.completed"

// NATSNotifier publishes interview completion events for downstream
// consumers (reporting, ATS sync).
type NATSNotifier struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// NewNATSNotifier connects to the NATS server at the given URL.
func NewNATSNotifier(url string, logger zerolog.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url, nats.Name("intervo-api"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSNotifier{
		conn:   conn,
		logger: logger.With().Str("component", "nats_notifier").Logger(),
	}, nil
}

type completedEvent struct {
	SessionID         string  `json:"session_id"`
	Role              string  `json:"role"`
	Company           string  `json:"company"`
	TotalScore        float64 `json:"total_score"`
	HiringProbability float64 `json:"hiring_probability,omitempty"`
}

// InterviewCompleted publishes the completion event. Publishing is best
// effort from the engine's point of view; failures are the caller's to log.
func (n *NATSNotifier) InterviewCompleted(_ context.Context, session models.Session) error {
	event := completedEvent{
		SessionID:  session.ID,
		Role:       session.Role,
		Company:    session.Company,
		TotalScore: session.TotalScore,
	}
	if session.Report != nil {
		event.HiringProbability = session.Report.HiringProbability
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := n.conn.Publish(CompletedSubject, payload); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}

	n.logger.Info().Str("session_id", session.ID).Msg("completion event published")
	return nil
}

// Close drains the underlying connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
