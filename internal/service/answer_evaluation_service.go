package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/pkg/ai"
)

// DefaultMaxRetries is the number of additional attempts after the first
// failed validation of an LLM response.
const DefaultMaxRetries = 2

// Validation failure taxonomy for LLM responses. These never escape the
// evaluation engines; they drive retries and end in the deterministic
// fallback.
var (
	ErrResponseParse       = errors.New("llm response is not valid json")
	ErrSchemaViolation     = errors.New("llm response violates the expected schema")
	ErrInconsistentPayload = errors.New("llm response is internally inconsistent")
)

// fallbackFeedback is the fixed feedback attached to the deterministic
// per-question fallback evaluation.
const fallbackFeedback = "Automatic fallback evaluation; manual review recommended."

// GradedAnswer is the evaluator's verdict for one written answer, including
// the follow-up decision the state machine acts on.
type GradedAnswer struct {
	Evaluation          models.QuestionEvaluation
	ClarificationNeeded bool
	FollowUpQuestion    string
}

// AnswerEvaluationService turns free-text LLM grading responses into valid
// QuestionEvaluations with bounded retries and a deterministic fallback.
type AnswerEvaluationService struct {
	llm        ai.LLM
	maxRetries int
	logger     zerolog.Logger
}

// NewAnswerEvaluationService constructs an answer evaluation service.
func NewAnswerEvaluationService(llm ai.LLM, maxRetries int, logger zerolog.Logger) *AnswerEvaluationService {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &AnswerEvaluationService{
		llm:        llm,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "answer_evaluation_service").Logger(),
	}
}

type evaluationDecision struct {
	Score               float64  `json:"score"`
	Feedback            string   `json:"feedback"`
	ClarificationNeeded bool     `json:"clarification_needed"`
	FollowUpQuestion    *string  `json:"follow_up_question"`
	Strengths           []string `json:"strengths,omitempty"`
	Weaknesses          []string `json:"weaknesses,omitempty"`
}

// Evaluate grades a single written answer. It never returns an error for a
// misbehaving LLM: after the retry budget is exhausted the deterministic
// fallback evaluation is returned.
func (s *AnswerEvaluationService) Evaluate(ctx context.Context, question models.Question, answer models.Answer) (GradedAnswer, error) {
	prompt := buildEvaluationPrompt(question, answer)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		response, err := s.llm.Invoke(ctx, prompt)
		if err == nil {
			graded, validationErr := s.parseDecision(question.ID, response.Content)
			if validationErr == nil {
				s.logger.Info().
					Str("question_id", question.ID).
					Int("attempt", attempt).
					Float64("score", graded.Evaluation.Score).
					Msg("answer evaluated")
				return graded, nil
			}
			err = validationErr
		}

		s.logger.Warn().
			Err(err).
			Str("question_id", question.ID).
			Int("attempt", attempt).
			Msg("answer evaluation retry")
	}

	s.logger.Error().Str("question_id", question.ID).Msg("answer evaluation fallback triggered")
	return s.fallback(question), nil
}

func (s *AnswerEvaluationService) parseDecision(questionID, content string) (GradedAnswer, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return GradedAnswer{}, err
	}

	var decision evaluationDecision
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&decision); err != nil {
		return GradedAnswer{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	if decision.Score < 0 || decision.Score > 100 {
		return GradedAnswer{}, fmt.Errorf("%w: score out of range", ErrSchemaViolation)
	}
	if strings.TrimSpace(decision.Feedback) == "" {
		return GradedAnswer{}, fmt.Errorf("%w: feedback is empty", ErrSchemaViolation)
	}

	followUp := ""
	if decision.FollowUpQuestion != nil {
		followUp = strings.TrimSpace(*decision.FollowUpQuestion)
	}

	// Cross-field consistency: a clarification request must carry a follow-up
	// question, and a follow-up question implies a clarification request.
	if decision.ClarificationNeeded != (followUp != "") {
		return GradedAnswer{}, fmt.Errorf("%w: clarification flag and follow-up question disagree", ErrInconsistentPayload)
	}

	evaluation, err := models.NewQuestionEvaluation(questionID, decision.Score, decision.Feedback, decision.Strengths, decision.Weaknesses)
	if err != nil {
		return GradedAnswer{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	return GradedAnswer{
		Evaluation:          evaluation,
		ClarificationNeeded: decision.ClarificationNeeded,
		FollowUpQuestion:    followUp,
	}, nil
}

func (s *AnswerEvaluationService) fallback(question models.Question) GradedAnswer {
	evaluation, _ := models.NewQuestionEvaluation(question.ID, 50, fallbackFeedback, nil, nil)
	return GradedAnswer{Evaluation: evaluation}
}

// extractJSONObject returns the raw JSON document in the response. When the
// whole content is not valid JSON it falls back to the first balanced
// object span, so prose-wrapped responses still parse.
func extractJSONObject(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}

	start := strings.IndexByte(trimmed, '{')
	if start == -1 {
		return nil, fmt.Errorf("%w: no object found", ErrResponseParse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := trimmed[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, fmt.Errorf("%w: extracted span is not valid json", ErrResponseParse)
				}
				return json.RawMessage(candidate), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: unbalanced object", ErrResponseParse)
}
