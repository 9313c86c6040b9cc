package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/pkg/ai"
)

// AllowedDimensions is the closed set of performance dimension names every
// report must contain, no more and no fewer.
var AllowedDimensions = [4]string{
	"Technical Depth",
	"Communication",
	"Problem Solving",
	"System Design",
}

// Deterministic fallback constants.
const (
	fallbackJustification = "Deterministic fallback evaluation"
	fallbackSuggestion    = "Manual review recommended"
	fallbackConfidence    = 0.3
)

// scoreTolerance is the maximum allowed gap between the claimed overall
// score and the recomputed dimension mean.
const scoreTolerance = 0.5

// reportSchema rejects undeclared fields anywhere in the aggregate payload
// before the decoder ever sees it. Confidence is accepted but optional; some
// model deployments include it.
const reportSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["overall_score", "performance_dimensions", "hiring_probability", "improvement_suggestions"],
  "properties": {
    "overall_score": {"type": "number", "minimum": 0, "maximum": 100},
    "performance_dimensions": {
      "type": "array",
      "minItems": 4,
      "maxItems": 4,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "score", "justification"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "score": {"type": "number", "minimum": 0, "maximum": 100},
          "justification": {"type": "string", "minLength": 1}
        }
      }
    },
    "hiring_probability": {"type": "number", "minimum": 0, "maximum": 100},
    "improvement_suggestions": {"type": "array", "items": {"type": "string"}},
    "per_question_assessment": {"type": "array"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var compiledReportSchema = jsonschema.MustCompileString("interview_report.json", reportSchema)

// InterviewReportService produces the whole-interview evaluation from the
// per-question history, with bounded retries and a deterministic fallback.
type InterviewReportService struct {
	llm        ai.LLM
	maxRetries int
	logger     zerolog.Logger
}

// NewInterviewReportService constructs an interview report service.
func NewInterviewReportService(llm ai.LLM, maxRetries int, logger zerolog.Logger) *InterviewReportService {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &InterviewReportService{
		llm:        llm,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "interview_report_service").Logger(),
	}
}

type reportPayload struct {
	OverallScore           float64                       `json:"overall_score"`
	PerformanceDimensions  []models.PerformanceDimension `json:"performance_dimensions"`
	HiringProbability      float64                       `json:"hiring_probability"`
	ImprovementSuggestions []string                      `json:"improvement_suggestions"`
	PerQuestionAssessment  []models.QuestionEvaluation   `json:"per_question_assessment,omitempty"`
	Confidence             float64                       `json:"confidence,omitempty"`
}

// Build produces the final report. The identical prompt is re-issued on each
// failed validation; after the budget is exhausted the deterministic
// fallback is returned. Build never fails.
func (s *InterviewReportService) Build(ctx context.Context, evaluations []models.QuestionEvaluation, interviewType, role string) (models.InterviewEvaluation, error) {
	prompt := buildReportPrompt(evaluations, interviewType, role)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		s.logger.Info().
			Int("attempt", attempt).
			Str("interview_type", interviewType).
			Str("role", role).
			Msg("report attempt")

		response, err := s.llm.Invoke(ctx, prompt)
		if err == nil {
			report, validationErr := s.parseReport(response.Content, evaluations)
			if validationErr == nil {
				s.logger.Info().
					Int("attempt", attempt).
					Float64("overall_score", report.OverallScore).
					Float64("confidence", report.Confidence).
					Msg("report built")
				return report, nil
			}
			err = validationErr
		}

		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("report retry")
	}

	s.logger.Error().Msg("report fallback triggered")
	return s.Fallback(evaluations), nil
}

func (s *InterviewReportService) parseReport(content string, evaluations []models.QuestionEvaluation) (models.InterviewEvaluation, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return models.InterviewEvaluation{}, err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.InterviewEvaluation{}, fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	if err := compiledReportSchema.Validate(doc); err != nil {
		return models.InterviewEvaluation{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	var payload reportPayload
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return models.InterviewEvaluation{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	if err := validateDimensionSet(payload.PerformanceDimensions); err != nil {
		return models.InterviewEvaluation{}, err
	}

	computed := dimensionMean(payload.PerformanceDimensions)
	if math.Abs(computed-payload.OverallScore) > scoreTolerance {
		return models.InterviewEvaluation{}, fmt.Errorf("%w: claimed overall score %.2f disagrees with dimension mean %.2f",
			ErrInconsistentPayload, payload.OverallScore, computed)
	}

	return s.normalize(payload, evaluations), nil
}

// normalize replaces the model's self-reported aggregates with values
// recomputed from the dimensions, so two reports with identical dimensions
// can never disagree.
func (s *InterviewReportService) normalize(payload reportPayload, evaluations []models.QuestionEvaluation) models.InterviewEvaluation {
	overall := dimensionMean(payload.PerformanceDimensions)

	assessment := payload.PerQuestionAssessment
	if len(assessment) == 0 {
		assessment = evaluations
	}

	return models.InterviewEvaluation{
		OverallScore:           overall,
		PerformanceDimensions:  payload.PerformanceDimensions,
		HiringProbability:      HiringProbability(overall),
		Confidence:             dimensionConfidence(payload.PerformanceDimensions),
		PerQuestionAssessment:  assessment,
		ImprovementSuggestions: payload.ImprovementSuggestions,
	}
}

// Fallback is the deterministic terminal outcome once all retries failed.
// It always satisfies the report invariants and never fails.
func (s *InterviewReportService) Fallback(evaluations []models.QuestionEvaluation) models.InterviewEvaluation {
	overall := 50.0
	if len(evaluations) > 0 {
		sum := 0.0
		for _, ev := range evaluations {
			sum += ev.Score
		}
		overall = roundTo(sum/float64(len(evaluations)), 1)
	}

	dimensions := make([]models.PerformanceDimension, 0, len(AllowedDimensions))
	for _, name := range AllowedDimensions {
		dimensions = append(dimensions, models.PerformanceDimension{
			Name:          name,
			Score:         overall,
			Justification: fallbackJustification,
		})
	}

	return models.InterviewEvaluation{
		OverallScore:           overall,
		PerformanceDimensions:  dimensions,
		HiringProbability:      HiringProbability(overall),
		Confidence:             fallbackConfidence,
		PerQuestionAssessment:  evaluations,
		ImprovementSuggestions: []string{fallbackSuggestion},
	}
}

func validateDimensionSet(dimensions []models.PerformanceDimension) error {
	if len(dimensions) != len(AllowedDimensions) {
		return fmt.Errorf("%w: expected exactly %d performance dimensions", ErrSchemaViolation, len(AllowedDimensions))
	}

	seen := make(map[string]bool, len(dimensions))
	for _, d := range dimensions {
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate performance dimension %q", ErrSchemaViolation, d.Name)
		}
		seen[d.Name] = true
	}

	for _, name := range AllowedDimensions {
		if !seen[name] {
			return fmt.Errorf("%w: missing performance dimension %q", ErrSchemaViolation, name)
		}
	}

	return nil
}

// dimensionMean is the bounded mean of the dimension scores, rounded to one
// decimal.
func dimensionMean(dimensions []models.PerformanceDimension) float64 {
	if len(dimensions) == 0 {
		return 0
	}

	sum := 0.0
	for _, d := range dimensions {
		sum += d.Score
	}
	mean := sum / float64(len(dimensions))
	return roundTo(math.Max(0, math.Min(100, mean)), 1)
}

// dimensionConfidence decreases monotonically with the population variance
// of the dimension scores. Fewer than two distinct values yield the neutral
// default.
func dimensionConfidence(dimensions []models.PerformanceDimension) float64 {
	distinct := make(map[float64]bool, len(dimensions))
	for _, d := range dimensions {
		distinct[d.Score] = true
	}
	if len(distinct) < 2 {
		return 0.5
	}

	mean := 0.0
	for _, d := range dimensions {
		mean += d.Score
	}
	mean /= float64(len(dimensions))

	variance := 0.0
	for _, d := range dimensions {
		variance += (d.Score - mean) * (d.Score - mean)
	}
	variance /= float64(len(dimensions))

	return roundTo(math.Max(0, 1-variance/2500), 2)
}

// HiringProbability maps an overall score onto the fixed five-band table.
func HiringProbability(score float64) float64 {
	switch {
	case score < 50:
		return 0
	case score < 65:
		return 30
	case score < 75:
		return 55
	case score < 85:
		return 75
	default:
		return 90
	}
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}

// renderReportSummary is a small convenience used by logging and events.
func renderReportSummary(report models.InterviewEvaluation) string {
	names := make([]string, 0, len(report.PerformanceDimensions))
	for _, d := range report.PerformanceDimensions {
		names = append(names, fmt.Sprintf("%s=%.1f", d.Name, d.Score))
	}
	return fmt.Sprintf("overall=%.1f hiring=%.0f%% %s", report.OverallScore, report.HiringProbability, strings.Join(names, " "))
}
