package service_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/service"
)

func newReportService(llm *scriptedLLM) *service.InterviewReportService {
	return service.NewInterviewReportService(llm, service.DefaultMaxRetries, zerolog.New(io.Discard))
}

func sampleEvaluations(t *testing.T, scores ...float64) []models.QuestionEvaluation {
	t.Helper()
	evaluations := make([]models.QuestionEvaluation, 0, len(scores))
	for i, score := range scores {
		evaluation, err := models.NewQuestionEvaluation(fmt.Sprintf("q%d", i+1), score, "feedback", nil, nil)
		require.NoError(t, err)
		evaluations = append(evaluations, evaluation)
	}
	return evaluations
}

func reportJSON(overall float64, scores [4]float64) string {
	return fmt.Sprintf(`{
  "overall_score": %g,
  "performance_dimensions": [
    {"name": "Technical Depth", "score": %g, "justification": "Strong fundamentals."},
    {"name": "Communication", "score": %g, "justification": "Clear and structured."},
    {"name": "Problem Solving", "score": %g, "justification": "Methodical."},
    {"name": "System Design", "score": %g, "justification": "Knows the trade-offs."}
  ],
  "hiring_probability": 75,
  "improvement_suggestions": ["Practice capacity estimation"]
}`, overall, scores[0], scores[1], scores[2], scores[3])
}

func TestBuildAcceptsValidReportAndNormalizesAggregates(t *testing.T) {
	llm := &scriptedLLM{responses: []string{reportJSON(80, [4]float64{90, 80, 70, 80})}}
	svc := newReportService(llm)

	evaluations := sampleEvaluations(t, 80)
	report, err := svc.Build(context.Background(), evaluations, "technical", "Backend Engineer")
	require.NoError(t, err)

	require.Equal(t, 1, llm.calls)
	require.InDelta(t, 80, report.OverallScore, 1e-9)
	require.InDelta(t, 75, report.HiringProbability, 1e-9)
	require.Len(t, report.PerformanceDimensions, 4)
	// Population variance of {90,80,70,80} is 50, so 1 - 50/2500.
	require.InDelta(t, 0.98, report.Confidence, 1e-9)
	require.Equal(t, evaluations, report.PerQuestionAssessment)
}

func TestBuildRejectsDimensionsOutsideTheClosedSet(t *testing.T) {
	bad := `{
  "overall_score": 80,
  "performance_dimensions": [
    {"name": "Technical Depth", "score": 80, "justification": "x"},
    {"name": "Communication", "score": 80, "justification": "x"},
    {"name": "Problem Solving", "score": 80, "justification": "x"},
    {"name": "Creativity", "score": 80, "justification": "x"}
  ],
  "hiring_probability": 75,
  "improvement_suggestions": []
}`
	llm := &scriptedLLM{responses: []string{bad, bad, bad}}
	svc := newReportService(llm)

	report, err := svc.Build(context.Background(), sampleEvaluations(t, 80), "technical", "Backend Engineer")
	require.NoError(t, err)

	require.Equal(t, 3, llm.calls)
	require.Equal(t, "Deterministic fallback evaluation", report.PerformanceDimensions[0].Justification)
}

func TestBuildRejectsUndeclaredFields(t *testing.T) {
	bad := `{
  "overall_score": 80,
  "performance_dimensions": [
    {"name": "Technical Depth", "score": 80, "justification": "x"},
    {"name": "Communication", "score": 80, "justification": "x"},
    {"name": "Problem Solving", "score": 80, "justification": "x"},
    {"name": "System Design", "score": 80, "justification": "x"}
  ],
  "hiring_probability": 75,
  "improvement_suggestions": [],
  "vibes": "immaculate"
}`
	llm := &scriptedLLM{responses: []string{bad, bad, bad}}
	svc := newReportService(llm)

	report, err := svc.Build(context.Background(), sampleEvaluations(t, 80), "technical", "Backend Engineer")
	require.NoError(t, err)

	require.Equal(t, 3, llm.calls)
	require.InDelta(t, 0.3, report.Confidence, 1e-9)
}

func TestBuildRejectsInconsistentOverallScore(t *testing.T) {
	// Dimension mean is 80, claimed overall is 85: outside the tolerance.
	bad := reportJSON(85, [4]float64{80, 80, 80, 80})
	good := reportJSON(80.4, [4]float64{80, 80, 80, 80})
	llm := &scriptedLLM{responses: []string{bad, good}}
	svc := newReportService(llm)

	report, err := svc.Build(context.Background(), sampleEvaluations(t, 80), "technical", "Backend Engineer")
	require.NoError(t, err)

	// Second attempt is within tolerance; overall is still the recomputed mean.
	require.Equal(t, 2, llm.calls)
	require.InDelta(t, 80, report.OverallScore, 1e-9)
}

func TestFallbackAveragesPerQuestionScores(t *testing.T) {
	svc := newReportService(&scriptedLLM{})
	evaluations := sampleEvaluations(t, 60, 75)

	report := svc.Fallback(evaluations)

	require.InDelta(t, 67.5, report.OverallScore, 1e-9)
	require.InDelta(t, 55, report.HiringProbability, 1e-9)
	require.InDelta(t, 0.3, report.Confidence, 1e-9)
	require.Len(t, report.PerformanceDimensions, 4)
	for _, dimension := range report.PerformanceDimensions {
		require.InDelta(t, 67.5, dimension.Score, 1e-9)
		require.Equal(t, "Deterministic fallback evaluation", dimension.Justification)
	}
	require.Equal(t, []string{"Manual review recommended"}, report.ImprovementSuggestions)
}

func TestFallbackWithoutEvaluationsUsesNeutralScore(t *testing.T) {
	svc := newReportService(&scriptedLLM{})

	report := svc.Fallback(nil)

	require.InDelta(t, 50, report.OverallScore, 1e-9)
	require.InDelta(t, 30, report.HiringProbability, 1e-9)
}

func TestHiringProbabilityBands(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0, 0},
		{49.9, 0},
		{50, 30},
		{64.9, 30},
		{65, 55},
		{74.9, 55},
		{75, 75},
		{84.9, 75},
		{85, 90},
		{100, 90},
	}

	for _, tc := range cases {
		require.InDelta(t, tc.want, service.HiringProbability(tc.score), 1e-9, "score %.1f", tc.score)
	}
}

func TestConfidenceNeutralWhenScoresAreUniform(t *testing.T) {
	llm := &scriptedLLM{responses: []string{reportJSON(80, [4]float64{80, 80, 80, 80})}}
	svc := newReportService(llm)

	report, err := svc.Build(context.Background(), sampleEvaluations(t, 80), "technical", "Backend Engineer")
	require.NoError(t, err)

	require.InDelta(t, 0.5, report.Confidence, 1e-9)
}
