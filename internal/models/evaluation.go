package models

import (
	"errors"
	"fmt"
	"strings"
)

// PassingScore is the per-question threshold for a passed evaluation.
const PassingScore = 60.0

// QuestionEvaluation is the graded result of one written answer.
// At most one evaluation exists per question id within a session.
type QuestionEvaluation struct {
	QuestionID string   `json:"question_id"`
	Score      float64  `json:"score"`
	MaxScore   float64  `json:"max_score"`
	Feedback   string   `json:"feedback"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Passed     bool     `json:"passed"`
}

// ErrInvalidEvaluation indicates an evaluation violates its constraints.
var ErrInvalidEvaluation = errors.New("invalid evaluation")

// NewQuestionEvaluation builds a validated per-question evaluation.
// Passed is derived from the score so the two can never disagree.
func NewQuestionEvaluation(questionID string, score float64, feedback string, strengths, weaknesses []string) (QuestionEvaluation, error) {
	if strings.TrimSpace(questionID) == "" {
		return QuestionEvaluation{}, fmt.Errorf("%w: question id is required", ErrInvalidEvaluation)
	}
	if score < 0 || score > 100 {
		return QuestionEvaluation{}, fmt.Errorf("%w: score must be between 0 and 100", ErrInvalidEvaluation)
	}
	if strings.TrimSpace(feedback) == "" {
		return QuestionEvaluation{}, fmt.Errorf("%w: feedback is required", ErrInvalidEvaluation)
	}

	return QuestionEvaluation{
		QuestionID: questionID,
		Score:      score,
		MaxScore:   100,
		Feedback:   feedback,
		Strengths:  strengths,
		Weaknesses: weaknesses,
		Passed:     score >= PassingScore,
	}, nil
}

// PerformanceDimension is one of the four fixed assessment axes of the
// whole-interview report.
type PerformanceDimension struct {
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// InterviewEvaluation is the whole-session aggregate report, produced once
// at or after termination.
type InterviewEvaluation struct {
	OverallScore           float64                `json:"overall_score"`
	PerformanceDimensions  []PerformanceDimension `json:"performance_dimensions"`
	HiringProbability      float64                `json:"hiring_probability"`
	Confidence             float64                `json:"confidence"`
	PerQuestionAssessment  []QuestionEvaluation   `json:"per_question_assessment"`
	ImprovementSuggestions []string               `json:"improvement_suggestions"`
}
