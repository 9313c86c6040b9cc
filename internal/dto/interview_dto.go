package dto

import "github.com/intervo-dev/intervo-go-api/internal/models"

// SetupInterviewRequest represents the payload for starting an interview.
type SetupInterviewRequest struct {
	Role          string `json:"role" validate:"required"`
	Company       string `json:"company" validate:"required"`
	Language      string `json:"language"`
	InterviewType string `json:"interview_type" validate:"required"`
	Area          string `json:"area"`
	Level         string `json:"level"`
	QuestionCount int    `json:"question_count" validate:"omitempty,min=1,max=20"`
}

// SubmitAnswerRequest represents the payload for answering the current question.
type SubmitAnswerRequest struct {
	Content string `json:"content" validate:"required,min=1"`
}

// QuestionResponse represents a question to API consumers. Reference
// solutions and expected outputs stay server side.
type QuestionResponse struct {
	ID         string `json:"id"`
	Area       string `json:"area"`
	Type       string `json:"type"`
	Prompt     string `json:"prompt"`
	Difficulty int    `json:"difficulty"`
}

// EvaluationResponse represents a graded written answer.
type EvaluationResponse struct {
	QuestionID string   `json:"question_id"`
	Score      float64  `json:"score"`
	MaxScore   float64  `json:"max_score"`
	Feedback   string   `json:"feedback"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	Passed     bool     `json:"passed"`
}

// ExecutionResponse represents a sandbox grading outcome.
type ExecutionResponse struct {
	QuestionID      string `json:"question_id"`
	ExecutionType   string `json:"execution_type"`
	Status          string `json:"status"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	PassedTests     int    `json:"passed_tests"`
	TotalTests      int    `json:"total_tests"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// SessionResponse represents an interview session to API consumers.
type SessionResponse struct {
	ID               string               `json:"id"`
	Role             string               `json:"role"`
	Company          string               `json:"company"`
	Language         string               `json:"language"`
	InterviewType    string               `json:"interview_type"`
	Progress         string               `json:"progress"`
	AwaitingAnswer   bool                 `json:"awaiting_answer"`
	CurrentQuestion  *QuestionResponse    `json:"current_question,omitempty"`
	QuestionCount    int                  `json:"question_count"`
	FollowUpCount    int                  `json:"follow_up_count"`
	TotalScore       float64              `json:"total_score"`
	Transcript       []string             `json:"transcript"`
	Evaluations      []EvaluationResponse `json:"evaluations"`
	ExecutionResults []ExecutionResponse  `json:"execution_results"`
	Report           *ReportResponse      `json:"report,omitempty"`
}

// DimensionResponse is one scored axis of the final report.
type DimensionResponse struct {
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// ReportResponse represents the whole-interview evaluation.
type ReportResponse struct {
	OverallScore           float64              `json:"overall_score"`
	PerformanceDimensions  []DimensionResponse  `json:"performance_dimensions"`
	HiringProbability      float64              `json:"hiring_probability"`
	Confidence             float64              `json:"confidence"`
	PerQuestionAssessment  []EvaluationResponse `json:"per_question_assessment"`
	ImprovementSuggestions []string             `json:"improvement_suggestions"`
}

// NewQuestionResponse builds a response DTO from a question model.
func NewQuestionResponse(question models.Question) QuestionResponse {
	return QuestionResponse{
		ID:         question.ID,
		Area:       question.Area,
		Type:       string(question.Type),
		Prompt:     question.Prompt,
		Difficulty: question.Difficulty,
	}
}

// NewEvaluationResponse builds a response DTO from an evaluation model.
func NewEvaluationResponse(evaluation models.QuestionEvaluation) EvaluationResponse {
	return EvaluationResponse{
		QuestionID: evaluation.QuestionID,
		Score:      evaluation.Score,
		MaxScore:   evaluation.MaxScore,
		Feedback:   evaluation.Feedback,
		Strengths:  evaluation.Strengths,
		Weaknesses: evaluation.Weaknesses,
		Passed:     evaluation.Passed,
	}
}

// NewExecutionResponse builds a response DTO from an execution result.
func NewExecutionResponse(result models.ExecutionResult) ExecutionResponse {
	return ExecutionResponse{
		QuestionID:      result.QuestionID,
		ExecutionType:   string(result.ExecutionType),
		Status:          string(result.Status),
		Success:         result.Success,
		Error:           result.Error,
		PassedTests:     result.PassedTests,
		TotalTests:      result.TotalTests,
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
}

// NewReportResponse builds a response DTO from the aggregate evaluation.
func NewReportResponse(report models.InterviewEvaluation) ReportResponse {
	dimensions := make([]DimensionResponse, 0, len(report.PerformanceDimensions))
	for _, dimension := range report.PerformanceDimensions {
		dimensions = append(dimensions, DimensionResponse{
			Name:          dimension.Name,
			Score:         dimension.Score,
			Justification: dimension.Justification,
		})
	}

	perQuestion := make([]EvaluationResponse, 0, len(report.PerQuestionAssessment))
	for _, evaluation := range report.PerQuestionAssessment {
		perQuestion = append(perQuestion, NewEvaluationResponse(evaluation))
	}

	return ReportResponse{
		OverallScore:           report.OverallScore,
		PerformanceDimensions:  dimensions,
		HiringProbability:      report.HiringProbability,
		Confidence:             report.Confidence,
		PerQuestionAssessment:  perQuestion,
		ImprovementSuggestions: report.ImprovementSuggestions,
	}
}

// NewSessionResponse builds a response DTO from a session model.
func NewSessionResponse(session models.Session) SessionResponse {
	response := SessionResponse{
		ID:               session.ID,
		Role:             session.Role,
		Company:          session.Company,
		Language:         session.Language,
		InterviewType:    session.InterviewType,
		Progress:         string(session.Progress),
		AwaitingAnswer:   session.AwaitingUserInput,
		QuestionCount:    len(session.Questions),
		FollowUpCount:    session.FollowUpCount,
		TotalScore:       session.TotalScore,
		Transcript:       session.Transcript,
		Evaluations:      make([]EvaluationResponse, 0, len(session.Evaluations)),
		ExecutionResults: make([]ExecutionResponse, 0, len(session.ExecutionResults)),
	}

	if session.AwaitingUserInput {
		if question, ok := session.QuestionByID(session.CurrentQuestionID); ok {
			view := NewQuestionResponse(question)
			response.CurrentQuestion = &view
		}
	}

	for _, evaluation := range session.Evaluations {
		response.Evaluations = append(response.Evaluations, NewEvaluationResponse(evaluation))
	}

	for _, result := range session.ExecutionResults {
		response.ExecutionResults = append(response.ExecutionResults, NewExecutionResponse(result))
	}

	if session.Report != nil {
		report := NewReportResponse(*session.Report)
		response.Report = &report
	}

	return response
}
