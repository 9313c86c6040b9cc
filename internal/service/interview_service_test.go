package service_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/service"
)

type stubAnswerGrader struct {
	results []service.GradedAnswer
	err     error
	calls   int
}

func (s *stubAnswerGrader) Evaluate(_ context.Context, question models.Question, _ models.Answer) (service.GradedAnswer, error) {
	if s.err != nil {
		return service.GradedAnswer{}, s.err
	}
	result := s.results[s.calls]
	s.calls++
	if result.Evaluation.QuestionID == "" {
		result.Evaluation.QuestionID = question.ID
	}
	return result, nil
}

type stubExecutionGrader struct {
	result models.ExecutionResult
	err    error
	calls  int
}

func (s *stubExecutionGrader) Grade(_ context.Context, question models.Question, _ models.Answer) (models.ExecutionResult, error) {
	s.calls++
	if s.err != nil {
		return models.ExecutionResult{}, s.err
	}
	result := s.result
	result.QuestionID = question.ID
	return result, nil
}

type stubReportBuilder struct {
	report models.InterviewEvaluation
	calls  int
}

func (s *stubReportBuilder) Build(_ context.Context, _ []models.QuestionEvaluation, _, _ string) (models.InterviewEvaluation, error) {
	s.calls++
	return s.report, nil
}

// graded builds a stub grading result. The question id may be empty, in
// which case stubAnswerGrader fills it in from the question being graded.
func graded(questionID string, score float64, clarify bool, followUp string) service.GradedAnswer {
	return service.GradedAnswer{
		Evaluation: models.QuestionEvaluation{
			QuestionID: questionID,
			Score:      score,
			MaxScore:   100,
			Feedback:   "feedback",
			Passed:     score >= models.PassingScore,
		},
		ClarificationNeeded: clarify,
		FollowUpQuestion:    followUp,
	}
}

func writtenQuestion(id string) models.Question {
	return models.Question{
		ID:         id,
		Area:       "backend",
		Type:       models.QuestionTypeWritten,
		Prompt:     "Explain database indexing.",
		Difficulty: 3,
	}
}

func newMachine(answers service.AnswerGrader, coding, sql service.ExecutionGrader, reports service.ReportBuilder) *service.InterviewService {
	logger := zerolog.New(io.Discard)
	return service.NewInterviewService(answers, coding, sql, reports, nil, service.InterviewConfig{}, logger)
}

func newTestSession(t *testing.T, questions ...models.Question) models.Session {
	t.Helper()
	session, err := models.NewSession("session-1", "Backend Engineer", "Acme", "en", "technical", questions)
	require.NoError(t, err)
	return session
}

func TestAdvanceSuspendsOnFirstQuestion(t *testing.T) {
	machine := newMachine(&stubAnswerGrader{}, nil, nil, nil)
	session := newTestSession(t, writtenQuestion("q1"))

	advanced, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	require.Equal(t, models.ProgressInProgress, advanced.Progress)
	require.True(t, advanced.AwaitingUserInput)
	require.Equal(t, "q1", advanced.CurrentQuestionID)
	require.Len(t, advanced.Transcript, 1)
	require.Equal(t, "Explain database indexing.", advanced.Transcript[0])

	// Setup stays untouched on the input value.
	require.Equal(t, models.ProgressSetup, session.Progress)
}

func TestAdvanceIsIdempotentWhileWaiting(t *testing.T) {
	machine := newMachine(&stubAnswerGrader{}, nil, nil, nil)
	session := newTestSession(t, writtenQuestion("q1"))

	first, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	second, err := machine.Advance(context.Background(), first)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestAdvanceCompletesSingleWrittenQuestion(t *testing.T) {
	answers := &stubAnswerGrader{results: []service.GradedAnswer{graded("", 80, false, "")}}
	reports := &stubReportBuilder{report: models.InterviewEvaluation{OverallScore: 80}}
	machine := newMachine(answers, nil, nil, reports)

	session := newTestSession(t, writtenQuestion("q1"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	session, err = session.WithAnswer("q1", "B-tree indexes keep lookups logarithmic.")
	require.NoError(t, err)

	final, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	require.Equal(t, models.ProgressCompleted, final.Progress)
	require.False(t, final.AwaitingUserInput)
	require.InDelta(t, 80, final.TotalScore, 1e-9)
	require.Len(t, final.Evaluations, 1)
	require.NotNil(t, final.Report)
	require.Equal(t, 1, reports.calls)
}

func TestAdvanceInsertsFollowUpAndAveragesScores(t *testing.T) {
	answers := &stubAnswerGrader{results: []service.GradedAnswer{
		graded("", 60, true, "Can you describe a concrete example?"),
		graded("", 75, false, ""),
	}}
	reports := &stubReportBuilder{}
	machine := newMachine(answers, nil, nil, reports)

	session := newTestSession(t, writtenQuestion("q1"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	session, err = session.WithAnswer("q1", "Indexes speed up reads.")
	require.NoError(t, err)

	session, err = machine.Advance(context.Background(), session)
	require.NoError(t, err)

	// Machine suspended on the synthesized follow-up.
	require.True(t, session.AwaitingUserInput)
	require.Equal(t, "q1_followup_1", session.CurrentQuestionID)
	require.Equal(t, 1, session.FollowUpCount)
	require.Len(t, session.Questions, 2)
	require.Len(t, session.Transcript, 2)

	session, err = session.WithAnswer("q1_followup_1", "A covering index avoided a table scan.")
	require.NoError(t, err)

	final, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	require.Equal(t, models.ProgressCompleted, final.Progress)
	require.InDelta(t, 67.5, final.TotalScore, 1e-9)
	require.Equal(t, 1, final.FollowUpCount)
}

func TestFollowUpNeverChainsOffAFollowUp(t *testing.T) {
	answers := &stubAnswerGrader{results: []service.GradedAnswer{
		graded("", 50, true, "First clarification?"),
		graded("", 55, true, "Second clarification?"),
	}}
	machine := newMachine(answers, nil, nil, &stubReportBuilder{})

	session := newTestSession(t, writtenQuestion("q1"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	session, err = session.WithAnswer("q1", "Short answer.")
	require.NoError(t, err)
	session, err = machine.Advance(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, "q1_followup_1", session.CurrentQuestionID)

	session, err = session.WithAnswer("q1_followup_1", "Still short.")
	require.NoError(t, err)
	final, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	// The evaluator asked again, but a follow-up may not spawn another one.
	require.Equal(t, models.ProgressCompleted, final.Progress)
	require.Equal(t, 1, final.FollowUpCount)
	require.Len(t, final.Questions, 2)
}

func TestFollowUpCountNeverExceedsMaximum(t *testing.T) {
	answers := &stubAnswerGrader{results: []service.GradedAnswer{
		graded("", 50, true, "Clarify one?"),
		graded("", 55, false, ""),
		graded("", 50, true, "Clarify two?"),
		graded("", 55, false, ""),
		graded("", 50, true, "Clarify three?"),
	}}
	machine := newMachine(answers, nil, nil, &stubReportBuilder{})

	session := newTestSession(t, writtenQuestion("q1"), writtenQuestion("q2"), writtenQuestion("q3"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	for !session.Completed() {
		session, err = session.WithAnswer(session.CurrentQuestionID, "An answer.")
		require.NoError(t, err)
		session, err = machine.Advance(context.Background(), session)
		require.NoError(t, err)
	}

	require.Equal(t, models.MaxFollowUps, session.FollowUpCount)
	require.Len(t, session.Questions, 5)
	require.NoError(t, session.Validate())
}

func TestGradingFailureLeavesSessionRetryable(t *testing.T) {
	answers := &stubAnswerGrader{err: errors.New("llm transport down")}
	machine := newMachine(answers, nil, nil, &stubReportBuilder{})

	session := newTestSession(t, writtenQuestion("q1"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	session, err = session.WithAnswer("q1", "An answer.")
	require.NoError(t, err)

	returned, err := machine.Advance(context.Background(), session)
	require.ErrorIs(t, err, service.ErrGradingUnavailable)

	// The input session comes back untouched and the answer is retained.
	require.Equal(t, session, returned)
	require.True(t, returned.HasAnswer("q1"))
	require.Empty(t, returned.Evaluations)
}

func TestCodingAndDatabaseQuestionsRouteToTheirGraders(t *testing.T) {
	codingResult, err := models.NewExecutionResult("c1", models.ExecutionTypeCoding, models.ExecutionStatusSuccess, "ok", "", 2, 2, 10)
	require.NoError(t, err)
	sqlResult, err := models.NewExecutionResult("s1", models.ExecutionTypeDatabase, models.ExecutionStatusFailedTests, "", "some tests failed", 0, 1, 5)
	require.NoError(t, err)

	coding := &stubExecutionGrader{result: codingResult}
	sql := &stubExecutionGrader{result: sqlResult}
	machine := newMachine(&stubAnswerGrader{}, coding, sql, &stubReportBuilder{})

	questions := []models.Question{
		{
			ID: "c1", Area: "algorithms", Type: models.QuestionTypeCoding,
			Prompt: "Sum two integers.", Difficulty: 2, FunctionName: "add",
			TestCases: []models.TestCase{{Args: []interface{}{1, 2}, Expected: 3}},
		},
		{
			ID: "s1", Area: "databases", Type: models.QuestionTypeDatabase,
			Prompt: "List departments.", Difficulty: 2,
			ExpectedRows: [][]interface{}{{"Engineering"}},
		},
	}

	session := newTestSession(t, questions...)
	session, err = machine.Advance(context.Background(), session)
	require.NoError(t, err)

	session, err = session.WithAnswer("c1", "def add(a, b):\n    return a + b\n")
	require.NoError(t, err)
	session, err = machine.Advance(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, 1, coding.calls)
	require.Equal(t, 0, sql.calls)

	session, err = session.WithAnswer("s1", "SELECT name FROM departments;")
	require.NoError(t, err)
	final, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)

	require.Equal(t, 1, sql.calls)
	require.Equal(t, models.ProgressCompleted, final.Progress)
	require.Len(t, final.ExecutionResults, 2)
	// 100 for the passing coding run, 0 for the failing SQL run.
	require.InDelta(t, 50, final.TotalScore, 1e-9)
}

func TestAdvanceOnCompletedSessionIsNoOp(t *testing.T) {
	answers := &stubAnswerGrader{results: []service.GradedAnswer{graded("", 70, false, "")}}
	reports := &stubReportBuilder{}
	machine := newMachine(answers, nil, nil, reports)

	session := newTestSession(t, writtenQuestion("q1"))
	session, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)
	session, err = session.WithAnswer("q1", "An answer.")
	require.NoError(t, err)
	final, err := machine.Advance(context.Background(), session)
	require.NoError(t, err)
	require.True(t, final.Completed())

	again, err := machine.Advance(context.Background(), final)
	require.NoError(t, err)
	require.Equal(t, final, again)
	require.Equal(t, 1, reports.calls)
	require.Equal(t, 1, answers.calls)
}
