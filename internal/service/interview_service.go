package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/pkg/ai"
)

// ErrGradingUnavailable wraps infrastructure failures inside a grading
// engine. The turn is aborted: the returned session equals the input and the
// pending answer stays gradeable, so the caller may simply retry Advance.
var ErrGradingUnavailable = errors.New("grading engine unavailable")

// AnswerGrader grades a single written answer.
type AnswerGrader interface {
	Evaluate(ctx context.Context, question models.Question, answer models.Answer) (GradedAnswer, error)
}

// ExecutionGrader grades a coding or SQL answer by executing it.
type ExecutionGrader interface {
	Grade(ctx context.Context, question models.Question, answer models.Answer) (models.ExecutionResult, error)
}

// ReportBuilder produces the whole-interview evaluation at termination.
type ReportBuilder interface {
	Build(ctx context.Context, evaluations []models.QuestionEvaluation, interviewType, role string) (models.InterviewEvaluation, error)
}

// InterviewConfig carries the state machine's knobs.
type InterviewConfig struct {
	EnableHumanizer bool
}

// InterviewService advances a session turn by turn: it selects and frames
// the next question, routes grading to the right engine, applies the
// follow-up policy, rescores and decides termination. It is the only
// component callers interact with.
type InterviewService struct {
	answers AnswerGrader
	coding  ExecutionGrader
	sql     ExecutionGrader
	reports ReportBuilder
	llm     ai.LLM
	cfg     InterviewConfig
	logger  zerolog.Logger
}

// NewInterviewService constructs the interview state machine.
func NewInterviewService(answers AnswerGrader, coding, sql ExecutionGrader, reports ReportBuilder, llm ai.LLM, cfg InterviewConfig, logger zerolog.Logger) *InterviewService {
	return &InterviewService{
		answers: answers,
		coding:  coding,
		sql:     sql,
		reports: reports,
		llm:     llm,
		cfg:     cfg,
		logger:  logger.With().Str("component", "interview_service").Logger(),
	}
}

// Advance runs the session until it either suspends waiting for the next
// answer or completes. The input value is never mutated; repeated calls on a
// waiting session with no new answer return an identical session.
func (s *InterviewService) Advance(ctx context.Context, session models.Session) (models.Session, error) {
	if session.Completed() {
		return session.Clone(), nil
	}

	next := session.Clone()
	if next.Progress == models.ProgressSetup {
		next.Progress = models.ProgressInProgress
	}

	// One iteration per gradeable question; the bound only guards against a
	// selection bug looping forever.
	for iter := 0; iter < len(next.Questions)+models.MaxFollowUps+1; iter++ {
		waiting, done := s.selectQuestion(&next)
		if done {
			return s.terminate(ctx, next)
		}

		s.frameQuestion(ctx, &next)

		if waiting {
			next.AwaitingUserInput = true
			s.rescore(&next)
			return next, nil
		}

		if err := s.gradeCurrent(ctx, &next); err != nil {
			// Surface the failure instead of silently stalling; the input
			// session is returned untouched so the turn can be retried.
			return session, fmt.Errorf("%w: %v", ErrGradingUnavailable, err)
		}

		s.rescore(&next)
	}

	return s.terminate(ctx, next)
}

// selectQuestion positions the pointer. It reports whether the machine must
// suspend for an answer, and whether the question sequence is exhausted.
func (s *InterviewService) selectQuestion(session *models.Session) (waiting, done bool) {
	if session.CurrentQuestionIndex >= len(session.Questions) {
		session.CurrentQuestionID = ""
		return false, true
	}

	if session.CurrentQuestionID == "" {
		session.CurrentQuestionID = session.Questions[session.CurrentQuestionIndex].ID
	}

	if session.Graded(session.CurrentQuestionID) {
		// Grading already happened (a replayed turn); move on.
		session.CurrentQuestionID = ""
		session.CurrentQuestionIndex++
		return s.selectQuestion(session)
	}

	return !session.HasAnswer(session.CurrentQuestionID), false
}

// frameQuestion appends the conversational form of the current question to
// the transcript exactly once: the transcript grows by one entry per asked
// question, so a transcript at least as long as the question index means the
// question was already framed.
func (s *InterviewService) frameQuestion(ctx context.Context, session *models.Session) {
	if len(session.Transcript) > session.CurrentQuestionIndex {
		return
	}

	question, ok := session.QuestionByID(session.CurrentQuestionID)
	if !ok {
		return
	}

	if !s.cfg.EnableHumanizer || question.Type != models.QuestionTypeWritten || s.llm == nil {
		session.Transcript = append(session.Transcript, question.Prompt)
		return
	}

	response, err := s.llm.Invoke(ctx, buildHumanizerPrompt(question, session.Language, session.Transcript))
	if err != nil || response.Content == "" {
		// Framing is cosmetic; fall back to the literal prompt.
		s.logger.Warn().Err(err).Str("question_id", question.ID).Msg("humanizer unavailable, using literal prompt")
		session.Transcript = append(session.Transcript, question.Prompt)
		return
	}

	session.Transcript = append(session.Transcript, response.Content)
}

// gradeCurrent grades the answered current question and advances the
// pointer, inserting a follow-up when the evaluator requests one.
func (s *InterviewService) gradeCurrent(ctx context.Context, session *models.Session) error {
	question, ok := session.QuestionByID(session.CurrentQuestionID)
	if !ok {
		return fmt.Errorf("current question %s not in sequence", session.CurrentQuestionID)
	}

	answer, ok := session.LatestAnswer(question.ID)
	if !ok {
		return fmt.Errorf("no answer recorded for question %s", question.ID)
	}

	if question.Type.Executable() {
		grader := s.coding
		if question.Type == models.QuestionTypeDatabase {
			grader = s.sql
		}

		result, err := grader.Grade(ctx, question, answer)
		if err != nil {
			return err
		}

		session.ExecutionResults = append(session.ExecutionResults, result)
		s.advancePointer(session)
		return nil
	}

	graded, err := s.answers.Evaluate(ctx, question, answer)
	if err != nil {
		return err
	}

	session.Evaluations = append(session.Evaluations, graded.Evaluation)

	if s.shouldFollowUp(*session, graded) {
		s.insertFollowUp(session, question, graded.FollowUpQuestion)
		return nil
	}

	s.advancePointer(session)
	return nil
}

func (s *InterviewService) shouldFollowUp(session models.Session, graded GradedAnswer) bool {
	return graded.ClarificationNeeded &&
		graded.FollowUpQuestion != "" &&
		session.FollowUpCount < models.MaxFollowUps &&
		!session.LastWasFollowUp
}

// insertFollowUp synthesizes the follow-up question immediately after the
// current index and moves the pointer onto it.
func (s *InterviewService) insertFollowUp(session *models.Session, parent models.Question, prompt string) {
	followUp := models.NewFollowUpQuestion(parent, prompt, session.FollowUpCount+1)

	at := session.CurrentQuestionIndex + 1
	questions := make([]models.Question, 0, len(session.Questions)+1)
	questions = append(questions, session.Questions[:at]...)
	questions = append(questions, followUp)
	questions = append(questions, session.Questions[at:]...)

	session.Questions = questions
	session.CurrentQuestionIndex = at
	session.CurrentQuestionID = followUp.ID
	session.FollowUpCount++
	session.LastWasFollowUp = true
	session.AwaitingUserInput = false

	s.logger.Info().
		Str("question_id", followUp.ID).
		Int("follow_up_count", session.FollowUpCount).
		Msg("follow-up question inserted")
}

func (s *InterviewService) advancePointer(session *models.Session) {
	session.CurrentQuestionID = ""
	session.CurrentQuestionIndex++
	session.LastWasFollowUp = false
	session.AwaitingUserInput = false
}

// rescore recomputes the aggregate from the full grading history. Running it
// on every turn keeps repeated invocations drift-free.
func (s *InterviewService) rescore(session *models.Session) {
	sum := 0.0
	count := 0

	for _, ev := range session.Evaluations {
		sum += ev.Score
		count++
	}
	for _, result := range session.ExecutionResults {
		sum += result.Score()
		count++
	}

	if count == 0 {
		session.TotalScore = 0
		return
	}
	session.TotalScore = sum / float64(count)
}

// terminate marks the session completed once the sequence is exhausted and
// at least one gradeable artifact exists, and builds the final report.
func (s *InterviewService) terminate(ctx context.Context, session models.Session) (models.Session, error) {
	s.rescore(&session)

	if len(session.Evaluations) == 0 && len(session.ExecutionResults) == 0 {
		// Nothing was ever graded; the session cannot complete yet.
		session.AwaitingUserInput = true
		return session, nil
	}

	session.Progress = models.ProgressCompleted
	session.AwaitingUserInput = false
	session.CurrentQuestionID = ""

	if session.Report == nil && len(session.Evaluations) > 0 && s.reports != nil {
		report, err := s.reports.Build(ctx, session.Evaluations, session.InterviewType, session.Role)
		if err != nil {
			// The report builder has its own fallback; an error here is an
			// infrastructure fault and must not corrupt the terminal state.
			s.logger.Error().Err(err).Str("session_id", session.ID).Msg("final report unavailable")
		} else {
			session.Report = &report
			s.logger.Info().Str("session_id", session.ID).Str("report", renderReportSummary(report)).Msg("interview completed")
		}
	}

	return session, nil
}
