package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/repository"
)

// ErrNoQuestionsAvailable indicates the bank has no questions matching the
// requested interview setup.
var ErrNoQuestionsAvailable = errors.New("no questions available for setup")

// ErrSessionCompleted indicates an answer was submitted to an archived session.
var ErrSessionCompleted = errors.New("session already completed")

// ErrNotAwaitingAnswer indicates the session has no open question to answer.
var ErrNotAwaitingAnswer = errors.New("session is not awaiting an answer")

// ErrReportNotReady indicates the session has not produced a final report yet.
var ErrReportNotReady = errors.New("final report not ready")

// SessionStore abstracts where snapshots live so the engine stays agnostic
// of the persistence collaborator.
type SessionStore interface {
	Save(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (models.Session, error)
}

// SetupRequest describes a new interview to start.
type SetupRequest struct {
	Role          string `validate:"required"`
	Company       string `validate:"required"`
	Language      string
	InterviewType string `validate:"required"`
	Area          string
	Level         string
	QuestionCount int `validate:"omitempty,min=1,max=20"`
}

// SessionService orchestrates the interview around the state machine:
// setup from the question bank, answer intake, persistence between turns and
// completion events. Handlers talk to this service only.
type SessionService struct {
	machine   *InterviewService
	bank      repository.QuestionBankRepository
	store     SessionStore
	cache     *repository.SessionCache
	notifier  CompletionNotifier
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewSessionService constructs a session service. Cache and notifier are
// optional collaborators.
func NewSessionService(machine *InterviewService, bank repository.QuestionBankRepository, store SessionStore, cache *repository.SessionCache, notifier CompletionNotifier, validate *validator.Validate, logger zerolog.Logger) *SessionService {
	return &SessionService{
		machine:   machine,
		bank:      bank,
		store:     store,
		cache:     cache,
		notifier:  notifier,
		validate:  validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "session_service").Logger(),
	}
}

// Setup creates a new session from the question bank and runs the first turn
// so the opening question is framed and the session suspends on it.
func (s *SessionService) Setup(ctx context.Context, req SetupRequest) (models.Session, error) {
	if err := s.validate.Struct(req); err != nil {
		return models.Session{}, err
	}

	limit := req.QuestionCount
	if limit == 0 {
		limit = 5
	}

	items, err := s.bank.List(ctx, repository.QuestionBankFilter{
		InterviewType: req.InterviewType,
		Role:          req.Role,
		Area:          req.Area,
		Level:         req.Level,
		Limit:         limit,
	})
	if err != nil {
		return models.Session{}, fmt.Errorf("load question bank: %w", err)
	}
	if len(items) == 0 {
		return models.Session{}, ErrNoQuestionsAvailable
	}

	questions := make([]models.Question, 0, len(items))
	for _, item := range items {
		questions = append(questions, item.ToQuestion())
	}

	session, err := models.NewSession(uuid.NewString(), req.Role, req.Company, req.Language, req.InterviewType, questions)
	if err != nil {
		return models.Session{}, err
	}

	session, err = s.machine.Advance(ctx, session)
	if err != nil {
		return models.Session{}, err
	}

	if err := s.persist(ctx, session); err != nil {
		return models.Session{}, err
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Int("questions", len(session.Questions)).
		Msg("interview session created")
	return session, nil
}

// SubmitAnswer records a candidate answer for the current question and runs
// one turn of the machine.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, content string) (models.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return models.Session{}, err
	}

	if session.Completed() {
		return models.Session{}, ErrSessionCompleted
	}
	if session.CurrentQuestionID == "" || !session.AwaitingUserInput {
		return models.Session{}, ErrNotAwaitingAnswer
	}

	// Written answers are rendered back in transcripts, so strip markup.
	// Code and SQL go to the sandboxes verbatim; escaping would corrupt them.
	if question, ok := session.QuestionByID(session.CurrentQuestionID); ok && question.Type == models.QuestionTypeWritten {
		content = s.sanitizer.Sanitize(content)
	}

	session, err = session.WithAnswer(session.CurrentQuestionID, strings.TrimSpace(content))
	if err != nil {
		return models.Session{}, err
	}

	advanced, err := s.machine.Advance(ctx, session)
	if err != nil {
		if errors.Is(err, ErrGradingUnavailable) {
			// Keep the answer so the turn can be retried, but report the
			// stalled grading to the caller.
			if saveErr := s.persist(ctx, session); saveErr != nil {
				return models.Session{}, saveErr
			}
		}
		return models.Session{}, err
	}

	if err := s.persist(ctx, advanced); err != nil {
		return models.Session{}, err
	}

	if advanced.Completed() && s.notifier != nil {
		if err := s.notifier.InterviewCompleted(ctx, advanced); err != nil {
			s.logger.Error().Err(err).Str("session_id", advanced.ID).Msg("failed to publish completion event")
		}
	}

	return advanced, nil
}

// Get loads a session, preferring the cache.
func (s *SessionService) Get(ctx context.Context, id string) (models.Session, error) {
	if s.cache != nil {
		if session, err := s.cache.Get(ctx, id); err == nil {
			return session, nil
		}
	}

	return s.store.Get(ctx, id)
}

// Report returns the final evaluation of a completed session.
func (s *SessionService) Report(ctx context.Context, id string) (models.InterviewEvaluation, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return models.InterviewEvaluation{}, err
	}

	if !session.Completed() || session.Report == nil {
		return models.InterviewEvaluation{}, ErrReportNotReady
	}

	return *session.Report, nil
}

func (s *SessionService) persist(ctx context.Context, session models.Session) error {
	if err := s.store.Save(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, session); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("session cache write failed")
		}
	}

	return nil
}
