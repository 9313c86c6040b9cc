package models

import (
	"errors"
	"fmt"
	"strings"
)

// InterviewProgress tracks the lifecycle of a session. Transitions are
// monotonic: setup -> in_progress -> completed.
type InterviewProgress string

const (
	ProgressSetup      InterviewProgress = "setup"
	ProgressInProgress InterviewProgress = "in_progress"
	ProgressCompleted  InterviewProgress = "completed"
)

// MaxFollowUps bounds how many follow-up questions one session may spawn.
const MaxFollowUps = 2

// Session is the full state of one interview in progress. The engine treats
// sessions as values: every turn returns a new Session rather than mutating
// the caller's copy.
type Session struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	Company       string `json:"company"`
	Language      string `json:"language"`
	InterviewType string `json:"interview_type"`

	Questions        []Question           `json:"questions"`
	Answers          []Answer             `json:"answers"`
	Evaluations      []QuestionEvaluation `json:"evaluations"`
	ExecutionResults []ExecutionResult    `json:"execution_results"`

	CurrentQuestionID    string `json:"current_question_id,omitempty"`
	CurrentQuestionIndex int    `json:"current_question_index"`

	FollowUpCount     int  `json:"follow_up_count"`
	LastWasFollowUp   bool `json:"last_was_follow_up"`
	AwaitingUserInput bool `json:"awaiting_user_input"`

	TotalScore float64           `json:"total_score"`
	Progress   InterviewProgress `json:"progress"`

	// Transcript is the conversational log appended by the prompt framing
	// step, one entry per asked question.
	Transcript []string `json:"transcript"`

	Report *InterviewEvaluation `json:"report,omitempty"`
}

// ErrInvalidSession indicates the session violates a structural invariant.
var ErrInvalidSession = errors.New("invalid session")

// NewSession creates a session in setup with the given ordered questions.
func NewSession(id, role, company, language, interviewType string, questions []Question) (Session, error) {
	session := Session{
		ID:            strings.TrimSpace(id),
		Role:          strings.TrimSpace(role),
		Company:       strings.TrimSpace(company),
		Language:      strings.TrimSpace(language),
		InterviewType: strings.TrimSpace(interviewType),
		Questions:     append([]Question(nil), questions...),
		Progress:      ProgressSetup,
	}
	if session.Language == "" {
		session.Language = "en"
	}

	if err := session.Validate(); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Validate checks all structural invariants the session must hold.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSession)
	}
	if s.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidSession)
	}
	if s.Company == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidSession)
	}
	if len(s.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidSession)
	}
	if s.FollowUpCount < 0 || s.FollowUpCount > MaxFollowUps {
		return fmt.Errorf("%w: follow-up count out of range", ErrInvalidSession)
	}
	if s.TotalScore < 0 || s.TotalScore > 100 {
		return fmt.Errorf("%w: total score out of range", ErrInvalidSession)
	}

	for _, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	for _, a := range s.Answers {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(s.Evaluations))
	for _, ev := range s.Evaluations {
		if seen[ev.QuestionID] {
			return fmt.Errorf("%w: duplicate evaluation for question %s", ErrInvalidSession, ev.QuestionID)
		}
		seen[ev.QuestionID] = true
	}

	return nil
}

// Clone returns a deep copy so turn functions never alias the caller's slices.
func (s Session) Clone() Session {
	clone := s
	clone.Questions = append([]Question(nil), s.Questions...)
	clone.Answers = append([]Answer(nil), s.Answers...)
	clone.Evaluations = append([]QuestionEvaluation(nil), s.Evaluations...)
	clone.ExecutionResults = append([]ExecutionResult(nil), s.ExecutionResults...)
	clone.Transcript = append([]string(nil), s.Transcript...)
	if s.Report != nil {
		report := *s.Report
		clone.Report = &report
	}
	return clone
}

// QuestionByID looks up a question in the current sequence.
func (s Session) QuestionByID(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// HasAnswer reports whether any answer exists for the question.
func (s Session) HasAnswer(questionID string) bool {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// LatestAnswer returns the highest-attempt answer for the question.
func (s Session) LatestAnswer(questionID string) (Answer, bool) {
	var latest Answer
	found := false
	for _, a := range s.Answers {
		if a.QuestionID == questionID && (!found || a.Attempt > latest.Attempt) {
			latest = a
			found = true
		}
	}
	return latest, found
}

// HasEvaluation reports whether the question has already been graded by the
// LLM evaluator.
func (s Session) HasEvaluation(questionID string) bool {
	for _, ev := range s.Evaluations {
		if ev.QuestionID == questionID {
			return true
		}
	}
	return false
}

// HasExecutionResult reports whether the question has already been graded by
// an execution engine.
func (s Session) HasExecutionResult(questionID string) bool {
	for _, r := range s.ExecutionResults {
		if r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Graded reports whether the question has a grading artifact of either kind.
func (s Session) Graded(questionID string) bool {
	return s.HasEvaluation(questionID) || s.HasExecutionResult(questionID)
}

// NextAttempt returns the attempt number the next answer to the question
// should carry.
func (s Session) NextAttempt(questionID string) int {
	attempt := 0
	for _, a := range s.Answers {
		if a.QuestionID == questionID && a.Attempt > attempt {
			attempt = a.Attempt
		}
	}
	return attempt + 1
}

// WithAnswer returns a copy of the session with the answer appended. The
// attempt number is assigned here so it is strictly increasing per question.
func (s Session) WithAnswer(questionID, content string) (Session, error) {
	if _, ok := s.QuestionByID(questionID); !ok {
		return Session{}, fmt.Errorf("%w: unknown question %s", ErrInvalidSession, questionID)
	}

	answer := Answer{
		QuestionID: questionID,
		Content:    content,
		Attempt:    s.NextAttempt(questionID),
	}
	if err := answer.Validate(); err != nil {
		return Session{}, err
	}

	clone := s.Clone()
	clone.Answers = append(clone.Answers, answer)
	return clone, nil
}

// Completed reports whether the session has reached its terminal state.
func (s Session) Completed() bool {
	return s.Progress == ProgressCompleted
}
