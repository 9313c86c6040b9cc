package models

import (
	"errors"
	"fmt"
	"strings"
)

// QuestionType governs how an answer to the question is graded.
type QuestionType string

const (
	QuestionTypeWritten  QuestionType = "written"
	QuestionTypeCoding   QuestionType = "coding"
	QuestionTypeDatabase QuestionType = "database"
)

// Valid reports whether the type is one of the closed set.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeWritten, QuestionTypeCoding, QuestionTypeDatabase:
		return true
	}
	return false
}

// Executable reports whether answers are graded by an execution engine
// rather than by the LLM evaluator.
func (t QuestionType) Executable() bool {
	return t == QuestionTypeCoding || t == QuestionTypeDatabase
}

// TestCase is a single coding test: positional args, keyword args and the
// expected return value, all rendered into the harness as JSON literals.
type TestCase struct {
	Args     []interface{}          `json:"args"`
	Kwargs   map[string]interface{} `json:"kwargs,omitempty"`
	Expected interface{}            `json:"expected"`
}

// Question is a single interview prompt. Immutable once created; follow-up
// questions are synthesized at runtime with a derived id.
type Question struct {
	ID                string          `json:"id"`
	Area              string          `json:"area"`
	Type              QuestionType    `json:"type"`
	Prompt            string          `json:"prompt"`
	Difficulty        int             `json:"difficulty"`
	ReferenceSolution string          `json:"reference_solution,omitempty"`
	FunctionName      string          `json:"function_name,omitempty"`
	TestCases         []TestCase      `json:"test_cases,omitempty"`
	ExpectedRows      [][]interface{} `json:"expected_rows,omitempty"`
}

// ErrInvalidQuestion indicates a question violates its structural constraints.
var ErrInvalidQuestion = errors.New("invalid question")

// Validate checks the structural constraints of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidQuestion)
	}
	if strings.TrimSpace(q.Area) == "" {
		return fmt.Errorf("%w: area is required", ErrInvalidQuestion)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, q.Type)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	if q.Difficulty < 1 || q.Difficulty > 5 {
		return fmt.Errorf("%w: difficulty must be between 1 and 5", ErrInvalidQuestion)
	}
	if q.Type == QuestionTypeCoding && strings.TrimSpace(q.FunctionName) == "" {
		return fmt.Errorf("%w: coding questions require a function name", ErrInvalidQuestion)
	}
	return nil
}

// NewFollowUpQuestion derives a written follow-up from its parent question.
// The id encodes the parent and the follow-up ordinal.
func NewFollowUpQuestion(parent Question, prompt string, ordinal int) Question {
	return Question{
		ID:         fmt.Sprintf("%s_followup_%d", parent.ID, ordinal),
		Area:       parent.Area,
		Type:       QuestionTypeWritten,
		Prompt:     prompt,
		Difficulty: parent.Difficulty,
	}
}

// Answer is one candidate submission for a question. Attempt numbers start
// at 1 and increase per question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Content    string `json:"content"`
	Attempt    int    `json:"attempt"`
}

// ErrInvalidAnswer indicates an answer violates its structural constraints.
var ErrInvalidAnswer = errors.New("invalid answer")

// Validate checks the structural constraints of an answer.
func (a Answer) Validate() error {
	if strings.TrimSpace(a.QuestionID) == "" {
		return fmt.Errorf("%w: question id is required", ErrInvalidAnswer)
	}
	if strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidAnswer)
	}
	if a.Attempt < 1 {
		return fmt.Errorf("%w: attempt must be at least 1", ErrInvalidAnswer)
	}
	return nil
}
