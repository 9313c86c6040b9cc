package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QuestionBankItem is a curated question stored in the bank, from which
// runtime questions are drawn at interview setup.
type QuestionBankItem struct {
	ID                string         `gorm:"primaryKey;size:64" json:"id"`
	Text              string         `gorm:"type:text;not null" json:"text"`
	InterviewType     string         `gorm:"size:64;not null" json:"interview_type"`
	Role              string         `gorm:"size:128;not null" json:"role"`
	Area              string         `gorm:"size:64;not null" json:"area"`
	Type              string         `gorm:"size:16;not null;default:written" json:"type"`
	Level             string         `gorm:"size:32" json:"level"`
	Difficulty        int            `gorm:"not null" json:"difficulty"`
	FunctionName      string         `gorm:"size:128" json:"function_name,omitempty"`
	ReferenceSolution string         `gorm:"type:text" json:"reference_solution,omitempty"`
	TestCases         datatypes.JSON `json:"test_cases,omitempty"`
	ExpectedRows      datatypes.JSON `json:"expected_rows,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// ToQuestion converts a bank item into a runtime question. Malformed
// executable payloads yield empty test data, which grading reports as an
// internal failure rather than a panic.
func (i QuestionBankItem) ToQuestion() Question {
	question := Question{
		ID:                i.ID,
		Area:              i.Area,
		Type:              QuestionType(i.Type),
		Prompt:            i.Text,
		Difficulty:        i.Difficulty,
		FunctionName:      i.FunctionName,
		ReferenceSolution: i.ReferenceSolution,
	}

	if len(i.TestCases) > 0 {
		var cases []TestCase
		if err := json.Unmarshal(i.TestCases, &cases); err == nil {
			question.TestCases = cases
		}
	}

	if len(i.ExpectedRows) > 0 {
		var rows [][]interface{}
		if err := json.Unmarshal(i.ExpectedRows, &rows); err == nil {
			question.ExpectedRows = rows
		}
	}

	return question
}
