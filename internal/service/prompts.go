package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// buildEvaluationPrompt asks the LLM to grade one written answer and decide
// whether a clarifying follow-up is needed. The response must be strict JSON.
func buildEvaluationPrompt(question models.Question, answer models.Answer) string {
	return strings.TrimSpace(fmt.Sprintf(`
You are a senior technical interviewer.

Evaluate the candidate answer.

Question:
%s

Answer:
%s

Return STRICT JSON with this structure:
{
    "score": float between 0 and 100,
    "feedback": "concise but precise explanation",
    "clarification_needed": boolean,
    "follow_up_question": "string or null"
}

Rules:
- Only suggest clarification if the answer is incomplete or ambiguous.
- follow_up_question must be null exactly when clarification_needed is false.
- Output JSON only.`, question.Prompt, answer.Content))
}

// buildHumanizerPrompt asks the LLM to rephrase a question conversationally
// without changing its technical requirements.
func buildHumanizerPrompt(question models.Question, language string, transcript []string) string {
	window := transcript
	if len(window) > 5 {
		window = window[len(window)-5:]
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a professional technical interviewer.

Rephrase the following question in a natural conversational way.

Constraints:
- Do NOT change the technical requirements.
- Do NOT remove constraints.
- Do NOT simplify coding tasks.
- Preserve original meaning.
- Keep the same difficulty level.
- Output plain text only.

Language: %s

Previous conversation context:
%s

Original question:
%s`, language, strings.Join(window, "\n"), question.Prompt))
}

// buildReportPrompt asks the LLM for the whole-interview evaluation. The
// payload is validated strictly; the constraints are restated in the prompt
// to keep the retry rate down.
func buildReportPrompt(evaluations []models.QuestionEvaluation, interviewType, role string) string {
	encoded, err := json.MarshalIndent(evaluations, "", "  ")
	if err != nil {
		encoded = []byte("[]")
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a strict and deterministic technical interviewer.

Role: %s
Interview type: %s

You MUST return valid JSON only.
Do not include explanations or text outside JSON.

Allowed performance dimensions (exactly these 4):
- Technical Depth
- Communication
- Problem Solving
- System Design

Per-question evaluations:
%s

Return STRICT JSON with this structure:

{
  "overall_score": float (0-100),
  "performance_dimensions": [
    {
      "name": one of allowed dimensions,
      "score": float (0-100),
      "justification": string
    }
  ],
  "hiring_probability": float (0-100),
  "improvement_suggestions": list of strings
}

Constraints:
- Must include exactly 4 performance dimensions
- overall_score must equal the mean of the 4 dimension scores
- No extra fields
- No missing fields`, role, interviewType, string(encoded)))
}
