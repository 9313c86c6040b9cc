package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/intervo-dev/intervo-go-api/internal/dto"
	"github.com/intervo-dev/intervo-go-api/internal/handler"
	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/repository"
	"github.com/intervo-dev/intervo-go-api/internal/service"
)

type fixedAnswerGrader struct {
	score float64
}

func (f *fixedAnswerGrader) Evaluate(_ context.Context, question models.Question, _ models.Answer) (service.GradedAnswer, error) {
	evaluation, err := models.NewQuestionEvaluation(question.ID, f.score, "graded", nil, nil)
	if err != nil {
		return service.GradedAnswer{}, err
	}
	return service.GradedAnswer{Evaluation: evaluation}, nil
}

type fixedReportBuilder struct{}

func (fixedReportBuilder) Build(_ context.Context, evaluations []models.QuestionEvaluation, _, _ string) (models.InterviewEvaluation, error) {
	return models.InterviewEvaluation{
		OverallScore:          80,
		HiringProbability:     75,
		Confidence:            0.9,
		PerQuestionAssessment: evaluations,
	}, nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QuestionBankItem{}, &models.SessionRecord{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	bank := repository.NewQuestionBankRepository(db)
	require.NoError(t, bank.Load(context.Background(), []models.QuestionBankItem{{
		ID:            "q1",
		Text:          "Explain database indexing.",
		InterviewType: "technical",
		Role:          "Backend Engineer",
		Area:          "backend",
		Type:          string(models.QuestionTypeWritten),
		Difficulty:    3,
	}}))

	machine := service.NewInterviewService(&fixedAnswerGrader{score: 80}, nil, nil, fixedReportBuilder{}, nil, service.InterviewConfig{}, logger)
	sessions := service.NewSessionService(machine, bank, repository.NewSessionRepository(db), nil, nil, validate, logger)

	app := fiber.New()
	handler.NewInterviewHandler(sessions, validate, logger).Register(app.Group("/api/v1/interviews"))
	handler.NewQuestionBankHandler(bank, logger).Register(app.Group("/api/v1/questions"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) dto.SessionResponse {
	t.Helper()
	defer resp.Body.Close()

	var payload struct {
		Success bool                `json:"success"`
		Data    dto.SessionResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)
	return payload.Data
}

func setupPayload() dto.SetupInterviewRequest {
	return dto.SetupInterviewRequest{
		Role:          "Backend Engineer",
		Company:       "Acme",
		InterviewType: "technical",
	}
}

func TestInterviewLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/interviews", setupPayload())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	session := decodeSession(t, resp)

	require.NotEmpty(t, session.ID)
	require.True(t, session.AwaitingAnswer)
	require.NotNil(t, session.CurrentQuestion)
	require.Equal(t, "q1", session.CurrentQuestion.ID)

	resp = postJSON(t, app, "/api/v1/interviews/"+session.ID+"/answers", dto.SubmitAnswerRequest{
		Content: "B-trees keep lookups logarithmic.",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	completed := decodeSession(t, resp)

	require.Equal(t, string(models.ProgressCompleted), completed.Progress)
	require.InDelta(t, 80, completed.TotalScore, 1e-9)
	require.NotNil(t, completed.Report)

	resp = getJSON(t, app, "/api/v1/interviews/"+session.ID+"/report")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSetupRejectsInvalidPayload(t *testing.T) {
	app := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/interviews", dto.SetupInterviewRequest{Role: "Backend Engineer"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownSessionIsNotFound(t *testing.T) {
	app := newTestApp(t)

	resp := getJSON(t, app, "/api/v1/interviews/does-not-exist")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAnswersRejectedAfterCompletion(t *testing.T) {
	app := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/interviews", setupPayload())
	session := decodeSession(t, resp)

	resp = postJSON(t, app, "/api/v1/interviews/"+session.ID+"/answers", dto.SubmitAnswerRequest{Content: "First."})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, app, "/api/v1/interviews/"+session.ID+"/answers", dto.SubmitAnswerRequest{Content: "Second."})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestReportBeforeCompletionConflicts(t *testing.T) {
	app := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/interviews", setupPayload())
	session := decodeSession(t, resp)

	resp = getJSON(t, app, "/api/v1/interviews/"+session.ID+"/report")
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestQuestionBankLoadRejectsInvalidItems(t *testing.T) {
	app := newTestApp(t)

	resp := postJSON(t, app, "/api/v1/questions", map[string]interface{}{
		"items": []map[string]interface{}{{
			"id":             "bad",
			"text":           "A coding question with no function name.",
			"interview_type": "technical",
			"role":           "Backend Engineer",
			"area":           "algorithms",
			"type":           "coding",
			"difficulty":     2,
		}},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
