package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/models"
	"github.com/intervo-dev/intervo-go-api/internal/repository"
	"github.com/intervo-dev/intervo-go-api/internal/utils"
)

// QuestionBankHandler exposes tooling endpoints for curating the question bank.
type QuestionBankHandler struct {
	bank   repository.QuestionBankRepository
	logger zerolog.Logger
}

// NewQuestionBankHandler constructs a question bank handler.
func NewQuestionBankHandler(bank repository.QuestionBankRepository, logger zerolog.Logger) *QuestionBankHandler {
	return &QuestionBankHandler{
		bank:   bank,
		logger: logger.With().Str("component", "question_bank_handler").Logger(),
	}
}

// Register wires question bank routes.
func (h *QuestionBankHandler) Register(router fiber.Router) {
	router.Post("", h.load)
	router.Get("", h.list)
}

type loadQuestionsRequest struct {
	Items []models.QuestionBankItem `json:"items"`
}

func (h *QuestionBankHandler) load(c *fiber.Ctx) error {
	var payload loadQuestionsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if len(payload.Items) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "items must not be empty")
	}

	for _, item := range payload.Items {
		if err := item.ToQuestion().Validate(); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	if err := h.bank.Load(c.Context(), payload.Items); err != nil {
		h.logger.Error().Err(err).Msg("question bank load failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "question bank load failed")
	}

	return utils.SendSuccess(c, "questions loaded", fiber.Map{"affected": len(payload.Items)})
}

func (h *QuestionBankHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	items, err := h.bank.List(c.Context(), repository.QuestionBankFilter{
		InterviewType: c.Query("interview_type"),
		Role:          c.Query("role"),
		Area:          c.Query("area"),
		Level:         c.Query("level"),
		Limit:         limit,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("question bank list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "question bank list failed")
	}

	return utils.SendSuccess(c, "questions retrieved", items)
}
