package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/intervo-dev/intervo-go-api/internal/dto"
	"github.com/intervo-dev/intervo-go-api/internal/repository"
	"github.com/intervo-dev/intervo-go-api/internal/service"
	"github.com/intervo-dev/intervo-go-api/internal/utils"
)

// InterviewHandler exposes interview session endpoints.
type InterviewHandler struct {
	service   *service.SessionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewInterviewHandler constructs the handler.
func NewInterviewHandler(service *service.SessionService, validator *validator.Validate, logger zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "interview_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *InterviewHandler) Register(router fiber.Router) {
	router.Post("", h.setup)
	router.Get("/:id", h.get)
	router.Post("/:id/answers", h.submitAnswer)
	router.Get("/:id/report", h.report)
}

func (h *InterviewHandler) setup(c *fiber.Ctx) error {
	var payload dto.SetupInterviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	session, err := h.service.Setup(c.Context(), service.SetupRequest{
		Role:          payload.Role,
		Company:       payload.Company,
		Language:      payload.Language,
		InterviewType: payload.InterviewType,
		Area:          payload.Area,
		Level:         payload.Level,
		QuestionCount: payload.QuestionCount,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "interview started", dto.NewSessionResponse(session))
}

func (h *InterviewHandler) get(c *fiber.Ctx) error {
	session, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "session retrieved", dto.NewSessionResponse(session))
}

func (h *InterviewHandler) submitAnswer(c *fiber.Ctx) error {
	var payload dto.SubmitAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	session, err := h.service.SubmitAnswer(c.Context(), c.Params("id"), payload.Content)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer processed", dto.NewSessionResponse(session))
}

func (h *InterviewHandler) report(c *fiber.Ctx) error {
	report, err := h.service.Report(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "report retrieved", dto.NewReportResponse(report))
}

func (h *InterviewHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, fieldError.Error())
		}
		return utils.SendValidationError(c, messages)
	case errors.Is(err, repository.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrNoQuestionsAvailable):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "no questions available for the requested interview")
	case errors.Is(err, service.ErrSessionCompleted):
		return utils.SendError(c, fiber.StatusConflict, "session already completed")
	case errors.Is(err, service.ErrNotAwaitingAnswer):
		return utils.SendError(c, fiber.StatusConflict, "session is not awaiting an answer")
	case errors.Is(err, service.ErrReportNotReady):
		return utils.SendError(c, fiber.StatusConflict, "final report not ready")
	case errors.Is(err, service.ErrGradingUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grading temporarily unavailable, resubmit later")
	default:
		h.logger.Error().Err(err).Msg("interview operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
