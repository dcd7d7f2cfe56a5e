package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/email-service/internal/domain/entity"
	"github.com/yourusername/email-service/internal/handler/dto"
	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
	"github.com/yourusername/email-service/internal/service"
)

// ServiceVersion — версия сервиса, отдается в health и корневом эндпоинте
const ServiceVersion = "0.1.0"

// EmailHandler обрабатывает запросы отправки писем и проверки кодов
type EmailHandler struct {
	emailService *service.EmailService
	metrics      service.MetricsRecorder
	environment  string
	healthProbe  func() map[string]string
}

// NewEmailHandler создает новый обработчик email-операций.
// healthProbe возвращает состояние компонентов для /health (может быть nil).
func NewEmailHandler(emailService *service.EmailService, metrics service.MetricsRecorder, environment string, healthProbe func() map[string]string) *EmailHandler {
	if metrics == nil {
		metrics = &service.NoopMetrics{}
	}
	return &EmailHandler{
		emailService: emailService,
		metrics:      metrics,
		environment:  environment,
		healthProbe:  healthProbe,
	}
}

// Root возвращает информацию об API
func (h *EmailHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     "Email Service",
		"version":     ServiceVersion,
		"status":      "running",
		"environment": h.environment,
		"endpoints": gin.H{
			"health":              "/health",
			"metrics":             "/metrics",
			"send_confirmation":   "/api/v1/send-confirmation",
			"send_password_reset": "/api/v1/send-password-reset",
			"validate_code":       "/api/v1/validate-code",
		},
	})
}

// SendConfirmation обрабатывает запрос на отправку письма подтверждения email
func (h *EmailHandler) SendConfirmation(c *gin.Context) {
	var req dto.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			ErrorType: "validation_error",
			Message:   "Invalid request data: " + err.Error(),
		})
		return
	}

	response, err := h.emailService.SendConfirmationEmail(c.Request.Context(), req.Email, req.UserID)
	if err != nil {
		h.respondServiceError(c, err, "Failed to send confirmation email")
		return
	}

	c.JSON(http.StatusOK, response)
}

// SendPasswordReset обрабатывает запрос на отправку письма сброса пароля
func (h *EmailHandler) SendPasswordReset(c *gin.Context) {
	var req dto.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			ErrorType: "validation_error",
			Message:   "Invalid request data: " + err.Error(),
		})
		return
	}

	response, err := h.emailService.SendPasswordResetEmail(c.Request.Context(), req.Email, req.UserID)
	if err != nil {
		h.respondServiceError(c, err, "Failed to send password reset email")
		return
	}

	c.JSON(http.StatusOK, response)
}

// ValidateCode обрабатывает запрос на проверку кода аутентификации.
// Валидный код гасится сразу — повторная проверка вернет valid=false.
// Причина невалидности клиенту не раскрывается.
func (h *EmailHandler) ValidateCode(c *gin.Context) {
	var req dto.ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			ErrorType: "validation_error",
			Message:   "Invalid request data: " + err.Error(),
		})
		return
	}

	codeType, err := entity.ParseAuthCodeType(req.CodeType)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			ErrorType: "validation_error",
			Message:   err.Error(),
		})
		return
	}

	result, err := h.emailService.ValidateCode(c.Request.Context(), req.Code, codeType)
	if err != nil {
		h.respondServiceError(c, err, "Failed to validate authentication code")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health возвращает состояние сервиса и его компонентов
func (h *EmailHandler) Health(c *gin.Context) {
	response := dto.HealthResponse{
		Status:      "healthy",
		Version:     ServiceVersion,
		Environment: h.environment,
	}

	if h.healthProbe != nil {
		components := h.healthProbe()
		response.Components = components
		for _, status := range components {
			if status != "healthy" {
				response.Status = "degraded"
				break
			}
		}
	}

	statusCode := http.StatusOK
	if response.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// Metrics отдает снапшот операционных счетчиков
func (h *EmailHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"counters": h.metrics.Snapshot()})
}

func (h *EmailHandler) respondServiceError(c *gin.Context, err error, message string) {
	if errors.Is(err, apperrors.ErrValidation) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			ErrorType: "validation_error",
			Message:   err.Error(),
		})
		return
	}

	log.Printf("[EmailHandler] внутренняя ошибка: %v", err)

	errorType := "email_service_error"
	switch {
	case errors.Is(err, service.ErrCodeGenerationFailed), errors.Is(err, service.ErrCodePersistenceFailed):
		errorType = "auth_code_service_error"
	case errors.Is(err, service.ErrTemplateNotFound), errors.Is(err, service.ErrTemplateRender):
		errorType = "template_error"
	}

	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		ErrorType: errorType,
		Message:   message,
	})
}
