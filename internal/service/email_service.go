package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/email-service/internal/domain/entity"
	"github.com/yourusername/email-service/pkg/azure"
)

const (
	confirmationSubject  = "Confirm Your Email Address"
	passwordResetSubject = "Reset Your Password"
)

// EmailResponse — единый результат отправки письма для вызывающего.
// Ошибки провайдера не поднимаются выше этой границы: они превращаются
// в Success=false с человекочитаемым сообщением.
type EmailResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// EmailService оркестрирует полный процесс отправки письма: генерация кода,
// рендеринг шаблона, отправка через провайдера и компенсация при сбое.
type EmailService struct {
	authCodes *AuthCodeService
	templates *TemplateManager
	sender    EmailSender
	metrics   MetricsRecorder
}

// NewEmailService создает сервис отправки писем
func NewEmailService(authCodes *AuthCodeService, templates *TemplateManager, sender EmailSender, metrics MetricsRecorder) (*EmailService, error) {
	if authCodes == nil {
		return nil, fmt.Errorf("auth code service is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template manager is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &EmailService{
		authCodes: authCodes,
		templates: templates,
		sender:    sender,
		metrics:   metrics,
	}, nil
}

// SendConfirmationEmail отправляет письмо подтверждения email
func (s *EmailService) SendConfirmationEmail(ctx context.Context, email, userID string) (*EmailResponse, error) {
	return s.sendWithCode(ctx, email, userID, entity.AuthCodeTypeEmailConfirmation)
}

// SendPasswordResetEmail отправляет письмо сброса пароля
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, email, userID string) (*EmailResponse, error) {
	return s.sendWithCode(ctx, email, userID, entity.AuthCodeTypePasswordReset)
}

func (s *EmailService) sendWithCode(ctx context.Context, email, userID string, codeType entity.AuthCodeType) (*EmailResponse, error) {
	metric, subject, label := MetricSendConfirmation, confirmationSubject, "confirmation"
	if codeType == entity.AuthCodeTypePasswordReset {
		metric, subject, label = MetricSendPasswordReset, passwordResetSubject, "password reset"
	}

	plainCode, err := s.authCodes.GenerateCode(ctx, userID, codeType)
	if err != nil {
		s.metrics.RecordOperation(metric, false)
		return nil, fmt.Errorf("failed to generate authentication code: %w", err)
	}

	htmlContent, err := s.templates.RenderEmailByType(codeType, plainCode)
	if err != nil {
		s.metrics.RecordOperation(metric, false)
		return nil, fmt.Errorf("failed to process email template: %w", err)
	}

	messageID, err := s.sender.SendEmail(ctx, email, subject, htmlContent, "")
	if err != nil {
		s.metrics.RecordOperation(metric, false)
		log.Printf("[EmailService] не удалось отправить письмо (%s) to=%s user=%s: %v", label, email, userID, err)

		// Код с недоставленной ссылкой не должен оставаться валидным:
		// гасим его, не маскируя исходную ошибку отправки
		if _, cleanupErr := s.authCodes.InvalidateCode(ctx, plainCode, codeType); cleanupErr != nil {
			log.Printf("[EmailService] компенсация не удалась, код остался валидным: %v", cleanupErr)
		}

		return &EmailResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to send %s email: %s", label, providerErrorMessage(err)),
		}, nil
	}

	s.metrics.RecordOperation(metric, true)
	log.Printf("[EmailService] письмо (%s) отправлено to=%s user=%s message_id=%s", label, email, userID, messageID)
	return &EmailResponse{
		Success:   true,
		Message:   fmt.Sprintf("%s email sent successfully", titleLabel(label)),
		MessageID: messageID,
	}, nil
}

// providerErrorMessage достает человекочитаемое сообщение провайдера
func providerErrorMessage(err error) string {
	var clientErr *azure.ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Message
	}
	return err.Error()
}

func titleLabel(label string) string {
	switch label {
	case "confirmation":
		return "Confirmation"
	default:
		return "Password reset"
	}
}

// CodeValidationResult — результат проверки кода для вызывающего.
// Причина невалидности намеренно не раскрывается.
type CodeValidationResult struct {
	Valid   bool   `json:"valid"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

// ValidateCode проверяет код и при успехе сразу гасит его — код одноразовый
func (s *EmailService) ValidateCode(ctx context.Context, plainCode string, codeType entity.AuthCodeType) (*CodeValidationResult, error) {
	record, err := s.authCodes.ConsumeCode(ctx, plainCode, codeType)
	if err != nil {
		s.metrics.RecordOperation(MetricValidateCode, false)
		return nil, err
	}
	if record == nil {
		s.metrics.RecordOperation(MetricValidateCode, false)
		return &CodeValidationResult{
			Valid:   false,
			Message: "Authentication code is invalid or expired",
		}, nil
	}

	s.metrics.RecordOperation(MetricValidateCode, true)
	return &CodeValidationResult{
		Valid:   true,
		UserID:  record.UserID,
		Message: "Authentication code is valid",
	}, nil
}
