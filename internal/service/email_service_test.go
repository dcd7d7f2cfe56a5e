package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/email-service/internal/domain/entity"
	"github.com/yourusername/email-service/pkg/azure"
)

// ============================================================================
// Вспомогательные фейки
// ============================================================================

// recordingSender фиксирует отправленные письма и возвращает заданный результат
type recordingSender struct {
	messageID string
	err       error

	calls   int
	toEmail string
	subject string
	html    string
}

func (s *recordingSender) SendEmail(ctx context.Context, toEmail, subject, htmlContent, plainTextContent string) (string, error) {
	s.calls++
	s.toEmail = toEmail
	s.subject = subject
	s.html = htmlContent
	if s.err != nil {
		return "", s.err
	}
	return s.messageID, nil
}

func writeTestTemplates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	confirm := `<html><body><a href="{{.ConfirmationURL}}">Confirm</a></body></html>`
	reset := `<html><body><a href="{{.ResetURL}}">Reset</a></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "confirm_signup_template.html"), []byte(confirm), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "reset_password_template.html"), []byte(reset), 0o644))
	return dir
}

func createTestEmailService(t *testing.T, sender EmailSender) (*EmailService, *AuthCodeService, *fakeAuthCodeRepo) {
	t.Helper()
	repo := newFakeAuthCodeRepo()
	authCodes, err := NewAuthCodeService(repo, 5*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	templates, err := NewTemplateManager(writeTestTemplates(t), "http://localhost:5173/auth/confirm", "http://localhost:5173/auth/reset")
	require.NoError(t, err)

	svc, err := NewEmailService(authCodes, templates, sender, nil)
	require.NoError(t, err)
	return svc, authCodes, repo
}

// ============================================================================
// Отправка писем
// ============================================================================

func TestEmailService_SendConfirmationEmail_Success(t *testing.T) {
	// Arrange
	sender := &recordingSender{messageID: "abc"}
	svc, authCodes, _ := createTestEmailService(t, sender)

	// Act
	resp, err := svc.SendConfirmationEmail(context.Background(), "user@example.com", "user-1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "abc", resp.MessageID)
	assert.Equal(t, "Confirmation email sent successfully", resp.Message)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "user@example.com", sender.toEmail)
	assert.Equal(t, "Confirm Your Email Address", sender.subject)
	assert.Contains(t, sender.html, "http://localhost:5173/auth/confirm?code=", "Письмо должно содержать ссылку с кодом")

	// Код из письма должен быть валиден
	codes, err := authCodes.GetUserCodes(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.False(t, codes[0].IsUsed, "После успешной отправки код остается валидным")
}

func TestEmailService_SendPasswordResetEmail_Success(t *testing.T) {
	sender := &recordingSender{messageID: "msg-reset"}
	svc, _, _ := createTestEmailService(t, sender)

	resp, err := svc.SendPasswordResetEmail(context.Background(), "user@example.com", "user-1")

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Password reset email sent successfully", resp.Message)
	assert.Equal(t, "Reset Your Password", sender.subject)
	assert.Contains(t, sender.html, "http://localhost:5173/auth/reset?code=")
}

func TestEmailService_SendConfirmationEmail_ProviderFailure(t *testing.T) {
	// Arrange: провайдер отвечает 429
	sender := &recordingSender{err: &azure.ClientError{
		Message:    "Rate limit exceeded - too many requests",
		StatusCode: 429,
	}}
	svc, authCodes, _ := createTestEmailService(t, sender)

	// Act
	resp, err := svc.SendConfirmationEmail(context.Background(), "user@example.com", "user-1")

	// Assert: сбой провайдера не поднимается как ошибка
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.MessageID)
	assert.Contains(t, resp.Message, "Failed to send confirmation email")
	assert.Contains(t, resp.Message, "Rate limit exceeded - too many requests")

	// Компенсация: код с недоставленной ссылкой погашен
	codes, err := authCodes.GetUserCodes(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.True(t, codes[0].IsUsed, "После сбоя отправки код должен быть погашен")
}

// ============================================================================
// Валидация кодов через сервис писем
// ============================================================================

func TestEmailService_ValidateCode_ConsumesCode(t *testing.T) {
	// Arrange
	sender := &recordingSender{messageID: "abc"}
	svc, authCodes, _ := createTestEmailService(t, sender)
	plainCode, err := authCodes.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)

	// Act
	result, err := svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "Authentication code is valid", result.Message)

	// Повторная проверка того же кода — уже невалиден
	result, err = svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Empty(t, result.UserID)
	assert.Equal(t, "Authentication code is invalid or expired", result.Message)
}

func TestEmailService_ValidateCode_Unknown(t *testing.T) {
	sender := &recordingSender{messageID: "abc"}
	svc, _, _ := createTestEmailService(t, sender)

	result, err := svc.ValidateCode(context.Background(), "NoSuchCode0123456789ABCDEFGHIJKL", entity.AuthCodeTypeEmailConfirmation)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "Authentication code is invalid or expired", result.Message)
}
