package service

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/email-service/internal/domain/entity"
)

// templateFiles — соответствие типа кода файлу шаблона письма
var templateFiles = map[entity.AuthCodeType]string{
	entity.AuthCodeTypeEmailConfirmation: "confirm_signup_template.html",
	entity.AuthCodeTypePasswordReset:     "reset_password_template.html",
}

// TemplateManager рендерит HTML-шаблоны писем и строит ссылки с кодом.
// Все обязательные шаблоны парсятся и проверяются при создании.
type TemplateManager struct {
	templatesDir        string
	confirmationURLBase string
	resetURLBase        string
	templates           map[entity.AuthCodeType]*template.Template
}

// NewTemplateManager создает менеджер шаблонов и валидирует наличие
// всех обязательных файлов
func NewTemplateManager(templatesDir, confirmationURLBase, resetURLBase string) (*TemplateManager, error) {
	if templatesDir == "" {
		return nil, fmt.Errorf("templates directory is required")
	}
	info, err := os.Stat(templatesDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: templates directory not found: %s", ErrTemplateNotFound, templatesDir)
	}

	manager := &TemplateManager{
		templatesDir:        templatesDir,
		confirmationURLBase: strings.TrimRight(confirmationURLBase, "/"),
		resetURLBase:        strings.TrimRight(resetURLBase, "/"),
		templates:           make(map[entity.AuthCodeType]*template.Template),
	}

	for codeType, fileName := range templateFiles {
		path := filepath.Join(templatesDir, fileName)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s (%s)", ErrTemplateNotFound, fileName, codeType)
		}
		tmpl, err := template.ParseFiles(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateRender, fileName, err)
		}
		manager.templates[codeType] = tmpl
	}

	log.Printf("[TemplateManager] инициализирован, каталог шаблонов: %s", templatesDir)
	return manager, nil
}

// GenerateConfirmationURL строит ссылку подтверждения email с кодом
func (m *TemplateManager) GenerateConfirmationURL(authCode string) string {
	return m.confirmationURLBase + "?code=" + authCode
}

// GenerateResetURL строит ссылку сброса пароля с кодом
func (m *TemplateManager) GenerateResetURL(authCode string) string {
	return m.resetURLBase + "?code=" + authCode
}

// confirmationEmailData — переменные шаблона письма подтверждения
type confirmationEmailData struct {
	ConfirmationURL string
}

// resetEmailData — переменные шаблона письма сброса пароля
type resetEmailData struct {
	ResetURL string
}

// RenderConfirmationEmail рендерит письмо подтверждения email
func (m *TemplateManager) RenderConfirmationEmail(authCode string) (string, error) {
	return m.render(entity.AuthCodeTypeEmailConfirmation, confirmationEmailData{
		ConfirmationURL: m.GenerateConfirmationURL(authCode),
	})
}

// RenderPasswordResetEmail рендерит письмо сброса пароля
func (m *TemplateManager) RenderPasswordResetEmail(authCode string) (string, error) {
	return m.render(entity.AuthCodeTypePasswordReset, resetEmailData{
		ResetURL: m.GenerateResetURL(authCode),
	})
}

// RenderEmailByType рендерит письмо по типу кода
func (m *TemplateManager) RenderEmailByType(codeType entity.AuthCodeType, authCode string) (string, error) {
	switch codeType {
	case entity.AuthCodeTypeEmailConfirmation:
		return m.RenderConfirmationEmail(authCode)
	case entity.AuthCodeTypePasswordReset:
		return m.RenderPasswordResetEmail(authCode)
	default:
		return "", fmt.Errorf("unsupported auth code type: %s", codeType)
	}
}

func (m *TemplateManager) render(codeType entity.AuthCodeType, data interface{}) (string, error) {
	tmpl, ok := m.templates[codeType]
	if !ok {
		return "", fmt.Errorf("%w: no template for type %s", ErrTemplateNotFound, codeType)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// AvailableTemplates возвращает соответствие типов кодов файлам шаблонов
func (m *TemplateManager) AvailableTemplates() map[entity.AuthCodeType]string {
	result := make(map[entity.AuthCodeType]string, len(templateFiles))
	for codeType, fileName := range templateFiles {
		result[codeType] = fileName
	}
	return result
}
