package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/email-service/internal/domain/entity"
)

func TestNewTemplateManager_MissingDirectory(t *testing.T) {
	_, err := NewTemplateManager(filepath.Join(t.TempDir(), "nope"), "http://x/confirm", "http://x/reset")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestNewTemplateManager_MissingTemplateFile(t *testing.T) {
	// Только один из двух обязательных шаблонов
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "confirm_signup_template.html"), []byte("<p>{{.ConfirmationURL}}</p>"), 0o644))

	_, err := NewTemplateManager(dir, "http://x/confirm", "http://x/reset")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateManager_GenerateURLs(t *testing.T) {
	manager, err := NewTemplateManager(writeTestTemplates(t), "http://localhost:5173/auth/confirm/", "http://localhost:5173/auth/reset")
	require.NoError(t, err)

	// Завершающий слеш базового URL не должен дублироваться
	assert.Equal(t, "http://localhost:5173/auth/confirm?code=ABC123", manager.GenerateConfirmationURL("ABC123"))
	assert.Equal(t, "http://localhost:5173/auth/reset?code=ABC123", manager.GenerateResetURL("ABC123"))
}

func TestTemplateManager_RenderEmailByType(t *testing.T) {
	manager, err := NewTemplateManager(writeTestTemplates(t), "http://x/confirm", "http://x/reset")
	require.NoError(t, err)

	html, err := manager.RenderEmailByType(entity.AuthCodeTypeEmailConfirmation, "CODE1")
	require.NoError(t, err)
	assert.Contains(t, html, "http://x/confirm?code=CODE1")

	html, err = manager.RenderEmailByType(entity.AuthCodeTypePasswordReset, "CODE2")
	require.NoError(t, err)
	assert.Contains(t, html, "http://x/reset?code=CODE2")

	_, err = manager.RenderEmailByType(entity.AuthCodeType("bogus"), "CODE3")
	assert.Error(t, err)
}

func TestTemplateManager_AvailableTemplates(t *testing.T) {
	manager, err := NewTemplateManager(writeTestTemplates(t), "http://x/confirm", "http://x/reset")
	require.NoError(t, err)

	templates := manager.AvailableTemplates()
	assert.Equal(t, "confirm_signup_template.html", templates[entity.AuthCodeTypeEmailConfirmation])
	assert.Equal(t, "reset_password_template.html", templates[entity.AuthCodeTypePasswordReset])
}
