package entity

import (
	"errors"
	"strings"
	"time"
)

// AuthCodeType определяет назначение кода аутентификации
type AuthCodeType string

const (
	// AuthCodeTypeEmailConfirmation — код подтверждения email
	AuthCodeTypeEmailConfirmation AuthCodeType = "email_confirmation"

	// AuthCodeTypePasswordReset — код сброса пароля
	AuthCodeTypePasswordReset AuthCodeType = "password_reset"
)

// IsValid проверяет, что тип кода известен
func (t AuthCodeType) IsValid() bool {
	return t == AuthCodeTypeEmailConfirmation || t == AuthCodeTypePasswordReset
}

// ParseAuthCodeType преобразует строку в AuthCodeType
func ParseAuthCodeType(s string) (AuthCodeType, error) {
	t := AuthCodeType(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", errors.New("unknown auth code type: " + s)
	}
	return t, nil
}

// AuthCode stores hashed single-use authentication codes for email
// confirmation and password reset. The plaintext code is never persisted.
type AuthCode struct {
	ID        string       `gorm:"type:uuid;primaryKey" json:"id"`
	CodeHash  string       `gorm:"size:72;not null" json:"-"`
	UserID    string       `gorm:"size:64;not null;index" json:"user_id"`
	Type      AuthCodeType `gorm:"size:32;not null;index" json:"type"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt time.Time    `gorm:"not null;index" json:"expires_at"`
	IsUsed    bool         `gorm:"not null;default:false;index" json:"is_used"`
	UsedAt    *time.Time   `gorm:"index" json:"used_at,omitempty"`
}

// TableName задает имя таблицы для GORM
func (AuthCode) TableName() string {
	return "auth_codes"
}

// IsExpired проверяет, истек ли срок действия кода
func (a *AuthCode) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// IsValid — код валиден, если он не использован и не истек.
// Вычисляется только из полей записи и текущего времени, никогда не кешируется.
func (a *AuthCode) IsValid(now time.Time) bool {
	return !a.IsUsed && !a.IsExpired(now)
}

// Validate проверяет инварианты записи перед сохранением
func (a *AuthCode) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("auth code id cannot be empty")
	}
	if strings.TrimSpace(a.CodeHash) == "" {
		return errors.New("auth code hash cannot be empty")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return errors.New("user_id cannot be empty")
	}
	if !a.Type.IsValid() {
		return errors.New("invalid auth code type")
	}
	if !a.ExpiresAt.After(a.CreatedAt) {
		return errors.New("expires_at must be after created_at")
	}
	return nil
}
