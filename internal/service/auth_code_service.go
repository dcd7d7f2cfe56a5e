package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/email-service/internal/domain/entity"
	"github.com/yourusername/email-service/internal/domain/repository"
	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
)

const (
	// authCodeLength — длина плейнтекст-кода в символах
	authCodeLength = 32

	// authCodeAlphabet — 62-символьный алфавит кода
	authCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// CleanupStats — итоги одного прохода очистки таблицы кодов
type CleanupStats struct {
	ExpiredDeleted int64 `json:"expired_deleted"`
	OldUsedDeleted int64 `json:"old_used_deleted"`
	TotalDeleted   int64 `json:"total_deleted"`
}

// AuthCodeService управляет жизненным циклом одноразовых кодов аутентификации:
// генерация, валидация, гашение и очистка. Плейнтекст кода существует только
// в момент генерации и валидации, в хранилище попадает лишь bcrypt-хеш.
type AuthCodeService struct {
	authCodeDB    repository.AuthCodeRepository
	codeTTL       time.Duration
	usedRetention time.Duration
}

// NewAuthCodeService создает сервис кодов аутентификации.
// codeTTL <= 0 — 5 минут по умолчанию, usedRetention <= 0 — 24 часа.
func NewAuthCodeService(authCodeDB repository.AuthCodeRepository, codeTTL, usedRetention time.Duration) (*AuthCodeService, error) {
	if authCodeDB == nil {
		return nil, fmt.Errorf("auth code repository is required")
	}
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if usedRetention <= 0 {
		usedRetention = 24 * time.Hour
	}
	return &AuthCodeService{
		authCodeDB:    authCodeDB,
		codeTTL:       codeTTL,
		usedRetention: usedRetention,
	}, nil
}

// generateSecureCode генерирует код из криптографически стойкого источника.
// Предсказуемость кода — прямой вектор захвата аккаунта, поэтому
// math/rand здесь недопустим.
func generateSecureCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(authCodeAlphabet)))
	buf := make([]byte, authCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		buf[i] = authCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// hashCode вычисляет соленый односторонний хеш кода
func hashCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyCode сравнивает плейнтекст с хешем за константное время
func verifyCode(plainCode, hashedCode string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(plainCode)) == nil
}

// GenerateCode генерирует новый код для пользователя, сохраняет его хеш и
// возвращает плейнтекст для одноразовой передачи в письме.
func (s *AuthCodeService) GenerateCode(ctx context.Context, userID string, codeType entity.AuthCodeType) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id cannot be empty", apperrors.ErrValidation)
	}
	if !codeType.IsValid() {
		return "", fmt.Errorf("%w: invalid code type %q", apperrors.ErrValidation, codeType)
	}

	plainCode, err := generateSecureCode()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeGenerationFailed, err)
	}
	codeHash, err := hashCode(plainCode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeGenerationFailed, err)
	}

	now := time.Now().UTC()
	record := &entity.AuthCode{
		ID:        uuid.NewString(),
		CodeHash:  codeHash,
		UserID:    userID,
		Type:      codeType,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codeTTL),
		IsUsed:    false,
	}

	if err := s.authCodeDB.Create(ctx, record); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodePersistenceFailed, err)
	}

	log.Printf("[AuthCodeService] сгенерирован код %s для пользователя %s, тип %s", record.ID, userID, codeType)
	return plainCode, nil
}

// ValidateCode ищет валидный код среди неиспользованных кодов данного типа.
// Возвращает (nil, nil), если код не найден, уже использован или истек —
// вызывающий не может различить эти случаи.
func (s *AuthCodeService) ValidateCode(ctx context.Context, plainCode string, codeType entity.AuthCodeType) (*entity.AuthCode, error) {
	plainCode = strings.TrimSpace(plainCode)
	if plainCode == "" {
		return nil, nil
	}
	if !codeType.IsValid() {
		return nil, fmt.Errorf("%w: invalid code type %q", apperrors.ErrValidation, codeType)
	}

	candidates, err := s.authCodeDB.GetUnusedByType(ctx, codeType)
	if err != nil {
		return nil, fmt.Errorf("failed to look up auth codes: %w", err)
	}

	now := time.Now().UTC()
	for i := range candidates {
		candidate := &candidates[i]
		if !verifyCode(plainCode, candidate.CodeHash) {
			continue
		}
		if !candidate.IsValid(now) {
			// Просроченный код неотличим для вызывающего от несуществующего
			return nil, nil
		}
		return candidate, nil
	}

	return nil, nil
}

// InvalidateCode гасит код по его плейнтексту: повторно валидирует и помечает
// использованным. Возвращает true, если был погашен ранее валидный код.
func (s *AuthCodeService) InvalidateCode(ctx context.Context, plainCode string, codeType entity.AuthCodeType) (bool, error) {
	record, err := s.ValidateCode(ctx, plainCode, codeType)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	if err := s.authCodeDB.MarkUsed(ctx, record.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Кто-то погасил код между валидацией и апдейтом — победитель один
			return false, nil
		}
		return false, fmt.Errorf("failed to invalidate auth code %s: %w", record.ID, err)
	}

	log.Printf("[AuthCodeService] код %s погашен", record.ID)
	return true, nil
}

// ConsumeCode валидирует код и сразу гасит его — ровно одно успешное
// погашение на код. Возвращает (nil, nil), если кода нет, он использован,
// истек или проигран race за пометку.
func (s *AuthCodeService) ConsumeCode(ctx context.Context, plainCode string, codeType entity.AuthCodeType) (*entity.AuthCode, error) {
	record, err := s.ValidateCode(ctx, plainCode, codeType)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if err := s.authCodeDB.MarkUsed(ctx, record.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to consume auth code %s: %w", record.ID, err)
	}

	log.Printf("[AuthCodeService] код %s использован пользователем %s", record.ID, record.UserID)
	return record, nil
}

// InvalidateCodeByID гасит код по идентификатору. Используется как
// компенсация при сбое отправки письма, когда плейнтекст уже недоступен.
// Уже использованный код — терминальное состояние, возвращается true.
func (s *AuthCodeService) InvalidateCodeByID(ctx context.Context, codeID string) (bool, error) {
	codeID = strings.TrimSpace(codeID)
	if codeID == "" {
		return false, nil
	}

	record, err := s.authCodeDB.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get auth code %s: %w", codeID, err)
	}

	if record.IsUsed {
		return true, nil
	}

	if err := s.authCodeDB.MarkUsed(ctx, codeID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Параллельный запрос успел раньше — код уже использован
			return true, nil
		}
		return false, fmt.Errorf("failed to invalidate auth code %s: %w", codeID, err)
	}

	log.Printf("[AuthCodeService] код %s погашен по ID", codeID)
	return true, nil
}

// CleanupExpired удаляет все коды с истекшим сроком действия независимо от is_used
func (s *AuthCodeService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.authCodeDB.DeleteExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired auth codes: %w", err)
	}
	if deleted > 0 {
		log.Printf("[AuthCodeService] удалено %d истекших кодов", deleted)
	}
	return deleted, nil
}

// CleanupUsed удаляет использованные коды старше периода хранения.
// Использованные коды недолго хранятся для аудита, затем вычищаются.
func (s *AuthCodeService) CleanupUsed(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.usedRetention)
	deleted, err := s.authCodeDB.DeleteUsedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup used auth codes: %w", err)
	}
	if deleted > 0 {
		log.Printf("[AuthCodeService] удалено %d старых использованных кодов", deleted)
	}
	return deleted, nil
}

// Cleanup выполняет полный проход очистки: истекшие плюс старые использованные
func (s *AuthCodeService) Cleanup(ctx context.Context) (CleanupStats, error) {
	expired, err := s.CleanupExpired(ctx)
	if err != nil {
		return CleanupStats{}, err
	}
	used, err := s.CleanupUsed(ctx)
	if err != nil {
		return CleanupStats{ExpiredDeleted: expired, TotalDeleted: expired}, err
	}
	return CleanupStats{
		ExpiredDeleted: expired,
		OldUsedDeleted: used,
		TotalDeleted:   expired + used,
	}, nil
}

// ServiceStats — конфигурация и состояние сервиса кодов
type ServiceStats struct {
	CodeLength          int    `json:"code_length"`
	ExpirationMinutes   int    `json:"expiration_minutes"`
	ExpiredCodesCleaned int64  `json:"expired_codes_cleaned"`
	ServiceStatus       string `json:"service_status"`
}

// Stats выполняет очистку истекших кодов и возвращает статистику сервиса
func (s *AuthCodeService) Stats(ctx context.Context) (ServiceStats, error) {
	cleaned, err := s.CleanupExpired(ctx)
	if err != nil {
		return ServiceStats{}, err
	}
	return ServiceStats{
		CodeLength:          authCodeLength,
		ExpirationMinutes:   int(s.codeTTL / time.Minute),
		ExpiredCodesCleaned: cleaned,
		ServiceStatus:       "operational",
	}, nil
}

// GetUserCodes возвращает коды пользователя (codeType == "" — все типы)
func (s *AuthCodeService) GetUserCodes(ctx context.Context, userID string, codeType entity.AuthCodeType) ([]entity.AuthCode, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id cannot be empty", apperrors.ErrValidation)
	}
	if codeType != "" && !codeType.IsValid() {
		return nil, fmt.Errorf("%w: invalid code type %q", apperrors.ErrValidation, codeType)
	}
	return s.authCodeDB.GetByUserID(ctx, userID, codeType)
}

// IsCodeValidForUser проверяет, что код валиден и принадлежит данному пользователю
func (s *AuthCodeService) IsCodeValidForUser(ctx context.Context, plainCode string, codeType entity.AuthCodeType, userID string) (bool, error) {
	record, err := s.ValidateCode(ctx, plainCode, codeType)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	if record.UserID != userID {
		log.Printf("[AuthCodeService] код %s принадлежит пользователю %s, ожидался %s", record.ID, record.UserID, userID)
		return false, nil
	}
	return true, nil
}
