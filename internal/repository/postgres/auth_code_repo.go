package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/email-service/internal/domain/entity"
	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
)

// AuthCodeRepo реализует repository.AuthCodeRepository поверх PostgreSQL
type AuthCodeRepo struct {
	db *gorm.DB
}

// NewAuthCodeRepo создает новый репозиторий кодов аутентификации
func NewAuthCodeRepo(db *gorm.DB) *AuthCodeRepo {
	return &AuthCodeRepo{db: db}
}

// Create сохраняет новую запись кода
func (r *AuthCodeRepo) Create(ctx context.Context, code *entity.AuthCode) error {
	if err := code.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		log.Printf("Ошибка при сохранении auth code %s: %v", code.ID, err)
		return fmt.Errorf("failed to store auth code: %w", err)
	}
	return nil
}

// GetUnusedByType возвращает все неиспользованные коды указанного типа.
// Плейнтекст кода нигде не хранится, поэтому поиск по коду — линейный
// скан на уровне сервиса; 5-минутный TTL держит это множество небольшим.
func (r *AuthCodeRepo) GetUnusedByType(ctx context.Context, codeType entity.AuthCodeType) ([]entity.AuthCode, error) {
	var codes []entity.AuthCode
	err := r.db.WithContext(ctx).
		Where("type = ? AND is_used = ?", codeType, false).
		Find(&codes).Error
	if err != nil {
		log.Printf("Ошибка при выборке неиспользованных кодов типа %s: %v", codeType, err)
		return nil, fmt.Errorf("failed to list unused auth codes: %w", err)
	}
	return codes, nil
}

// GetByID возвращает код по его идентификатору
func (r *AuthCodeRepo) GetByID(ctx context.Context, id string) (*entity.AuthCode, error) {
	var code entity.AuthCode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		log.Printf("Ошибка при получении auth code %s: %v", id, err)
		return nil, fmt.Errorf("failed to get auth code: %w", err)
	}
	return &code, nil
}

// MarkUsed помечает код использованным. Условие is_used = false гарантирует,
// что при одновременных попытках погасить один код выиграет ровно одна.
func (r *AuthCodeRepo) MarkUsed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&entity.AuthCode{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]interface{}{
			"is_used": true,
			"used_at": now,
		})
	if result.Error != nil {
		log.Printf("Ошибка при пометке auth code %s использованным: %v", id, result.Error)
		return fmt.Errorf("failed to mark auth code as used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteExpiredBefore удаляет все коды с истекшим сроком действия
func (r *AuthCodeRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&entity.AuthCode{})
	if result.Error != nil {
		log.Printf("Ошибка при удалении истекших кодов: %v", result.Error)
		return 0, fmt.Errorf("failed to delete expired auth codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteUsedBefore удаляет использованные коды старше cutoff
func (r *AuthCodeRepo) DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_used = ? AND used_at < ?", true, cutoff).
		Delete(&entity.AuthCode{})
	if result.Error != nil {
		log.Printf("Ошибка при удалении старых использованных кодов: %v", result.Error)
		return 0, fmt.Errorf("failed to delete used auth codes: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetByUserID возвращает коды пользователя, опционально фильтруя по типу
func (r *AuthCodeRepo) GetByUserID(ctx context.Context, userID string, codeType entity.AuthCodeType) ([]entity.AuthCode, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if codeType != "" {
		query = query.Where("type = ?", codeType)
	}

	var codes []entity.AuthCode
	if err := query.Order("created_at DESC").Find(&codes).Error; err != nil {
		log.Printf("Ошибка при получении кодов пользователя %s: %v", userID, err)
		return nil, fmt.Errorf("failed to list user auth codes: %w", err)
	}
	return codes, nil
}
