package repository

import (
	"context"
	"time"

	"github.com/yourusername/email-service/internal/domain/entity"
)

// AuthCodeRepository persists single-use authentication codes.
// The table is the sole owner of AuthCode records; services only operate
// through this interface.
type AuthCodeRepository interface {
	// Create сохраняет новую запись кода (хеш уже вычислен сервисом)
	Create(ctx context.Context, code *entity.AuthCode) error

	// GetUnusedByType возвращает все неиспользованные коды указанного типа
	GetUnusedByType(ctx context.Context, codeType entity.AuthCodeType) ([]entity.AuthCode, error)

	// GetByID возвращает код по его идентификатору (ErrNotFound, если нет)
	GetByID(ctx context.Context, id string) (*entity.AuthCode, error)

	// MarkUsed помечает код использованным при условии is_used = false.
	// Возвращает ErrNotFound, если записи нет или она уже использована —
	// при гонке двух invalidate выигрывает ровно один.
	MarkUsed(ctx context.Context, id string) error

	// DeleteExpiredBefore удаляет все коды с expires_at < cutoff независимо от is_used
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteUsedBefore удаляет использованные коды с used_at < cutoff
	DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// GetByUserID возвращает коды пользователя, опционально фильтруя по типу
	// (codeType == "" — без фильтра)
	GetByUserID(ctx context.Context, userID string, codeType entity.AuthCodeType) ([]entity.AuthCode, error)
}
