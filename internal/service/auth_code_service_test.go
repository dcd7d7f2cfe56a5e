package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/email-service/internal/domain/entity"
	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
)

// ============================================================================
// In-memory репозиторий для тестирования AuthCodeService
// ============================================================================

// fakeAuthCodeRepo хранит коды в памяти и воспроизводит семантику
// условного MarkUsed (ровно один победитель при гонке).
type fakeAuthCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*entity.AuthCode
}

func newFakeAuthCodeRepo() *fakeAuthCodeRepo {
	return &fakeAuthCodeRepo{codes: make(map[string]*entity.AuthCode)}
}

func (r *fakeAuthCodeRepo) Create(ctx context.Context, code *entity.AuthCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *code
	r.codes[code.ID] = &copied
	return nil
}

func (r *fakeAuthCodeRepo) GetUnusedByType(ctx context.Context, codeType entity.AuthCodeType) ([]entity.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []entity.AuthCode
	for _, code := range r.codes {
		if code.Type == codeType && !code.IsUsed {
			result = append(result, *code)
		}
	}
	return result, nil
}

func (r *fakeAuthCodeRepo) GetByID(ctx context.Context, id string) (*entity.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *code
	return &copied, nil
}

func (r *fakeAuthCodeRepo) MarkUsed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.codes[id]
	if !ok || code.IsUsed {
		return apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	code.IsUsed = true
	code.UsedAt = &now
	return nil
}

func (r *fakeAuthCodeRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, code := range r.codes {
		if code.ExpiresAt.Before(cutoff) {
			delete(r.codes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeAuthCodeRepo) DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, code := range r.codes {
		if code.IsUsed && code.UsedAt != nil && code.UsedAt.Before(cutoff) {
			delete(r.codes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeAuthCodeRepo) GetByUserID(ctx context.Context, userID string, codeType entity.AuthCodeType) ([]entity.AuthCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []entity.AuthCode
	for _, code := range r.codes {
		if code.UserID != userID {
			continue
		}
		if codeType != "" && code.Type != codeType {
			continue
		}
		result = append(result, *code)
	}
	return result, nil
}

// expire переводит код в прошлое, имитируя истечение срока действия
func (r *fakeAuthCodeRepo) expire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code, ok := r.codes[id]; ok {
		code.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}

func (r *fakeAuthCodeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

func (r *fakeAuthCodeRepo) onlyID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.codes {
		return id
	}
	return ""
}

func createTestAuthCodeService(t *testing.T, repo *fakeAuthCodeRepo) *AuthCodeService {
	t.Helper()
	svc, err := NewAuthCodeService(repo, 5*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	return svc
}

// ============================================================================
// Генерация кодов
// ============================================================================

func TestGenerateSecureCode_LengthAndCharset(t *testing.T) {
	code, err := generateSecureCode()

	require.NoError(t, err)
	assert.Len(t, code, authCodeLength, "Код должен состоять из 32 символов")
	for _, ch := range code {
		assert.Contains(t, authCodeAlphabet, string(ch), "Все символы кода должны быть из 62-символьного алфавита")
	}
}

func TestGenerateSecureCode_Uniqueness(t *testing.T) {
	// Вероятность коллизии 32-символьных кодов пренебрежимо мала;
	// дубликат на 10000 образцов означал бы дефект генератора
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code, err := generateSecureCode()
		require.NoError(t, err)
		_, duplicate := seen[code]
		require.False(t, duplicate, "Сгенерирован дубликат кода: %s", code)
		seen[code] = struct{}{}
	}
}

func TestHashCode_Salted(t *testing.T) {
	// Arrange
	code := "SameCodeHashedTwice0123456789ABC"

	// Act
	hash1, err1 := hashCode(code)
	hash2, err2 := hashCode(code)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.NotEqual(t, hash1, hash2, "Хеши одного кода должны различаться из-за соли")
	assert.True(t, verifyCode(code, hash1), "Первый хеш должен проходить проверку")
	assert.True(t, verifyCode(code, hash2), "Второй хеш должен проходить проверку")
	assert.False(t, verifyCode("WrongCode", hash1), "Чужой код не должен проходить проверку")
}

func TestAuthCodeService_GenerateCode_PersistsHashOnly(t *testing.T) {
	// Arrange
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)

	// Act
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)

	// Assert
	require.NoError(t, err)
	assert.Len(t, plainCode, authCodeLength)
	require.Equal(t, 1, repo.count(), "Должна быть сохранена ровно одна запись")

	record, err := repo.GetByID(context.Background(), repo.onlyID())
	require.NoError(t, err)
	assert.NotEqual(t, plainCode, record.CodeHash, "Плейнтекст кода не должен попадать в хранилище")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(plainCode)))
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, entity.AuthCodeTypeEmailConfirmation, record.Type)
	assert.False(t, record.IsUsed)
	assert.WithinDuration(t, record.CreatedAt.Add(5*time.Minute), record.ExpiresAt, time.Second, "Срок действия должен быть created_at + TTL")
}

func TestAuthCodeService_GenerateCode_Validation(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)

	_, err := svc.GenerateCode(context.Background(), "", entity.AuthCodeTypeEmailConfirmation)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "Пустой user_id должен отклоняться")

	_, err = svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeType("bogus"))
	assert.ErrorIs(t, err, apperrors.ErrValidation, "Неизвестный тип кода должен отклоняться")

	assert.Equal(t, 0, repo.count(), "Невалидные запросы не должны создавать записей")
}

// ============================================================================
// Валидация и гашение
// ============================================================================

func TestAuthCodeService_ValidateCode_Roundtrip(t *testing.T) {
	// Arrange
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)

	// Act
	record, err := svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, record, "Только что сгенерированный код должен быть валиден")
	assert.Equal(t, "user-1", record.UserID)
	assert.False(t, record.IsUsed, "Валидация не должна гасить код")
}

func TestAuthCodeService_ValidateCode_WrongType(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)

	// Код одного типа не должен находиться при поиске по другому типу
	record, err := svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAuthCodeService_ValidateCode_UnknownAndEmpty(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)

	record, err := svc.ValidateCode(context.Background(), "NoSuchCodeAtAll0123456789ABCDEFG", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	assert.Nil(t, record, "Несуществующий код должен давать (nil, nil)")

	record, err = svc.ValidateCode(context.Background(), "   ", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	assert.Nil(t, record, "Пустой код должен давать (nil, nil)")
}

func TestAuthCodeService_ValidateCode_Expired(t *testing.T) {
	// Arrange
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	repo.expire(repo.onlyID())

	// Act
	record, err := svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypeEmailConfirmation)

	// Assert: просроченный код неотличим от несуществующего
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAuthCodeService_ConsumeCode_SingleUse(t *testing.T) {
	// Arrange
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)

	// Act: первое погашение успешно
	record, err := svc.ConsumeCode(context.Background(), plainCode, entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "user-1", record.UserID)

	// Assert: повторное использование того же кода невозможно
	record, err = svc.ConsumeCode(context.Background(), plainCode, entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	assert.Nil(t, record, "Использованный код должен быть неотличим от несуществующего")
}

func TestAuthCodeService_InvalidateCode(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)

	invalidated, err := svc.InvalidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.True(t, invalidated, "Валидный код должен быть погашен")

	// Погашенный код больше не валиден
	record, err := svc.ValidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.Nil(t, record)

	// Повторное гашение сообщает, что гасить было нечего
	invalidated, err = svc.InvalidateCode(context.Background(), plainCode, entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.False(t, invalidated)
}

func TestAuthCodeService_InvalidateCodeByID(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	_, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	codeID := repo.onlyID()

	// Несуществующий ID — гасить нечего
	ok, err := svc.InvalidateCodeByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.False(t, ok)

	// Первое гашение по ID
	ok, err = svc.InvalidateCodeByID(context.Background(), codeID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Повторное гашение идемпотентно: код уже в терминальном состоянии
	ok, err = svc.InvalidateCodeByID(context.Background(), codeID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthCodeService_IsCodeValidForUser(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	plainCode, err := svc.GenerateCode(context.Background(), "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)

	ok, err := svc.IsCodeValidForUser(context.Background(), plainCode, entity.AuthCodeTypeEmailConfirmation, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsCodeValidForUser(context.Background(), plainCode, entity.AuthCodeTypeEmailConfirmation, "user-2")
	require.NoError(t, err)
	assert.False(t, ok, "Код не должен проходить проверку для чужого пользователя")
}

// ============================================================================
// Очистка
// ============================================================================

func TestAuthCodeService_Cleanup(t *testing.T) {
	// Arrange
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	ctx := context.Background()
	now := time.Now().UTC()

	// Истекший неиспользованный код
	expiredAt := now.Add(-time.Hour)
	oldUsedAt := now.Add(-48 * time.Hour)
	recentUsedAt := now.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, &entity.AuthCode{
		ID: "11111111-1111-1111-1111-111111111111", CodeHash: "hash-a", UserID: "user-1",
		Type: entity.AuthCodeTypeEmailConfirmation, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: expiredAt,
	}))
	// Использованный код старше периода хранения
	require.NoError(t, repo.Create(ctx, &entity.AuthCode{
		ID: "22222222-2222-2222-2222-222222222222", CodeHash: "hash-b", UserID: "user-1",
		Type: entity.AuthCodeTypePasswordReset, CreatedAt: now.Add(-49 * time.Hour), ExpiresAt: now.Add(time.Hour),
		IsUsed: true, UsedAt: &oldUsedAt,
	}))
	// Недавно использованный код — еще хранится
	require.NoError(t, repo.Create(ctx, &entity.AuthCode{
		ID: "33333333-3333-3333-3333-333333333333", CodeHash: "hash-c", UserID: "user-2",
		Type: entity.AuthCodeTypePasswordReset, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour),
		IsUsed: true, UsedAt: &recentUsedAt,
	}))
	// Свежий валидный код
	require.NoError(t, repo.Create(ctx, &entity.AuthCode{
		ID: "44444444-4444-4444-4444-444444444444", CodeHash: "hash-d", UserID: "user-2",
		Type: entity.AuthCodeTypeEmailConfirmation, CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	}))

	// Act
	stats, err := svc.Cleanup(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ExpiredDeleted, "Должен быть удален один истекший код")
	assert.Equal(t, int64(1), stats.OldUsedDeleted, "Должен быть удален один старый использованный код")
	assert.Equal(t, int64(2), stats.TotalDeleted)
	assert.Equal(t, 2, repo.count(), "Свежий и недавно использованный коды должны остаться")
}

// ============================================================================
// Выборка кодов пользователя
// ============================================================================

func TestAuthCodeService_GetUserCodes(t *testing.T) {
	repo := newFakeAuthCodeRepo()
	svc := createTestAuthCodeService(t, repo)
	ctx := context.Background()

	_, err := svc.GenerateCode(ctx, "user-1", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)
	_, err = svc.GenerateCode(ctx, "user-1", entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	_, err = svc.GenerateCode(ctx, "user-2", entity.AuthCodeTypeEmailConfirmation)
	require.NoError(t, err)

	all, err := svc.GetUserCodes(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2, "Без фильтра должны вернуться все коды пользователя")

	resets, err := svc.GetUserCodes(ctx, "user-1", entity.AuthCodeTypePasswordReset)
	require.NoError(t, err)
	assert.Len(t, resets, 1)

	_, err = svc.GetUserCodes(ctx, "", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
