package service

import (
	"errors"
	"log"
	"strconv"

	"github.com/yourusername/email-service/internal/domain/repository"
	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
)

// Операции, по которым ведутся счетчики
const (
	MetricSendConfirmation  = "send_confirmation"
	MetricSendPasswordReset = "send_password_reset"
	MetricValidateCode      = "validate_code"
	MetricCleanupExpired    = "cleanup_expired"
	MetricCleanupUsed       = "cleanup_used"
)

// MetricsRecorder копит операционные счетчики сервиса.
// Сбой записи метрики никогда не влияет на основную операцию.
type MetricsRecorder interface {
	RecordOperation(operation string, success bool)
	RecordCleanup(stats CleanupStats)
	Snapshot() map[string]int64
}

// NoopMetrics используется, когда Redis не сконфигурирован
type NoopMetrics struct{}

func (m *NoopMetrics) RecordOperation(operation string, success bool) {}

func (m *NoopMetrics) RecordCleanup(stats CleanupStats) {}

func (m *NoopMetrics) Snapshot() map[string]int64 {
	return map[string]int64{}
}

// CacheMetrics хранит счетчики в кеше (Redis), переживая рестарты процесса
type CacheMetrics struct {
	cache repository.CacheRepository
}

// NewCacheMetrics создает рекордер метрик поверх кеша
func NewCacheMetrics(cache repository.CacheRepository) (*CacheMetrics, error) {
	if cache == nil {
		return nil, errors.New("cache repository is required for CacheMetrics")
	}
	return &CacheMetrics{cache: cache}, nil
}

func metricKey(operation string, success bool) string {
	if success {
		return "metrics:" + operation + ":success"
	}
	return "metrics:" + operation + ":failure"
}

// RecordOperation увеличивает счетчик успеха/провала операции
func (m *CacheMetrics) RecordOperation(operation string, success bool) {
	if _, err := m.cache.Increment(metricKey(operation, success)); err != nil {
		log.Printf("[Metrics] не удалось записать метрику %s: %v", operation, err)
	}
}

// RecordCleanup добавляет итоги прохода очистки к счетчикам
func (m *CacheMetrics) RecordCleanup(stats CleanupStats) {
	if stats.ExpiredDeleted > 0 {
		if _, err := m.cache.IncrementBy("metrics:"+MetricCleanupExpired+":deleted", stats.ExpiredDeleted); err != nil {
			log.Printf("[Metrics] не удалось записать метрику очистки: %v", err)
		}
	}
	if stats.OldUsedDeleted > 0 {
		if _, err := m.cache.IncrementBy("metrics:"+MetricCleanupUsed+":deleted", stats.OldUsedDeleted); err != nil {
			log.Printf("[Metrics] не удалось записать метрику очистки: %v", err)
		}
	}
}

// Snapshot возвращает текущие значения всех известных счетчиков
func (m *CacheMetrics) Snapshot() map[string]int64 {
	keys := []string{
		metricKey(MetricSendConfirmation, true),
		metricKey(MetricSendConfirmation, false),
		metricKey(MetricSendPasswordReset, true),
		metricKey(MetricSendPasswordReset, false),
		metricKey(MetricValidateCode, true),
		metricKey(MetricValidateCode, false),
		"metrics:" + MetricCleanupExpired + ":deleted",
		"metrics:" + MetricCleanupUsed + ":deleted",
	}

	snapshot := make(map[string]int64, len(keys))
	for _, key := range keys {
		raw, err := m.cache.Get(key)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				log.Printf("[Metrics] не удалось прочитать счетчик %s: %v", key, err)
			}
			snapshot[key] = 0
			continue
		}
		value, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			snapshot[key] = 0
			continue
		}
		snapshot[key] = value
	}
	return snapshot
}
