package repository

import (
	"time"
)

// CacheRepository определяет методы для работы с кешем.
// Используется сервисом метрик для счетчиков операций.
type CacheRepository interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Get(key string) (string, error)
	Delete(key string) error
	Increment(key string) (int64, error)
	IncrementBy(key string, value int64) (int64, error)
}
