package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/yourusername/email-service/internal/pkg/errors"
)

// CacheRepo реализует repository.CacheRepository
type CacheRepo struct {
	client redis.UniversalClient
	ctx    context.Context
}

// NewCacheRepo создает новый репозиторий кеша и возвращает ошибку при проблемах
func NewCacheRepo(client redis.UniversalClient) (*CacheRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for CacheRepo")
	}
	return &CacheRepo{
		client: client,
		ctx:    context.Background(),
	}, nil
}

// Set сохраняет значение в кеше
func (r *CacheRepo) Set(key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(r.ctx, key, value, expiration).Err()
}

// Get получает значение из кеша
func (r *CacheRepo) Get(key string) (string, error) {
	val, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.ErrNotFound
		}
		return "", err
	}
	return val, nil
}

// Delete удаляет значение из кеша
func (r *CacheRepo) Delete(key string) error {
	return r.client.Del(r.ctx, key).Err()
}

// Increment увеличивает значение счетчика на 1
func (r *CacheRepo) Increment(key string) (int64, error) {
	return r.client.Incr(r.ctx, key).Result()
}

// IncrementBy увеличивает значение счетчика на value
func (r *CacheRepo) IncrementBy(key string, value int64) (int64, error) {
	return r.client.IncrBy(r.ctx, key, value).Result()
}
