package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния записи
	// (например, код уже помечен использованным другим запросом).
	ErrConflict = errors.New("resource state conflict")
)
