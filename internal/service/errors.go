package service

import "errors"

// Сервисные ошибки с устойчивыми кодами для маппинга error_type в обработчиках.
var (
	// ErrCodeGenerationFailed — сбой криптографического источника или хеширования
	ErrCodeGenerationFailed = errors.New("code_generation_failed")

	// ErrCodePersistenceFailed — сбой хранилища при сохранении кода
	ErrCodePersistenceFailed = errors.New("code_persistence_failed")

	// ErrTemplateNotFound — файл шаблона письма отсутствует
	ErrTemplateNotFound = errors.New("template_not_found")

	// ErrTemplateRender — ошибка рендеринга шаблона письма
	ErrTemplateRender = errors.New("template_render_failed")
)
