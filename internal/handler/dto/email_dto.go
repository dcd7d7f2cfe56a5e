package dto

// SendEmailRequest — запрос на отправку письма с кодом
type SendEmailRequest struct {
	Email  string `json:"email" binding:"required,email"`
	UserID string `json:"user_id" binding:"required"`
}

// ValidateCodeRequest — запрос на проверку кода аутентификации.
// Ограничения длины отсекают заведомо невалидные коды до обращения к БД.
type ValidateCodeRequest struct {
	Code     string `json:"code" binding:"required,min=8,max=64"`
	CodeType string `json:"code_type" binding:"required"`
}

// HealthResponse — ответ health-check эндпоинта
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Components  map[string]string `json:"components,omitempty"`
}

// ErrorResponse — единый формат ошибки API
type ErrorResponse struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}
