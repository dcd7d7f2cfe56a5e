package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Email    EmailConfig
	Azure    AzureConfig
	App      AppConfig
	AuthCode AuthCodeConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит настройки подключения к Redis (опционально, для метрик)
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'. Если пуст и Addrs пуст —
	// Redis не используется, метрики работают в noop-режиме.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff / MaxRetryBackoff: интервалы между попытками (мс)
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// EmailConfig содержит настройки отправки писем
type EmailConfig struct {
	// Provider: "azure", "resend" или "noop"
	Provider     string `mapstructure:"provider"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
}

// AzureConfig содержит настройки Azure Communication Services
type AzureConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`

	// MockMode: без сетевого ввода-вывода, синтетический успех (только для тестов)
	MockMode bool `mapstructure:"mock_mode"`
}

// AppConfig содержит настройки приложения и генерации ссылок
type AppConfig struct {
	Environment      string `mapstructure:"environment"`
	BaseURL          string `mapstructure:"base_url"`
	ConfirmationPath string `mapstructure:"confirmation_path"`
	ResetPath        string `mapstructure:"reset_path"`
	TemplatesDir     string `mapstructure:"templates_dir"`
}

// AuthCodeConfig содержит политику жизненного цикла кодов
type AuthCodeConfig struct {
	// TTLMinutes: срок действия кода в минутах
	TTLMinutes int `mapstructure:"ttl_minutes"`

	// UsedRetentionHours: сколько часов хранить использованные коды до очистки
	UsedRetentionHours int `mapstructure:"used_retention_hours"`

	// CleanupIntervalMinutes: периодичность фоновой очистки
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// IsConfigured — Redis опционален; без адресов метрики работают в noop-режиме
func (r *RedisConfig) IsConfigured() bool {
	return len(r.Addrs) > 0 || r.Addr != ""
}

// ConfirmationURLBase возвращает базовый URL ссылки подтверждения email
func (a *AppConfig) ConfirmationURLBase() string {
	return strings.TrimRight(a.BaseURL, "/") + a.ConfirmationPath
}

// ResetURLBase возвращает базовый URL ссылки сброса пароля
func (a *AppConfig) ResetURLBase() string {
	return strings.TrimRight(a.BaseURL, "/") + a.ResetPath
}

// TTL возвращает срок действия кода как time.Duration
func (c *AuthCodeConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// UsedRetention возвращает период хранения использованных кодов
func (c *AuthCodeConfig) UsedRetention() time.Duration {
	return time.Duration(c.UsedRetentionHours) * time.Hour
}

// CleanupInterval возвращает периодичность фоновой очистки
func (c *AuthCodeConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// IsProduction проверяет, что сервис запущен в production-окружении
func (a *AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// Значения по умолчанию
	vip.SetDefault("server.port", "8000")
	vip.SetDefault("server.readtimeout", 15)
	vip.SetDefault("server.writetimeout", 15)
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("email.provider", "azure")
	vip.SetDefault("app.environment", "development")
	vip.SetDefault("app.confirmation_path", "/auth/confirm")
	vip.SetDefault("app.reset_path", "/auth/reset")
	vip.SetDefault("app.templates_dir", "templates")
	vip.SetDefault("authcode.ttl_minutes", 5)
	vip.SetDefault("authcode.used_retention_hours", 24)
	vip.SetDefault("authcode.cleanup_interval_minutes", 60)

	// Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции Email
	vip.BindEnv("email.provider", "EMAIL_PROVIDER")
	vip.BindEnv("email.from_address", "EMAIL_FROM_ADDRESS")
	vip.BindEnv("email.from_name", "EMAIL_FROM_NAME")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")

	// Привязка для секции Azure
	vip.BindEnv("azure.endpoint", "AZURE_ENDPOINT")
	vip.BindEnv("azure.access_key", "AZURE_ACCESS_KEY")
	vip.BindEnv("azure.mock_mode", "AZURE_MOCK_MODE")

	// Привязка для секции App
	vip.BindEnv("app.environment", "APP_ENVIRONMENT")
	vip.BindEnv("app.base_url", "APP_BASE_URL")
	vip.BindEnv("app.confirmation_path", "APP_CONFIRMATION_PATH")
	vip.BindEnv("app.reset_path", "APP_RESET_PATH")
	vip.BindEnv("app.templates_dir", "APP_TEMPLATES_DIR")

	// Привязка для секции AuthCode
	vip.BindEnv("authcode.ttl_minutes", "AUTHCODE_TTL_MINUTES")
	vip.BindEnv("authcode.used_retention_hours", "AUTHCODE_USED_RETENTION_HOURS")
	vip.BindEnv("authcode.cleanup_interval_minutes", "AUTHCODE_CLEANUP_INTERVAL_MINUTES")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// Пытаемся прочитать файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверка обязательных параметров
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.App.BaseURL == "" {
		return nil, fmt.Errorf("app base URL is required in config (check APP_BASE_URL env var)")
	}
	if cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("email from address is required in config (check EMAIL_FROM_ADDRESS env var)")
	}

	switch strings.ToLower(cfg.Email.Provider) {
	case "azure":
		if !cfg.Azure.MockMode && (cfg.Azure.Endpoint == "" || cfg.Azure.AccessKey == "") {
			return nil, fmt.Errorf("azure endpoint and access key are required for provider 'azure' (check AZURE_ENDPOINT, AZURE_ACCESS_KEY env vars)")
		}
	case "resend":
		if cfg.Email.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend api key is required for provider 'resend' (check RESEND_API_KEY env var)")
		}
	case "noop":
		// Отправка писем отключена
	default:
		return nil, fmt.Errorf("unknown email provider %q (expected azure, resend or noop)", cfg.Email.Provider)
	}

	if cfg.App.IsProduction() {
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
		}
		if cfg.Azure.MockMode {
			return nil, fmt.Errorf("azure mock mode must not be enabled in production")
		}
	}

	if !cfg.App.IsProduction() {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Configured: %t", cfg.Redis.IsConfigured())
		log.Printf("Email Provider: %s", cfg.Email.Provider)
		log.Printf("Azure Mock Mode: %t", cfg.Azure.MockMode)
		log.Printf("App Base URL: %s", cfg.App.BaseURL)
		log.Printf("Auth Code TTL: %d min", cfg.AuthCode.TTLMinutes)
		log.Printf("-----------------------------------------")
	}

	return &cfg, nil
}
