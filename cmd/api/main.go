package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/yourusername/email-service/internal/config"
	"github.com/yourusername/email-service/internal/handler"
	"github.com/yourusername/email-service/internal/middleware"
	pgRepo "github.com/yourusername/email-service/internal/repository/postgres"
	redisRepo "github.com/yourusername/email-service/internal/repository/redis"
	"github.com/yourusername/email-service/internal/service"
	"github.com/yourusername/email-service/pkg/azure"
	"github.com/yourusername/email-service/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Redis опционален: без него счетчики метрик работают в noop-режиме
	var redisClient redis.UniversalClient
	var metrics service.MetricsRecorder = &service.NoopMetrics{}
	if cfg.Redis.IsConfigured() {
		redisClient, err = database.NewUniversalRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		log.Println("Successfully connected to Redis")

		cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			log.Printf("Failed to initialize CacheRepo: %v", err)
			os.Exit(1)
		}
		cacheMetrics, err := service.NewCacheMetrics(cacheRepo)
		if err != nil {
			log.Printf("Failed to initialize CacheMetrics: %v", err)
			os.Exit(1)
		}
		metrics = cacheMetrics
	} else {
		log.Println("Redis не сконфигурирован, счетчики метрик отключены")
	}

	// Инициализируем репозитории
	authCodeRepo := pgRepo.NewAuthCodeRepo(db)

	// Инициализируем сервисы
	authCodeService, err := service.NewAuthCodeService(authCodeRepo, cfg.AuthCode.TTL(), cfg.AuthCode.UsedRetention())
	if err != nil {
		log.Printf("Failed to initialize AuthCodeService: %v", err)
		os.Exit(1)
	}

	templateManager, err := service.NewTemplateManager(
		cfg.App.TemplatesDir,
		cfg.App.ConfirmationURLBase(),
		cfg.App.ResetURLBase(),
	)
	if err != nil {
		log.Printf("Failed to initialize TemplateManager: %v", err)
		os.Exit(1)
	}

	sender, err := buildEmailSender(cfg)
	if err != nil {
		log.Printf("Failed to initialize email sender: %v", err)
		os.Exit(1)
	}

	emailService, err := service.NewEmailService(authCodeService, templateManager, sender, metrics)
	if err != nil {
		log.Printf("Failed to initialize EmailService: %v", err)
		os.Exit(1)
	}

	// Создаем контекст с отменой для корректного завершения работы горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем фоновую задачу очистки истекших и использованных кодов
	go func() {
		interval := cfg.AuthCode.CleanupInterval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("Запуск механизма периодической очистки кодов аутентификации (каждые %s)", interval)

		for {
			select {
			case <-ticker.C:
				log.Println("Выполняю периодическую очистку кодов аутентификации...")
				stats, err := authCodeService.Cleanup(ctx)
				if err != nil {
					log.Printf("Ошибка при очистке кодов: %v", err)
					continue
				}
				metrics.RecordCleanup(stats)
				log.Printf("Очистка кодов выполнена: истекших=%d, использованных=%d", stats.ExpiredDeleted, stats.OldUsedDeleted)
			case <-ctx.Done():
				log.Println("Завершение работы горутины очистки кодов")
				return
			}
		}
	}()

	// Health-проба для эндпоинта /health
	healthProbe := func() map[string]string {
		status := map[string]string{"database": "healthy"}
		sqlDB, err := database.GetSQLDB(db)
		if err != nil || sqlDB.Ping() != nil {
			status["database"] = "unavailable"
		}
		status["auth_code_service"] = "healthy"
		if stats, err := authCodeService.Stats(context.Background()); err != nil || stats.ServiceStatus != "operational" {
			status["auth_code_service"] = "unhealthy"
		}
		if redisClient != nil {
			status["redis"] = "healthy"
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				status["redis"] = "unavailable"
			}
		}
		return status
	}

	// Инициализируем обработчики
	emailHandler := handler.NewEmailHandler(emailService, metrics, cfg.App.Environment, healthProbe)

	// Инициализируем роутер Gin
	isProduction := cfg.App.IsProduction()
	if isProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.RequestLogger())

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.App.BaseURL, "http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	router.GET("/", emailHandler.Root)
	router.GET("/health", emailHandler.Health)
	router.GET("/metrics", emailHandler.Metrics)

	api := router.Group("/api/v1")
	{
		api.POST("/send-confirmation", emailHandler.SendConfirmation)
		api.POST("/send-password-reset", emailHandler.SendPasswordReset)
		api.POST("/validate-code", emailHandler.ValidateCode)
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s (provider: %s)", cfg.Server.Port, cfg.Email.Provider)

	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Отправляем сигнал завершения для всех горутин
	cancel()

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}

	log.Println("Server exited properly")
}

// buildEmailSender выбирает реализацию отправителя по конфигурации
func buildEmailSender(cfg *config.Config) (service.EmailSender, error) {
	switch strings.ToLower(cfg.Email.Provider) {
	case "azure":
		return azure.NewClient(azure.Config{
			Endpoint:    cfg.Azure.Endpoint,
			AccessKey:   cfg.Azure.AccessKey,
			FromAddress: cfg.Email.FromAddress,
			MockMode:    cfg.Azure.MockMode,
		})
	case "resend":
		return service.NewResendEmailSender(cfg.Email.ResendAPIKey, cfg.Email.FromAddress)
	case "noop":
		log.Println("Отправка писем отключена (провайдер noop)")
		return &service.NoopEmailSender{}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}
