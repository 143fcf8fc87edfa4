package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"prism-bot/internal/config"
	"prism-bot/internal/db"
	"prism-bot/internal/gates/xui"
	"prism-bot/internal/health"
	"prism-bot/internal/paneltest"
	"prism-bot/internal/scheduler"
	"prism-bot/internal/telegram"
	"prism-bot/internal/web"
)

func main() {
	// Настраиваем структурированное логирование
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting bot-service", "version", "1.0.0", "pid", os.Getpid())

	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"db_dsn", cfg.DBDsn,
		"panel_url", cfg.PanelURL,
		"inbound_id", cfg.InboundID,
		"web_addr", cfg.WebAddr,
		"health_addr", cfg.HealthAddr,
		"require_email", cfg.RequireEmail,
		"has_super_admin", cfg.SuperAdminID != "",
	)

	// Инициализируем репозиторий
	repo, err := db.NewRepository(cfg.DBDsn)
	if err != nil {
		slog.Error("Failed to initialize database repository", "error", err, "dsn", cfg.DBDsn)
		os.Exit(1)
	}
	slog.Info("Database repository initialized successfully")

	// Выполняем миграции
	if err := repo.AutoMigrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed successfully")

	// Создаем клиент панели 3x-ui
	panel, err := xui.NewAPI(xui.Config{
		BaseURL:     cfg.PanelURL,
		Username:    cfg.PanelUsername,
		Password:    cfg.PanelPassword,
		InboundID:   cfg.InboundID,
		DataLimitGB: cfg.DataLimitGB,
		VlessHost:   cfg.VlessHost,
	})
	if err != nil {
		slog.Error("Failed to create panel client", "error", err)
		os.Exit(1)
	}
	slog.Info("Panel client created", "panel_url", cfg.PanelURL)

	// Создаем Telegram сервис
	telegramService, err := telegram.New(cfg, repo, panel)
	if err != nil {
		slog.Error("Failed to create Telegram service", "error", err)
		os.Exit(1)
	}
	slog.Info("Telegram service created successfully")

	// Создаем планировщик
	cronScheduler, err := scheduler.NewScheduler(repo, telegramService.Bot(), cfg)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)

		// Пытаемся продолжить без планировщика
		slog.Warn("Continuing without scheduler - expiration reminders will not work")
		cronScheduler = nil
	} else {
		slog.Info("Scheduler created successfully")
	}

	// Создаем веб-панель администратора
	webServer, err := web.NewServer(cfg, repo, panel, telegramService)
	if err != nil {
		slog.Error("Failed to create web server", "error", err)
		os.Exit(1)
	}
	slog.Info("Web server created", "addr", cfg.WebAddr)

	// Создаем health сервер
	healthServer := health.NewServer(cfg.HealthAddr)
	slog.Info("Health server created", "addr", cfg.HealthAddr)

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Запускаем health сервер в горутине
	go func() {
		slog.Info("Starting health server")
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	defer func() {
		slog.Info("Stopping health server")
		if err := healthServer.Stop(); err != nil {
			slog.Error("Failed to stop health server", "error", err)
		}
	}()

	// Запускаем веб-панель в горутине
	go func() {
		slog.Info("Starting web server")
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web server failed", "error", err)
		}
	}()
	defer func() {
		slog.Info("Stopping web server")
		if err := webServer.Stop(); err != nil {
			slog.Error("Failed to stop web server", "error", err)
		}
	}()

	// Запускаем планировщик если он создан
	if cronScheduler != nil {
		if err := cronScheduler.Start(); err != nil {
			slog.Error("Failed to start scheduler", "error", err)
			slog.Warn("Continuing without scheduler")
		} else {
			slog.Info("Scheduler started successfully")
			defer func() {
				slog.Info("Stopping scheduler")
				cronScheduler.Stop()
			}()
		}
	}

	// Стартовая проверка панели и периодический мониторинг связи
	probe := paneltest.New(panel, cfg.InboundID, adminNotifier(telegramService, cfg.SuperAdminID))
	go probe.RunStartupTest(ctx)
	go probe.RunPeriodicHealthCheck(ctx, 5*time.Minute)

	// Запускаем Telegram бота
	slog.Info("Starting Telegram bot...")
	if err := telegramService.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Telegram bot stopped by signal")
		} else {
			slog.Error("Telegram bot failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Bot service shutdown completed")
}

// adminNotifier шлет сообщения супер-администратору, если он настроен
func adminNotifier(svc *telegram.Service, superAdminID string) func(string) {
	adminID, err := strconv.ParseInt(superAdminID, 10, 64)
	if err != nil || adminID == 0 {
		return nil
	}
	return func(message string) {
		if err := svc.SendMessage(adminID, message); err != nil {
			slog.Error("Не удалось отправить уведомление администратору", "error", err)
		}
	}
}
