package paneltest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"prism-bot/internal/gates/xui"
)

// Prober - минимальный контракт панели для проверок доступности
type Prober interface {
	Login(ctx context.Context) error
	ListInbounds(ctx context.Context) ([]xui.Inbound, error)
}

// IntegrationTest проверяет связь с панелью 3x-ui при старте сервиса
// и периодически во время работы. Результаты уходят через notifyFn
// (обычно - сообщение супер-администратору в Telegram).
type IntegrationTest struct {
	panel     Prober
	inboundID int
	notifyFn  func(message string)
}

func New(panel Prober, inboundID int, notifyFn func(message string)) *IntegrationTest {
	return &IntegrationTest{
		panel:     panel,
		inboundID: inboundID,
		notifyFn:  notifyFn,
	}
}

// RunStartupTest прогоняет проверки панели при запуске бота.
// Ошибка не фатальна: сервис продолжает работу, но админ узнает сразу.
func (it *IntegrationTest) RunStartupTest(ctx context.Context) {
	slog.Info("Запуск стартовой проверки панели")

	testCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := it.testConnection(testCtx); err != nil {
		slog.Error("Стартовая проверка панели не прошла", "error", err)
		it.notify(fmt.Sprintf("🚨 ВНИМАНИЕ: панель 3x-ui недоступна при старте!\n\nОшибка: %v\n\nРегистрация пользователей не будет работать до восстановления связи.", err))
		return
	}

	if err := it.testInbound(testCtx); err != nil {
		slog.Error("Проверка инбаунда не прошла", "error", err)
		it.notify(fmt.Sprintf("🚨 ВНИМАНИЕ: проблема с инбаундом панели!\n\nОшибка: %v", err))
		return
	}

	slog.Info("Стартовая проверка панели прошла успешно")
	it.notify("✅ Бот запущен, панель 3x-ui доступна, инбаунд на месте.")
}

// testConnection проверяет авторизацию в панели
func (it *IntegrationTest) testConnection(ctx context.Context) error {
	if err := it.panel.Login(ctx); err != nil {
		return fmt.Errorf("авторизация в панели: %w", err)
	}
	return nil
}

// testInbound убеждается, что настроенный инбаунд существует в панели
func (it *IntegrationTest) testInbound(ctx context.Context) error {
	inbounds, err := it.panel.ListInbounds(ctx)
	if err != nil {
		return fmt.Errorf("список инбаундов: %w", err)
	}
	for _, inbound := range inbounds {
		if inbound.ID == it.inboundID {
			if !inbound.Enable {
				return fmt.Errorf("инбаунд %d выключен в панели", it.inboundID)
			}
			return nil
		}
	}
	return fmt.Errorf("инбаунд %d не найден среди %d инбаундов панели", it.inboundID, len(inbounds))
}

// RunPeriodicHealthCheck гоняет проверку связи с панелью по интервалу.
// Алерт уходит после трех подряд неудач, повторный успех сбрасывает счетчик.
func (it *IntegrationTest) RunPeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	const maxFailures = 3

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			slog.Info("Периодическая проверка панели остановлена")
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := it.testConnection(checkCtx)
			cancel()

			if err != nil {
				consecutiveFailures++
				slog.Warn("Проверка панели не прошла",
					"error", err,
					"consecutive_failures", consecutiveFailures,
				)
				if consecutiveFailures == maxFailures {
					it.notify(fmt.Sprintf("🚨 Панель 3x-ui недоступна уже %d проверок подряд!\n\nПоследняя ошибка: %v", consecutiveFailures, err))
				}
				continue
			}

			if consecutiveFailures >= maxFailures {
				it.notify("✅ Связь с панелью 3x-ui восстановлена.")
			}
			consecutiveFailures = 0
		}
	}
}

func (it *IntegrationTest) notify(message string) {
	if it.notifyFn == nil {
		return
	}
	it.notifyFn(message)
}
