package scheduler

import (
	"fmt"
	"log/slog"
	"strconv"

	"prism-bot/internal/config"
	"prism-bot/internal/db"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
)

// expiryWarnDays - за сколько дней предупреждаем об истечении подписки
const expiryWarnDays = 3

type Scheduler struct {
	cron *cron.Cron
	repo *db.Repository
	bot  *tgbotapi.BotAPI
	cfg  *config.Config
}

func NewScheduler(repo *db.Repository, bot *tgbotapi.BotAPI, cfg *config.Config) (*Scheduler, error) {
	return &Scheduler{
		cron: cron.New(),
		repo: repo,
		bot:  bot,
		cfg:  cfg,
	}, nil
}

func (s *Scheduler) Start() error {
	// Cron-задача: напоминания об истечении подписок (ежедневно в 12:00)
	_, err := s.cron.AddFunc("0 12 * * *", s.sendExpirationReminders)
	if err != nil {
		return fmt.Errorf("failed to add expiration reminders job: %w", err)
	}

	s.cron.Start()
	slog.Info("Cron scheduler started")

	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Info("Cron scheduler stopped")
}

// sendExpirationReminders шлет по одному напоминанию каждому, чья
// подписка истекает в ближайшие три дня. Дедупликации нет: пока
// пользователь не продлится, он получает напоминание каждый день.
// Ошибки доставки только логируются.
func (s *Scheduler) sendExpirationReminders() {
	slog.Info("Checking for expiration reminders...")

	subs, err := s.repo.ListExpiringWithin(expiryWarnDays)
	if err != nil {
		slog.Error("Error fetching soon expiring subscriptions", "error", err)
		return
	}

	if len(subs) == 0 {
		return
	}

	slog.Info("Found subscriptions expiring soon", "count", len(subs))

	sent := 0
	for _, sub := range subs {
		text := fmt.Sprintf(`🔔 Ваша VPN-подписка истекает через %d дня!

Дата окончания: %s UTC

Не забудьте продлить подписку, чтобы не потерять доступ к VPN.`,
			expiryWarnDays,
			sub.ExpiresAt.Format("02.01.2006 15:04"),
		)

		msg := tgbotapi.NewMessage(sub.TelegramID, text)
		if _, err := s.bot.Send(msg); err != nil {
			slog.Error("Failed to send expiration reminder", "user_id", sub.TelegramID, "error", err)
			continue
		}
		sent++
	}

	s.sendAdminReport(fmt.Sprintf("🕒 Напоминания об истечении:\n📨 Отправлено: %d из %d", sent, len(subs)))
}

// sendAdminReport отправляет отчет супер-админу
func (s *Scheduler) sendAdminReport(message string) {
	if s.cfg.SuperAdminID == "" {
		return
	}

	adminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	if err != nil {
		return
	}

	msg := tgbotapi.NewMessage(adminID, message)
	s.bot.Send(msg)
}
