package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"prism-bot/internal/config"
	"prism-bot/internal/db"
)

// sender - часть Telegram API, через которую сервис шлет сообщения.
// Реализуется *tgbotapi.BotAPI, в тестах подменяется фейком.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Service struct {
	bot   *tgbotapi.BotAPI
	api   sender
	repo  *db.Repository
	panel PanelClient
	cfg   *config.Config

	// pendingEmail - пользователи, от которых ждем e-mail
	pendingEmail map[int64]bool
}

func New(cfg *config.Config, repo *db.Repository, panel PanelClient) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	// Удаляем webhook чтобы использовать long-polling
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		slog.Warn("Не удалось удалить webhook", "error", err)
	} else {
		slog.Info("Webhook удален, переключились на long-polling")
	}

	slog.Info("Авторизован как телеграм бот", "username", bot.Self.UserName)

	service := &Service{
		bot:          bot,
		api:          bot,
		repo:         repo,
		panel:        panel,
		cfg:          cfg,
		pendingEmail: make(map[int64]bool),
	}

	// Устанавливаем меню команд
	err = service.setCommands()
	if err != nil {
		slog.Warn("Не удалось установить меню команд", "error", err)
	}

	return service, nil
}

func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			s.handleUpdate(upd)
		}
	}
}

func (s *Service) handleUpdate(upd tgbotapi.Update) {
	if upd.Message != nil {
		if upd.Message.IsCommand() {
			s.handleCommand(upd.Message)
		} else {
			s.handleEmailMessage(upd.Message)
		}
		return
	}

	if upd.CallbackQuery != nil {
		s.handleCallbackQuery(upd.CallbackQuery)
		return
	}
}

func (s *Service) handleCommand(msg *tgbotapi.Message) {
	cmd := Command(msg.Command())

	if !cmd.IsValid() {
		s.handleUnknown(msg)
		return
	}

	if cmd.IsAdminOnly() && !s.isSuperAdmin(msg.From.ID) {
		s.reply(msg.Chat.ID, "У вас нет прав для этой команды")
		return
	}

	switch cmd {
	case CmdStart:
		s.handleStart(msg)
	case CmdStatus:
		s.handleStatusCommand(msg)
	case CmdHelp:
		s.handleHelpCommand(msg)
	case CmdTest:
		s.handleTest(msg)
	}
}

func (s *Service) handleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	s.answerCallback(callback.ID, "")

	switch CallbackData(callback.Data) {
	case CallbackRegister:
		s.handleRegister(callback)
	case CallbackStatus:
		s.handleStatusCallback(callback)
	case CallbackHelp:
		s.editTo(callback, s.helpText())
	}
}

func (s *Service) handleUnknown(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
}

func (s *Service) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.api.Send(msg)
	return err
}

// editTo заменяет текст сообщения, из которого пришел callback
func (s *Service) editTo(callback *tgbotapi.CallbackQuery, text string) {
	editMsg := tgbotapi.NewEditMessageText(
		callback.Message.Chat.ID,
		callback.Message.MessageID,
		text,
	)
	s.api.Send(editMsg)
}

func (s *Service) answerCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	s.api.Request(callback)
}

func (s *Service) isSuperAdmin(userID int64) bool {
	superAdminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	return err == nil && superAdminID == userID
}

// SendMessage доставляет текст пользователю. Используется админкой
// для повторной отправки конфига.
func (s *Service) SendMessage(chatID int64, text string) error {
	return s.reply(chatID, text)
}

func (s *Service) Bot() *tgbotapi.BotAPI {
	return s.bot
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "🚀 Начать работу"},
		{Command: "status", Description: "📊 Мой статус"},
		{Command: "help", Description: "❓ Справка"},
	}

	config := tgbotapi.NewSetMyCommands(commands...)
	_, err := s.api.Request(config)
	return err
}
