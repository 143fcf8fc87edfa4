package telegram

import (
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Error коды для различных типов ошибок
const (
	ErrInvalidInput      = "INVALID_INPUT"
	ErrDatabaseError     = "DATABASE_ERROR"
	ErrPanelError        = "PANEL_ERROR"
	ErrSubscriptionError = "SUBSCRIPTION_ERROR"
)

// BotError представляет ошибку бота с кодом и сообщением для пользователя.
// Пользователь видит только статический текст: различие между отказом
// транспорта и бизнес-отказом панели ему ничего не дает.
type BotError struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
}

func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

// NewBotError создает новую ошибку бота
func NewBotError(code, message, userMessage, details string) *BotError {
	return &BotError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// handleError логирует ошибку, шлет отчет супер-админу и отвечает
// пользователю статическим текстом.
func (s *Service) handleError(chatID int64, err error) {
	slog.Error("Bot error occurred", "error", err)

	var userMessage string

	if botErr, ok := err.(*BotError); ok {
		userMessage = botErr.UserMessage
		s.sendErrorReport(botErr)
	} else {
		userMessage = "Произошла внутренняя ошибка. Попробуйте позже."
		s.sendErrorReport(&BotError{
			Code:        "UNKNOWN_ERROR",
			Message:     "Unknown error occurred",
			UserMessage: userMessage,
			Details:     err.Error(),
		})
	}

	s.reply(chatID, "❌ "+userMessage)
}

// sendErrorReport отправляет отчет об ошибке супер-админу
func (s *Service) sendErrorReport(botErr *BotError) {
	if s.cfg.SuperAdminID == "" {
		return
	}

	adminID, err := strconv.ParseInt(s.cfg.SuperAdminID, 10, 64)
	if err != nil {
		return
	}

	report := fmt.Sprintf(`🚨 Ошибка в боте:

Код: %s
Сообщение: %s
Детали: %s

Пользователю показано: %s`,
		botErr.Code,
		botErr.Message,
		botErr.Details,
		botErr.UserMessage,
	)

	msg := tgbotapi.NewMessage(adminID, report)
	s.api.Send(msg)
}

// Вспомогательные функции для создания типичных ошибок

func ErrInvalidInputf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrInvalidInput,
		"Invalid input provided",
		"Неверный формат данных. Проверьте правильность ввода.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDatabasef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrDatabaseError,
		"Database operation failed",
		"Ошибка базы данных. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPanelf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPanelError,
		"VPN panel operation failed",
		"Панель VPN временно недоступна. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrSubscriptionf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrSubscriptionError,
		"Subscription operation failed",
		"Ошибка управления подпиской. Обратитесь к администратору.",
		fmt.Sprintf(details, args...),
	)
}
