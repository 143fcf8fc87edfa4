package telegram

import (
	"context"
	"fmt"
	"regexp"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"prism-bot/internal/db"
)

// emailPattern - e-mail проверяется только на общий вид
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func (s *Service) handleStart(msg *tgbotapi.Message) {
	// Свежий /start сбрасывает недоигранный сценарий с e-mail
	delete(s.pendingEmail, msg.From.ID)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Начать использовать VPN", CallbackRegister.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Мой статус", CallbackStatus.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", CallbackHelp.String()),
		),
	)

	text := fmt.Sprintf(`👋 Привет, %s!

🤖 Я бот для быстрого создания VPN подключений
🔐 Регистрация за 1 клик - используйте ваш Telegram аккаунт

✨ Преимущества:
• ⚡ Мгновенная регистрация
• 🆓 Трафик: %d GB
• 🌐 Доступ к заблокированным ресурсам

Нажмите «🚀 Начать использовать VPN» чтобы получить персональную ссылку!`,
		msg.From.FirstName, s.cfg.DataLimitGB)

	msgConfig := tgbotapi.NewMessage(msg.Chat.ID, text)
	msgConfig.ReplyMarkup = keyboard
	s.api.Send(msgConfig)
}

func (s *Service) handleRegister(callback *tgbotapi.CallbackQuery) {
	user := callback.From
	chatID := callback.Message.Chat.ID

	existing, err := s.repo.GetUser(user.ID)
	if err != nil {
		s.handleError(chatID, ErrDatabasef("lookup user %d: %v", user.ID, err))
		return
	}

	if existing != nil {
		s.editTo(callback, fmt.Sprintf(`✅ Вы уже зарегистрированы!

🔗 Ваша ссылка для подключения:
%s

Используйте кнопку «📊 Мой статус» для подробной информации.`,
			s.panel.SubscriptionURL(existing.XuiClientID)))
		return
	}

	// В варианте с e-mail сперва собираем адрес и только потом идем в панель
	if s.cfg.RequireEmail {
		s.pendingEmail[user.ID] = true
		s.editTo(callback, "📧 Укажите ваш e-mail для регистрации.\n\nОтправьте адрес одним сообщением.")
		return
	}

	s.editTo(callback, "⏳ Создаем ваш VPN аккаунт...\n\nИспользуем данные вашего Telegram аккаунта...")
	s.provision(chatID, user, "")
}

// handleEmailMessage принимает e-mail от пользователя, который
// находится в процессе регистрации. Прочие сообщения игнорируются.
func (s *Service) handleEmailMessage(msg *tgbotapi.Message) {
	if !s.pendingEmail[msg.From.ID] {
		return
	}

	email := msg.Text
	if !validEmail(email) {
		s.reply(msg.Chat.ID, "❌ Неверный формат e-mail. Пример: user@example.com\n\nПопробуйте еще раз.")
		return
	}

	delete(s.pendingEmail, msg.From.ID)
	s.reply(msg.Chat.ID, "⏳ Создаем ваш VPN аккаунт...")
	s.provision(msg.Chat.ID, msg.From, email)
}

// provision - единый сценарий регистрации: идемпотентно заводим
// клиента в панели, сохраняем пользователя и подписку локально.
func (s *Service) provision(chatID int64, from *tgbotapi.User, email string) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	provisioned, err := s.panel.EnsureClient(ctx, from.ID, from.UserName)
	if err != nil {
		s.handleError(chatID, ErrPanelf("ensure client for %d: %v", from.ID, err))
		return
	}

	user := &db.User{
		TelegramID:   from.ID,
		Username:     from.UserName,
		FullName:     fullName(from),
		LanguageCode: from.LanguageCode,
		Email:        email,
		XuiClientID:  provisioned.ClientID,
	}

	created, err := s.repo.CreateUserIfAbsent(user)
	if err != nil {
		s.handleError(chatID, ErrDatabasef("save user %d: %v", from.ID, err))
		return
	}
	if !created {
		// Параллельная или повторная регистрация: запись уже есть,
		// клиент в панели один и тот же - продолжаем как при успехе
		provisioned.Existing = true
	}

	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour)
	if err := s.repo.UpsertSubscription(from.ID, expiresAt, provisioned.ClientID); err != nil {
		s.handleError(chatID, ErrSubscriptionf("upsert subscription for %d: %v", from.ID, err))
		return
	}

	header := "🎉 Регистрация успешна!"
	if provisioned.Existing {
		header = "🔄 Найден существующий аккаунт!"
	}

	userInfo := fmt.Sprintf("👤 Пользователь: %s\n🆔 ID: %d\n", user.FullName, from.ID)
	if from.UserName != "" {
		userInfo += fmt.Sprintf("📱 Username: @%s\n", from.UserName)
	}

	s.reply(chatID, fmt.Sprintf(`%s

%s
📧 Email: %s
📊 Лимит трафика: %d GB
📅 Подписка активна до %s UTC

🔗 Ваша ссылка для подключения:
%s

📱 Как использовать:
1. Скопируйте ссылку выше
2. Вставьте в ваш VPN клиент
3. Активируйте подключение

🛡️ Приятного использования безопасного интернета!`,
		header,
		userInfo,
		provisioned.Email,
		s.cfg.DataLimitGB,
		expiresAt.Format("02.01.2006 15:04"),
		provisioned.SubscriptionURL,
	))
}

func (s *Service) handleStatusCommand(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, s.statusText(msg.From.ID))
}

func (s *Service) handleStatusCallback(callback *tgbotapi.CallbackQuery) {
	s.editTo(callback, s.statusText(callback.From.ID))
}

func (s *Service) statusText(telegramID int64) string {
	user, err := s.repo.GetUser(telegramID)
	if err != nil || user == nil {
		return "❌ Вы не зарегистрированы!\n\nНажмите /start и кнопку «🚀 Начать использовать VPN»."
	}

	text := fmt.Sprintf(`✅ Ваш VPN аккаунт активен

👤 Пользователь: %s
🆔 Telegram ID: %d
📊 Лимит трафика: %d GB
📅 Регистрация: %s
🆔 ID клиента: %s

🔗 Ссылка для подключения:
%s`,
		user.FullName,
		user.TelegramID,
		s.cfg.DataLimitGB,
		user.CreatedAt.Format("02.01.2006"),
		user.XuiClientID,
		s.panel.SubscriptionURL(user.XuiClientID),
	)

	sub, err := s.repo.GetSubscription(telegramID)
	if err == nil && sub != nil {
		text += fmt.Sprintf("\n⏰ Подписка до: %s UTC", sub.ExpiresAt.Format("02.01.2006 15:04"))
	}

	return text
}

func (s *Service) handleHelpCommand(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, s.helpText())
}

func (s *Service) helpText() string {
	support := "администратору"
	if s.cfg.BotUsername != "" {
		support = "@" + s.cfg.BotUsername
	}

	return fmt.Sprintf(`ℹ️ Помощь по использованию VPN бота

🔸 Как зарегистрироваться:
1. Нажмите «🚀 Начать использовать VPN»
2. Бот автоматически создаст аккаунт
3. Получите персональную ссылку

🔸 Как подключиться:
1. Скопируйте полученную ссылку
2. Вставьте в ваш VPN клиент
3. Активируйте подключение

🔸 Поддерживаемые клиенты:
• V2RayN (Windows)
• Shadowrocket (iOS)
• V2RayNG (Android)
• Qv2ray (Linux/Mac/Windows)

🔸 Лимиты:
• Трафик: %d GB
• Без ограничения по времени

🆘 Поддержка: %s`, s.cfg.DataLimitGB, support)
}

// handleTest - проверка доступности панели, только для супер-админа
func (s *Service) handleTest(msg *tgbotapi.Message) {
	s.reply(msg.Chat.ID, "🧪 Тестируем подключение к панели...")

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	if err := s.panel.Ping(ctx); err != nil {
		s.reply(msg.Chat.ID, fmt.Sprintf("❌ Не удалось подключиться к панели: %v", err))
		return
	}
	s.reply(msg.Chat.ID, "✅ Подключение к панели успешно!")
}

func fullName(from *tgbotapi.User) string {
	if from.LastName != "" {
		return from.FirstName + " " + from.LastName
	}
	return from.FirstName
}
