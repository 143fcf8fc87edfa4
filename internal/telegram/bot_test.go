package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"prism-bot/internal/config"
	"prism-bot/internal/db"
	"prism-bot/internal/gates/xui"
)

func TestMain(m *testing.M) {

	os.Exit(m.Run())
}

// fakeSender собирает исходящие тексты вместо похода в Telegram
type fakeSender struct {
	texts []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.texts = append(f.texts, m.Text)
	case tgbotapi.EditMessageTextConfig:
		f.texts = append(f.texts, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// fakePanel - PanelClient без сети
type fakePanel struct {
	ensureCalls int
}

func (p *fakePanel) EnsureClient(ctx context.Context, telegramID int64, username string) (*xui.Provisioned, error) {
	p.ensureCalls++
	return &xui.Provisioned{
		ClientID:        "11111111-1111-1111-1111-111111111111",
		Email:           fmt.Sprintf("user%d@telegram.vpn", telegramID),
		SubscriptionURL: p.SubscriptionURL("11111111-1111-1111-1111-111111111111"),
	}, nil
}

func (p *fakePanel) Ping(ctx context.Context) error {
	return nil
}

func (p *fakePanel) SubscriptionURL(clientID string) string {
	return "https://panel.test/sub/1/" + clientID
}

func (p *fakePanel) VlessURL(clientID string, telegramID int64) string {
	return fmt.Sprintf("vless://%s@host:443#user_%d", clientID, telegramID)
}

func setupTestService(t *testing.T) (*Service, *db.Repository) {

	cfg := &config.Config{
		BotToken:     "test_token",
		SuperAdminID: "123456789",
		DataLimitGB:  10,
	}

	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	service := &Service{
		api:          &fakeSender{},
		repo:         repo,
		panel:        &fakePanel{},
		cfg:          cfg,
		pendingEmail: make(map[int64]bool),
	}

	return service, repo
}

func registerCallback(userID int64) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID, FirstName: "Test", UserName: "testuser"},
		Message: &tgbotapi.Message{
			MessageID: 1,
			Chat:      &tgbotapi.Chat{ID: userID},
		},
		Data: CallbackRegister.String(),
	}
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, FirstName: "Test", UserName: "testuser"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected bool
	}{
		{
			name:     "Plain valid address",
			email:    "user@example.com",
			expected: true,
		},
		{
			name:     "No dot in domain",
			email:    "user@com",
			expected: false,
		},
		{
			name:     "Dot right after at",
			email:    "user@.com",
			expected: false,
		},
		{
			name:     "Not an address at all",
			email:    "plainstring",
			expected: false,
		},
		{
			name:     "Whitespace inside",
			email:    "us er@example.com",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validEmail(tt.email)
			if result != tt.expected {
				t.Errorf("validEmail(%q) = %v, want %v", tt.email, result, tt.expected)
			}
		})
	}
}

func TestIsSuperAdmin(t *testing.T) {
	service, _ := setupTestService(t)

	tests := []struct {
		name     string
		userID   int64
		expected bool
	}{
		{
			name:     "Super admin from config",
			userID:   123456789,
			expected: true,
		},
		{
			name:     "Regular user",
			userID:   987654321,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.isSuperAdmin(tt.userID)
			if result != tt.expected {
				t.Errorf("isSuperAdmin(%d) = %v, want %v", tt.userID, result, tt.expected)
			}
		})
	}
}

func TestStatusTextUnregistered(t *testing.T) {
	service, _ := setupTestService(t)

	text := service.statusText(555)
	if !strings.Contains(text, "не зарегистрированы") {
		t.Errorf("statusText for unknown user should report missing registration, got %q", text)
	}
}

func TestStatusTextRegistered(t *testing.T) {
	service, repo := setupTestService(t)

	user := db.User{
		TelegramID:  123456789,
		Username:    "testuser",
		FullName:    "Test User",
		XuiClientID: "11111111-1111-1111-1111-111111111111",
	}
	if _, err := repo.CreateUserIfAbsent(&user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	text := service.statusText(123456789)
	if !strings.Contains(text, "https://panel.test/sub/1/11111111-1111-1111-1111-111111111111") {
		t.Errorf("statusText should contain the derived subscription URL, got %q", text)
	}
	if !strings.Contains(text, "Test User") {
		t.Errorf("statusText should contain the full name, got %q", text)
	}
}

func TestCommandIsValid(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		expected bool
	}{
		{
			name:     "Start command",
			cmd:      CmdStart,
			expected: true,
		},
		{
			name:     "Unknown command",
			cmd:      Command("buy"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.IsValid(); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.cmd, got, tt.expected)
			}
		})
	}
}

func TestBotError(t *testing.T) {
	err := NewBotError("TEST_CODE", "Test message", "User message", "Details")

	if err.Code != "TEST_CODE" {
		t.Errorf("Expected code TEST_CODE, got %s", err.Code)
	}

	if err.UserMessage != "User message" {
		t.Errorf("Expected user message 'User message', got %s", err.UserMessage)
	}

	errorString := err.Error()
	if errorString == "" {
		t.Error("Error() returned empty string")
	}
}

func TestRegisterProvisionsAccount(t *testing.T) {
	service, repo := setupTestService(t)
	out := service.api.(*fakeSender)
	panel := service.panel.(*fakePanel)

	service.handleRegister(registerCallback(42))

	if panel.ensureCalls != 1 {
		t.Fatalf("expected 1 panel call, got %d", panel.ensureCalls)
	}
	if !strings.Contains(out.last(), "https://panel.test/sub/1/") {
		t.Errorf("final reply should contain the subscription URL, got %q", out.last())
	}

	user, err := repo.GetUser(42)
	if err != nil || user == nil {
		t.Fatalf("user should be stored after registration: user=%v err=%v", user, err)
	}
	sub, err := repo.GetSubscription(42)
	if err != nil || sub == nil {
		t.Fatalf("subscription should be stored after registration: sub=%v err=%v", sub, err)
	}
	if sub.UUID != user.XuiClientID {
		t.Errorf("subscription uuid %q should match stored client id %q", sub.UUID, user.XuiClientID)
	}
}

func TestRegisterTwiceKeepsOneClient(t *testing.T) {
	service, _ := setupTestService(t)
	out := service.api.(*fakeSender)
	panel := service.panel.(*fakePanel)

	service.handleRegister(registerCallback(42))
	service.handleRegister(registerCallback(42))

	// Существующий пользователь не порождает второго клиента в панели
	if panel.ensureCalls != 1 {
		t.Errorf("expected 1 panel call after repeat registration, got %d", panel.ensureCalls)
	}
	if !strings.Contains(out.last(), "уже зарегистрированы") {
		t.Errorf("repeat registration should report existing account, got %q", out.last())
	}
}

func TestRegisterEmailFlow(t *testing.T) {
	service, repo := setupTestService(t)
	service.cfg.RequireEmail = true
	out := service.api.(*fakeSender)
	panel := service.panel.(*fakePanel)

	service.handleRegister(registerCallback(42))

	if panel.ensureCalls != 0 {
		t.Fatalf("panel must not be called before the email arrives, got %d calls", panel.ensureCalls)
	}
	if !strings.Contains(out.last(), "e-mail") {
		t.Fatalf("register press should ask for an email, got %q", out.last())
	}

	// Кривой адрес - переспрашиваем, сценарий не сбрасывается
	service.handleEmailMessage(textMessage(42, "not-an-email"))
	if !strings.Contains(out.last(), "Неверный формат") {
		t.Errorf("bad email should be re-prompted, got %q", out.last())
	}
	if !service.pendingEmail[42] {
		t.Error("bad email must keep the pending state")
	}

	service.handleEmailMessage(textMessage(42, "user@example.com"))

	if panel.ensureCalls != 1 {
		t.Errorf("valid email should trigger provisioning, got %d calls", panel.ensureCalls)
	}
	if service.pendingEmail[42] {
		t.Error("pending state must be cleared after provisioning")
	}
	user, err := repo.GetUser(42)
	if err != nil || user == nil {
		t.Fatalf("user should be stored: user=%v err=%v", user, err)
	}
	if user.Email != "user@example.com" {
		t.Errorf("stored email = %q, want user@example.com", user.Email)
	}
}

func TestStartResetsEmailPrompt(t *testing.T) {
	service, _ := setupTestService(t)
	service.cfg.RequireEmail = true
	panel := service.panel.(*fakePanel)

	service.handleRegister(registerCallback(42))
	service.handleStart(textMessage(42, "/start"))

	// После /start брошенный e-mail сценарий забыт
	service.handleEmailMessage(textMessage(42, "user@example.com"))
	if panel.ensureCalls != 0 {
		t.Errorf("abandoned email flow must not provision after /start, got %d calls", panel.ensureCalls)
	}
}

func TestStrayMessageIsIgnored(t *testing.T) {
	service, _ := setupTestService(t)
	out := service.api.(*fakeSender)

	service.handleEmailMessage(textMessage(42, "hello"))
	if len(out.texts) != 0 {
		t.Errorf("message outside the email flow should be ignored, got %v", out.texts)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		errFunc  func() *BotError
		wantCode string
	}{
		{
			name: "ErrInvalidInputf",
			errFunc: func() *BotError {
				return ErrInvalidInputf("test details %s", "arg")
			},
			wantCode: ErrInvalidInput,
		},
		{
			name: "ErrDatabasef",
			errFunc: func() *BotError {
				return ErrDatabasef("db error")
			},
			wantCode: ErrDatabaseError,
		},
		{
			name: "ErrPanelf",
			errFunc: func() *BotError {
				return ErrPanelf("panel is down")
			},
			wantCode: ErrPanelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.errFunc()
			if err.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, err.Code)
			}
			if err.UserMessage == "" {
				t.Error("UserMessage should not be empty")
			}
		})
	}
}
