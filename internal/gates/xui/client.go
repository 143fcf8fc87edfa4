package xui

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const gib = 1 << 30

// API - клиент REST API панели 3x-ui. Сессия держится на куке,
// которую панель выставляет при логине.
//
// Все операции записи над инбаундом - это чтение-изменение-запись
// целиком, поэтому они сериализуются через mu: параллельные
// регистрации в один инбаунд иначе теряют чужие изменения.
type API struct {
	baseURL     string
	username    string
	password    string
	inboundID   int
	dataLimitGB int
	vlessHost   string

	httpClient *http.Client
	mu         sync.Mutex
}

type Config struct {
	BaseURL     string
	Username    string
	Password    string
	InboundID   int
	DataLimitGB int
	VlessHost   string
	Timeout     time.Duration
}

// Provisioned - результат создания или поиска клиента в панели
type Provisioned struct {
	ClientID        string
	Email           string
	SubscriptionURL string
	Existing        bool
}

func NewAPI(cfg Config) (*API, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &API{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		username:    cfg.Username,
		password:    cfg.Password,
		inboundID:   cfg.InboundID,
		dataLimitGB: cfg.DataLimitGB,
		vlessHost:   cfg.VlessHost,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				// Панели почти всегда живут на self-signed сертификатах
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}, nil
}

// Login авторизуется в панели. Статус 200 считается успехом,
// сессионная кука остается в jar.
func (a *API) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: a.username, Password: a.password})
	if err != nil {
		return fmt.Errorf("сериализация данных авторизации: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос авторизации: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("авторизация в панели не удалась: статус %d", resp.StatusCode)
	}

	return nil
}

// ListInbounds возвращает инбаунды панели в порядке, в котором их отдает API.
func (a *API) ListInbounds(ctx context.Context) ([]Inbound, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос списка инбаундов: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("список инбаундов: статус %d, body=%s", resp.StatusCode, body)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("разбор ответа: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("панель отклонила запрос: %s", envelope.Msg)
	}

	var inbounds []Inbound
	if err := json.Unmarshal(envelope.Data, &inbounds); err != nil {
		return nil, fmt.Errorf("разбор списка инбаундов: %w", err)
	}
	return inbounds, nil
}

// GetInbound находит инбаунд по id среди полученных от панели.
func (a *API) GetInbound(ctx context.Context, id int) (*Inbound, error) {
	inbounds, err := a.ListInbounds(ctx)
	if err != nil {
		return nil, err
	}
	for i := range inbounds {
		if inbounds[i].ID == id {
			return &inbounds[i], nil
		}
	}
	return nil, fmt.Errorf("инбаунд %d не найден в панели", id)
}

// FindClientByTgID ищет клиента по владельцу. Линейный проход:
// клиентов в инбаунде десятки, максимум тысячи.
func FindClientByTgID(settings *Settings, telegramID int64) *Client {
	tag := fmt.Sprintf("%d", telegramID)
	for i := range settings.Clients {
		if settings.Clients[i].TgID == tag {
			return &settings.Clients[i]
		}
	}
	return nil
}

// EnsureClient идемпотентно создает клиента для telegram-пользователя.
// Сначала ищем существующего по владельцу в актуальном списке панели
// под той же сессией; второй клиент для того же владельца не создается
// никогда. Новому клиенту выдаются свежий UUID, flow xtls-rprx-vision,
// квота DataLimitGB в байтах и нулевое время истечения (без срока).
func (a *API) EnsureClient(ctx context.Context, telegramID int64, username string) (*Provisioned, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.Login(ctx); err != nil {
		return nil, err
	}

	inbound, err := a.GetInbound(ctx, a.inboundID)
	if err != nil {
		return nil, err
	}

	settings, err := decodeSettings(inbound.Settings)
	if err != nil {
		return nil, fmt.Errorf("разбор settings инбаунда: %w", err)
	}

	if existing := FindClientByTgID(settings, telegramID); existing != nil {
		slog.Info("Клиент уже есть в панели", "telegram_id", telegramID, "client_id", existing.ID)
		return &Provisioned{
			ClientID:        existing.ID,
			Email:           existing.Email,
			SubscriptionURL: a.SubscriptionURL(existing.ID),
			Existing:        true,
		}, nil
	}

	client := Client{
		ID:         uuid.New().String(),
		Flow:       "xtls-rprx-vision",
		Email:      clientEmail(telegramID, username),
		LimitIP:    0,
		TotalGB:    int64(a.dataLimitGB) * gib,
		ExpiryTime: 0,
		Enable:     true,
		TgID:       fmt.Sprintf("%d", telegramID),
		SubID:      "",
	}

	// Остальные клиенты инбаунда остаются как были
	settings.Clients = append(settings.Clients, client)

	if err := a.persistSettings(ctx, inbound, settings); err != nil {
		return nil, err
	}

	slog.Info("Клиент создан в панели",
		"telegram_id", telegramID,
		"client_id", client.ID,
		"email", client.Email,
		"quota_bytes", client.TotalGB,
	)

	return &Provisioned{
		ClientID:        client.ID,
		Email:           client.Email,
		SubscriptionURL: a.SubscriptionURL(client.ID),
	}, nil
}

// RemoveClientByTgID убирает клиента владельца из инбаунда.
// Отсутствие клиента - не ошибка: панель могла удалить его сама.
func (a *API) RemoveClientByTgID(ctx context.Context, telegramID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.Login(ctx); err != nil {
		return err
	}

	inbound, err := a.GetInbound(ctx, a.inboundID)
	if err != nil {
		return err
	}

	settings, err := decodeSettings(inbound.Settings)
	if err != nil {
		return fmt.Errorf("разбор settings инбаунда: %w", err)
	}

	tag := fmt.Sprintf("%d", telegramID)
	kept := settings.Clients[:0]
	removed := 0
	for _, client := range settings.Clients {
		if client.TgID == tag {
			removed++
			continue
		}
		kept = append(kept, client)
	}
	if removed == 0 {
		slog.Info("Клиент для удаления не найден в панели", "telegram_id", telegramID)
		return nil
	}
	settings.Clients = kept

	if err := a.persistSettings(ctx, inbound, settings); err != nil {
		return err
	}

	slog.Info("Клиент удален из панели", "telegram_id", telegramID, "removed", removed)
	return nil
}

// persistSettings сериализует settings обратно в инбаунд и отправляет
// объект целиком: streamSettings, sniffing, tag, port, protocol, listen
// и remark уезжают нетронутыми.
func (a *API) persistSettings(ctx context.Context, inbound *Inbound, settings *Settings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("сериализация settings: %w", err)
	}
	inbound.Settings = RawSettings(settingsJSON)

	body, err := json.Marshal(inbound)
	if err != nil {
		return fmt.Errorf("сериализация инбаунда: %w", err)
	}

	url := fmt.Sprintf("%s/panel/api/inbounds/update/%d", a.baseURL, inbound.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос обновления инбаунда: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("чтение ответа: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("разбор ответа: %w, body=%s", err, respBody)
	}
	if !envelope.Success {
		return fmt.Errorf("обновление инбаунда не удалось: %s", envelope.Msg)
	}

	return nil
}

// Ping проверяет доступность панели: логин плюс чтение списка инбаундов.
func (a *API) Ping(ctx context.Context) error {
	if err := a.Login(ctx); err != nil {
		return err
	}
	_, err := a.ListInbounds(ctx)
	return err
}

// SubscriptionURL - чистая конкатенация, ссылка обязана байт в байт
// совпадать с тем, что ожидает subscription-эндпоинт панели.
func (a *API) SubscriptionURL(clientID string) string {
	return fmt.Sprintf("%s/sub/%d/%s", a.baseURL, a.inboundID, clientID)
}

// VlessURL собирает прямую ссылку конфигурации для показа пользователю.
func (a *API) VlessURL(clientID string, telegramID int64) string {
	return fmt.Sprintf("vless://%s@%s:443?security=reality&encryption=none&type=tcp&flow=xtls-rprx-vision#user_%d",
		clientID, a.vlessHost, telegramID)
}

// clientEmail выводит email клиента из данных Telegram
func clientEmail(telegramID int64, username string) string {
	if username != "" {
		return strings.ToLower(fmt.Sprintf("%s@telegram.%d.vpn", username, telegramID))
	}
	return fmt.Sprintf("user%d@telegram.vpn", telegramID)
}
