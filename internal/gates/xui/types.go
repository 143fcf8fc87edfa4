package xui

import "encoding/json"

// Inbound - конфигурация одной входящей точки панели.
// Все поля, не относящиеся к списку клиентов, пересылаются при
// обновлении без изменений - иначе панель отвергнет или испортит inbound.
type Inbound struct {
	ID             int         `json:"id"`
	Up             int64       `json:"up"`
	Down           int64       `json:"down"`
	Total          int64       `json:"total"`
	Remark         string      `json:"remark"`
	Enable         bool        `json:"enable"`
	ExpiryTime     int64       `json:"expiryTime"`
	Listen         string      `json:"listen"`
	Port           int         `json:"port"`
	Protocol       string      `json:"protocol"`
	Settings       RawSettings `json:"settings"`
	StreamSettings string      `json:"streamSettings"`
	Tag            string      `json:"tag"`
	Sniffing       string      `json:"sniffing"`
}

// RawSettings - settings-блоб инбаунда как его отдает панель.
// Канонически это JSON-строка с вложенным объектом, но часть сборок
// панели возвращает уже развернутый объект - принимаем оба вида.
// Маршалится всегда строкой: эндпоинт обновления ждет именно ее.
type RawSettings string

func (s *RawSettings) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = RawSettings(str)
		return nil
	}
	*s = RawSettings(data)
	return nil
}

// Settings - содержимое поля settings инбаунда
type Settings struct {
	Clients    []Client        `json:"clients"`
	Decryption string          `json:"decryption,omitempty"`
	Fallbacks  json.RawMessage `json:"fallbacks,omitempty"`
}

// Client - одна клиентская запись внутри инбаунда
type Client struct {
	ID         string `json:"id"`
	Flow       string `json:"flow"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// apiResponse - общий конверт ответов панели. Флаг success решает
// исход операции независимо от HTTP-статуса.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// decodeSettings разбирает settings-блоб. После RawSettings здесь
// лежит JSON-объект либо еще одна строка с объектом (двойное
// кодирование у старых сборок) - разбираем в обе стороны.
func decodeSettings(raw RawSettings) (*Settings, error) {
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		var quoted string
		if err2 := json.Unmarshal([]byte(raw), &quoted); err2 != nil {
			return nil, err
		}
		if err2 := json.Unmarshal([]byte(quoted), &settings); err2 != nil {
			return nil, err2
		}
	}
	return &settings, nil
}
