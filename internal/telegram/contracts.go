package telegram

import (
	"context"

	"prism-bot/internal/gates/xui"
)

// PanelClient - операции панели, нужные боту.
// Реализуется xui.API, в тестах подменяется фейком.
type PanelClient interface {
	EnsureClient(ctx context.Context, telegramID int64, username string) (*xui.Provisioned, error)

	Ping(ctx context.Context) error

	SubscriptionURL(clientID string) string

	VlessURL(clientID string, telegramID int64) string
}
