package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	BotToken     string `env:"BOT_TOKEN,required"`
	BotUsername  string `env:"BOT_USERNAME"`
	SuperAdminID string `env:"SUPER_ADMIN_ID"`

	PanelURL      string `env:"XUI_PANEL_URL,required"`
	PanelUsername string `env:"XUI_USERNAME,required"`
	PanelPassword string `env:"XUI_PASSWORD,required"`
	InboundID     int    `env:"INBOUND_ID" envDefault:"1"`
	DataLimitGB   int    `env:"DATA_LIMIT_GB" envDefault:"10"`
	VlessHost     string `env:"VLESS_HOST"`

	DBDsn string `env:"DB_DSN" envDefault:"/data/prismvpn.db"`

	RequireEmail bool `env:"REQUIRE_EMAIL" envDefault:"false"`

	AdminUser string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPass string `env:"ADMIN_PASS" envDefault:"vpn123"`
	WebAddr   string `env:"WEB_ADDR" envDefault:"0.0.0.0:8081"`

	HealthAddr string `env:"HEALTH_ADDR" envDefault:"0.0.0.0:8080"`
}

// Load читает .env (если есть) и переменные окружения.
// Отсутствие обязательных переменных - фатальная ошибка конфигурации.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("чтение конфигурации: %w", err)
	}

	return cfg, nil
}
