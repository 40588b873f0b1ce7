package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	// Outbound endpoint for fire-and-forget exchange notifications.
	// Empty disables notification.
	ExchangeNotifyURL string

	AllowedOrigins []string

	WinAward     int64
	LossPenalty  int64
	ExchangeRate int64

	ResetDelay    time.Duration
	SweepInterval time.Duration

	MsgTemplateDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":8090",
		WinAward:      100,
		LossPenalty:   100,
		ExchangeRate:  400,
		ResetDelay:    3 * time.Second,
		SweepInterval: 30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ExchangeNotifyURL = strings.TrimSpace(os.Getenv("EXCHANGE_NOTIFY_URL"))
	cfg.MsgTemplateDir = strings.TrimSpace(os.Getenv("MSG_TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("WIN_AWARD")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.WinAward = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOSS_PENALTY")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.LossPenalty = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXCHANGE_RATE")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.ExchangeRate = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RESET_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ResetDelay = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.SweepInterval = d
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
