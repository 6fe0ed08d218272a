package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Payments PaymentsConfig `koanf:"payments"`
	Audit    AuditConfig    `koanf:"audit"`
}

type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	CORSAllowedOrigins []string `koanf:"corsallowedorigins"`
}

type DatabaseConfig struct {
	URL                   string `koanf:"url"`
	MaxConns              int    `koanf:"maxconns"`
	ConnectTimeoutSeconds int    `koanf:"connecttimeoutseconds"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type PaymentsConfig struct {
	Webhook     WebhookConfig     `koanf:"webhook"`
	MercadoPago MercadoPagoConfig `koanf:"mercadopago"`
}

type WebhookConfig struct {
	MaxBodyBytes        int64           `koanf:"maxbodybytes"`
	ReplayWindowSeconds int             `koanf:"replaywindowseconds"`
	DeliveryTTLHours    int             `koanf:"deliveryttlhours"`
	MemoryDedupSize     int             `koanf:"memorydedupsize"`
	Retention           RetentionConfig `koanf:"retention"`
}

type RetentionConfig struct {
	Enabled         bool `koanf:"enabled"`
	IntervalSeconds int  `koanf:"intervalseconds"`
	BatchSize       int  `koanf:"batchsize"`
}

type MercadoPagoConfig struct {
	Enabled        bool   `koanf:"enabled"`
	WebhookSecret  string `koanf:"webhooksecret"`
	MaxSkewSeconds int    `koanf:"maxskewseconds"`
}

type AuditConfig struct {
	Enabled             bool `koanf:"enabled"`
	BufferSize          int  `koanf:"buffersize"`
	BatchSize           int  `koanf:"batchsize"`
	FlushIntervalMillis int  `koanf:"flushintervalmillis"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                                8080,
		"server.host":                                "0.0.0.0",
		"database.maxconns":                          10,
		"database.connecttimeoutseconds":             5,
		"log.level":                                  "info",
		"log.format":                                 "json",
		"payments.webhook.maxbodybytes":              1 << 20,
		"payments.webhook.replaywindowseconds":       0,
		"payments.webhook.deliveryttlhours":          72,
		"payments.webhook.memorydedupsize":           10000,
		"payments.webhook.retention.enabled":         true,
		"payments.webhook.retention.intervalseconds": 3600,
		"payments.webhook.retention.batchsize":       500,
		"payments.mercadopago.enabled":               false,
		"payments.mercadopago.maxskewseconds":        0,
		"audit.enabled":                              true,
		"audit.buffersize":                           1024,
		"audit.batchsize":                            50,
		"audit.flushintervalmillis":                  1000,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// Environment variables override everything
	// MEDBOOK_SERVER_PORT -> server.port
	_ = k.Load(env.Provider("MEDBOOK_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "MEDBOOK_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
