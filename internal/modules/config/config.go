package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	bybitKeyENV       = "BYBIT_API_KEY"
	bybitSecretENV    = "BYBIT_API_SECRET"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`
	Bybit struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url"`
		WSURL     string `yaml:"ws_url"`
	} `yaml:"bybit"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Кеш снапшотов позиций/тикера.
	// Тикер фетчится один раз на проход координатора и дальше переиспользуется:
	// согласованность внутри батча важнее свежести цены на каждый ордер.
	PositionTTL time.Duration
	TickerTTL   time.Duration

	// Линейный backoff по троттлингу биржи
	BackoffStep    time.Duration
	BackoffCeiling time.Duration

	// Afford-gate: после отказа "не хватает средств" пуш баев по символу
	// подавляется, пока не уйдёт цена или не истечёт окно.
	AffordWindow    time.Duration
	AffordPriceBand float64

	// Минимальный интервал пушей по одному символу от WS-драйвера
	PushInterval time.Duration
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		PositionTTL: durationFromEnv("POSITION_TTL", "30s"),
		TickerTTL:   durationFromEnv("TICKER_TTL", "1s"),

		BackoffStep:    durationFromEnv("BACKOFF_STEP", "5s"),
		BackoffCeiling: durationFromEnv("BACKOFF_CEILING", "15s"),

		AffordWindow:    durationFromEnv("AFFORD_WINDOW", "8s"),
		AffordPriceBand: floatFromEnv("AFFORD_PRICE_BAND", 15),

		PushInterval: durationFromEnv("PUSH_INTERVAL", "1s"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if v := os.Getenv(bybitKeyENV); v != "" {
		config.Bybit.APIKey = v
	}
	if v := os.Getenv(bybitSecretENV); v != "" {
		config.Bybit.APISecret = v
	}

	if config.Bybit.BaseURL == "" {
		config.Bybit.BaseURL = "https://api.bybit.com"
	}
	if config.Bybit.WSURL == "" {
		config.Bybit.WSURL = "wss://stream.bybit.com/realtime"
	}

	return &config, nil
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
