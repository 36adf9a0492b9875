package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации движка посещаемости.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr собирает host:port для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig описывает gRPC-вход для процессов распознавания.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (реестр лиц и Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig описывает топик с событиями распознавания.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки JWT.
// Токены выпускает внешний сервис, здесь только проверка.
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
	// Пустые значения отключают соответствующую проверку
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// EngineConfig содержит настройки ядра: дедупликация, ledger, кэш аналитики.
type EngineConfig struct {
	// Часовой пояс для границ дня и ISO-недели ("Local", "UTC", "Europe/Moscow")
	Timezone      string  `mapstructure:"timezone"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	CacheSize     int     `mapstructure:"cache_size"`
	DefaultDays   int     `mapstructure:"default_days"`
	// Верхняя граница окна аналитики в днях
	MaxDays int `mapstructure:"max_days"`

	// Защита хранилища: таймаут, ретраи, Circuit Breaker, лимит записи
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"` // Полная загрузка ledger
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	WriteRPS       float64       `mapstructure:"write_rps"`
	CBMaxRequests  uint32        `mapstructure:"cb_max_requests"`
	CBInterval     time.Duration `mapstructure:"cb_interval"`
	CBTimeout      time.Duration `mapstructure:"cb_timeout"`
}

// Location разбирает Timezone. Пустое значение и "Local" дают time.Local.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" || strings.EqualFold(e.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone %q: %w", e.Timezone, err)
	}
	return loc, nil
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: ENGINE_TIMEZONE=UTC перекроет engine.timezone
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// 6. Ключ из ENV (Docker/K8s) или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine.min_confidence must be within [0, 1], got %v", c.Engine.MinConfidence)
	}
	if c.Engine.CacheSize <= 0 {
		return fmt.Errorf("engine.cache_size must be positive, got %d", c.Engine.CacheSize)
	}
	if c.Engine.DefaultDays <= 0 {
		return fmt.Errorf("engine.default_days must be positive, got %d", c.Engine.DefaultDays)
	}
	if c.Engine.MaxDays < c.Engine.DefaultDays {
		return fmt.Errorf("engine.max_days must be at least default_days (%d), got %d", c.Engine.DefaultDays, c.Engine.MaxDays)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("grpc.addr", ":50052")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("kafka.topic", "attendance.recognition-events")
	v.SetDefault("kafka.group_id", "attendance-engine")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("engine.timezone", "Local")
	v.SetDefault("engine.min_confidence", 0.4)
	v.SetDefault("engine.cache_size", 32)
	v.SetDefault("engine.default_days", 30)
	v.SetDefault("engine.max_days", 3660)
	v.SetDefault("engine.storage_timeout", 2*time.Second)
	v.SetDefault("engine.load_timeout", 30*time.Second)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.write_rps", 200)
	v.SetDefault("engine.cb_max_requests", 3)
	v.SetDefault("engine.cb_interval", 5*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
}

func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
