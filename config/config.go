package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Access       AccessConfig       `mapstructure:"access"`
	Context      ContextConfig      `mapstructure:"context"`
	Generator    GeneratorConfig    `mapstructure:"generator"`
	Emotion      EmotionConfig      `mapstructure:"emotion"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"gt=0"`
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	Path         string        `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret" validate:"required"`
	ExpireHours int    `mapstructure:"expire_hours" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Dev   bool   `mapstructure:"dev"`
}

// AccessConfig 配额、口令与防爆破相关参数
type AccessConfig struct {
	DailyMessageLimit   int           `mapstructure:"daily_message_limit" validate:"gt=0"`
	LowQuotaThreshold   int           `mapstructure:"low_quota_threshold" validate:"gte=0"`
	MaxPasswordAttempts int           `mapstructure:"max_password_attempts" validate:"gt=0"`
	LockoutDuration     time.Duration `mapstructure:"lockout_duration" validate:"gt=0"`
	PasswordWaitTimeout time.Duration `mapstructure:"password_wait_timeout" validate:"gt=0"`
	ExpiryWarningWindow time.Duration `mapstructure:"expiry_warning_window" validate:"gt=0"`
	AvailableDurations  []int         `mapstructure:"available_durations" validate:"min=1,dive,gt=0"`
	AdminUserIDs        []int64       `mapstructure:"admin_user_ids"`
}

// ContextConfig 上下文组装参数
type ContextConfig struct {
	HistoryWindow      int    `mapstructure:"history_window" validate:"gt=0"`
	ReinjectEvery      int    `mapstructure:"reinject_every" validate:"gt=0"`
	EmotionSummarySize int    `mapstructure:"emotion_summary_size" validate:"gt=0"`
	BaseDirective      string `mapstructure:"base_directive" validate:"required"`
	StyleDirective     string `mapstructure:"style_directive" validate:"required"`
}

type GeneratorConfig struct {
	BaseURL          string             `mapstructure:"base_url"`
	APIKey           string             `mapstructure:"api_key"`
	Model            string             `mapstructure:"model"`
	Temperature      float64            `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP             float64            `mapstructure:"top_p" validate:"gte=0,lte=1"`
	FrequencyPenalty float64            `mapstructure:"frequency_penalty"`
	PresencePenalty  float64            `mapstructure:"presence_penalty"`
	ModeTemperatures map[string]float64 `mapstructure:"mode_temperatures"`
	Timeout          time.Duration      `mapstructure:"timeout" validate:"gt=0"`
}

type EmotionConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type HousekeepingConfig struct {
	SweepInterval        time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	CounterRetentionDays int           `mapstructure:"counter_retention_days" validate:"gt=0"`
}

// Defaults 返回内置默认配置，配置文件与环境变量在其之上覆盖
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "debug"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Path:         "himera.db",
			MaxIdleConns: 10,
			MaxOpenConns: 100,
			QueryTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379, PoolSize: 10},
		JWT:   JWTConfig{ExpireHours: 24 * 7},
		Log:   LogConfig{Level: "info"},
		Access: AccessConfig{
			DailyMessageLimit:   20,
			LowQuotaThreshold:   5,
			MaxPasswordAttempts: 5,
			LockoutDuration:     15 * time.Minute,
			PasswordWaitTimeout: 10 * time.Minute,
			ExpiryWarningWindow: 48 * time.Hour,
			AvailableDurations:  []int{3, 30, 180, 365},
		},
		Context: ContextConfig{
			HistoryWindow:      20,
			ReinjectEvery:      5,
			EmotionSummarySize: 3,
			BaseDirective:      "Ты Химера. Отвечай живым разговорным языком, без разметки.",
			StyleDirective:     "Напоминание о стиле: никаких списков, звёздочек и символов разметки. Пиши сплошным текстом.",
		},
		Generator: GeneratorConfig{
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			Temperature: 0.8,
			TopP:        0.9,
			ModeTemperatures: map[string]float64{
				"auto":   0.8,
				"expert": 0.4,
				"writer": 1.0,
			},
			Timeout: 60 * time.Second,
		},
		Emotion: EmotionConfig{Timeout: 5 * time.Second},
		Housekeeping: HousekeepingConfig{
			SweepInterval:        time.Hour,
			CounterRetentionDays: 7,
		},
	}
}

func Load(configPath string) (*Config, error) {
	// config.local.yaml 存放真实密钥，存在时优先
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Access.LowQuotaThreshold >= c.Access.DailyMessageLimit {
		return fmt.Errorf("invalid config: access.low_quota_threshold must be below access.daily_message_limit")
	}
	return nil
}

// IsAdmin 判断用户是否在管理员名单中
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Access.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
