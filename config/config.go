package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	WebAppURL     string `mapstructure:"webapp_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	CardImageURL  string `mapstructure:"card_image_url"`
}

// QuotaConfig 免费配额策略：滚动 24 小时窗口内的免费抽牌次数
type QuotaConfig struct {
	DailyFreeLimit int `mapstructure:"daily_free_limit"`
	WindowHours    int `mapstructure:"window_hours"`
}

// Window 滚动窗口时长
func (q QuotaConfig) Window() time.Duration {
	return time.Duration(q.WindowHours) * time.Hour
}

type PaymentConfig struct {
	Currency  string         `mapstructure:"currency"`
	Plans     []PaymentPlan  `mapstructure:"plans"`
	Donations []DonationPlan `mapstructure:"donations"`
}

// PaymentPlan 付费套餐：购买 hours 小时的无限访问，价格为 stars 颗 Telegram Stars
type PaymentPlan struct {
	Hours int    `mapstructure:"hours"`
	Stars int    `mapstructure:"stars"`
	Label string `mapstructure:"label"`
}

// DonationPlan 打赏选项，不影响访问权限
type DonationPlan struct {
	Kind  string `mapstructure:"kind"`
	Stars int    `mapstructure:"stars"`
	Title string `mapstructure:"title"`
}

// Plan 按时长查找套餐
func (p PaymentConfig) Plan(hours int) (PaymentPlan, bool) {
	for _, plan := range p.Plans {
		if plan.Hours == hours {
			return plan, true
		}
	}
	return PaymentPlan{}, false
}

// Donation 按类型查找打赏选项
func (p PaymentConfig) Donation(kind string) (DonationPlan, bool) {
	for _, d := range p.Donations {
		if d.Kind == kind {
			return d, true
		}
	}
	return DonationPlan{}, false
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type CacheConfig struct {
	StatusTTLMinutes int `mapstructure:"status_ttl_minutes"`
}

// StatusTTL 权限快照在 Redis 中的保留时长
func (c CacheConfig) StatusTTL() time.Duration {
	if c.StatusTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.StatusTTLMinutes) * time.Minute
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Quota.DailyFreeLimit <= 0 {
		cfg.Quota.DailyFreeLimit = 5
	}
	if cfg.Quota.WindowHours <= 0 {
		cfg.Quota.WindowHours = 24
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "XTR"
	}
	if len(cfg.Payment.Plans) == 0 {
		cfg.Payment.Plans = []PaymentPlan{
			{Hours: 24, Stars: 10, Label: "24 часа"},
			{Hours: 72, Stars: 25, Label: "3 дня"},
			{Hours: 168, Stars: 50, Label: "7 дней"},
		}
	}
	if len(cfg.Payment.Donations) == 0 {
		cfg.Payment.Donations = []DonationPlan{
			{Kind: "donation_small", Stars: 50, Title: "☕ Кофе автору"},
			{Kind: "donation_medium", Stars: 100, Title: "🍕 Пицца"},
			{Kind: "donation_large", Stars: 500, Title: "🎁 Щедрый донат"},
		}
	}
}
