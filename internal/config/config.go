package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Kakao struct {
	BaseURL          string
	CID              string
	SecretKey        string
	ApprovalRedirect string
}

type Naver struct {
	APIBaseURL       string
	ServiceDomain    string
	PartnerID        string
	ClientID         string
	ClientSecret     string
	ChainID          string
	CancelURL        string
	ApprovalRedirect string
}

type Config struct {
	Host            string
	Port            string
	SiteURL         string
	DataDir         string
	LogLevel        string
	AppVersion      string
	GitSHA          string
	Environment     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	ProviderTimeout time.Duration

	OrderSecret     string
	OrderSignTTL    time.Duration
	PaymentsEnabled bool
	RefundReissue   bool
	PricingFile     string

	AdminPass      string
	MetricsToken   string
	AnalyticsToken string

	SlackWebhookURL string

	LedgerBackend string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  []string
	KafkaTopic    string

	RotateCron string
	BackupCron string
	PruneCron  string
	PruneDays  int

	Kakao Kakao
	Naver Naver
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", "3000")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("GIT_SHA", "local")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("PROVIDER_TIMEOUT", 30*time.Second)
	v.SetDefault("ORDER_SECRET", "dev_secret")
	v.SetDefault("ORDER_SIGN_TTL", 300)
	v.SetDefault("PAYMENTS_ENABLED", "1")
	v.SetDefault("OPS_REFUND_REISSUE", "0")
	v.SetDefault("LEDGER_BACKEND", "ndjson")
	v.SetDefault("KAFKA_TOPIC", "mindquiz-events")
	v.SetDefault("ROTATE_CRON", "0 4 * * 1")
	v.SetDefault("BACKUP_CRON", "30 3 * * *")
	v.SetDefault("PRUNE_CRON", "0 5 * * *")
	v.SetDefault("PRUNE_DAYS", 30)
	v.SetDefault("KAKAOPAY_API_BASE", "https://open-api.kakaopay.com")
	v.SetDefault("KAKAOPAY_APPROVAL_REDIRECT", "/payment/complete")
	v.SetDefault("NAVERPAY_API_DOMAIN", "dev.apis.naver.com")
	v.SetDefault("NAVERPAY_SERVICE_DOMAIN", "test-m.pay.naver.com")
	v.SetDefault("NAVERPAY_APPROVAL_REDIRECT", "/payment/complete")
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:            v.GetString("HOST"),
		Port:            v.GetString("PORT"),
		SiteURL:         strings.TrimRight(v.GetString("SITE_URL"), "/"),
		DataDir:         v.GetString("DATA_DIR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		AppVersion:      v.GetString("APP_VERSION"),
		GitSHA:          v.GetString("GIT_SHA"),
		Environment:     v.GetString("APP_ENV"),
		RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),

		OrderSecret:     v.GetString("ORDER_SECRET"),
		OrderSignTTL:    time.Duration(v.GetInt("ORDER_SIGN_TTL")) * time.Second,
		PaymentsEnabled: v.GetString("PAYMENTS_ENABLED") == "1",
		RefundReissue:   v.GetString("OPS_REFUND_REISSUE") == "1",
		PricingFile:     v.GetString("PRICING_FILE"),

		AdminPass:      v.GetString("ADMIN_PASS"),
		MetricsToken:   v.GetString("METRICS_TOKEN"),
		AnalyticsToken: v.GetString("ANALYTICS_TOKEN"),

		SlackWebhookURL: v.GetString("SLACK_WEBHOOK_URL"),

		LedgerBackend: strings.ToLower(v.GetString("LEDGER_BACKEND")),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		KafkaBrokers:  splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:    v.GetString("KAFKA_TOPIC"),

		RotateCron: v.GetString("ROTATE_CRON"),
		BackupCron: v.GetString("BACKUP_CRON"),
		PruneCron:  v.GetString("PRUNE_CRON"),
		PruneDays:  v.GetInt("PRUNE_DAYS"),

		Kakao: Kakao{
			BaseURL:          strings.TrimRight(v.GetString("KAKAOPAY_API_BASE"), "/"),
			CID:              v.GetString("KAKAOPAY_CID"),
			SecretKey:        v.GetString("KAKAOPAY_SECRET_KEY"),
			ApprovalRedirect: v.GetString("KAKAOPAY_APPROVAL_REDIRECT"),
		},
		Naver: Naver{
			APIBaseURL:       naverAPIBase(v),
			ServiceDomain:    v.GetString("NAVERPAY_SERVICE_DOMAIN"),
			PartnerID:        v.GetString("NAVERPAY_PARTNER_ID"),
			ClientID:         v.GetString("NAVERPAY_CLIENT_ID"),
			ClientSecret:     v.GetString("NAVERPAY_CLIENT_SECRET"),
			ChainID:          v.GetString("NAVERPAY_CHAIN_ID"),
			CancelURL:        v.GetString("NAVERPAY_CANCEL_URL"),
			ApprovalRedirect: v.GetString("NAVERPAY_APPROVAL_REDIRECT"),
		},
	}

	if cfg.SiteURL == "" {
		cfg.SiteURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	if cfg.OrderSignTTL <= 0 {
		return nil, fmt.Errorf("ORDER_SIGN_TTL must be positive")
	}
	switch cfg.LedgerBackend {
	case "ndjson", "sqlite":
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	if cfg.AnalyticsToken == "" {
		cfg.AnalyticsToken = cfg.MetricsToken
	}
	return cfg, nil
}

// naverAPIBase accepts either a full base URL or the bare NAVERPAY_API_DOMAIN.
func naverAPIBase(v *viper.Viper) string {
	if base := v.GetString("NAVERPAY_API_BASE"); base != "" {
		return strings.TrimRight(base, "/")
	}
	return "https://" + v.GetString("NAVERPAY_API_DOMAIN")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) NonceDir() string   { return filepath.Join(c.DataDir, ".nonce") }
func (c *Config) ArchiveDir() string { return filepath.Join(c.DataDir, "archive") }
func (c *Config) BackupDir() string  { return filepath.Join(c.DataDir, "backup") }
func (c *Config) MetricsFile() string {
	return filepath.Join(c.DataDir, ".metrics.json")
}
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}
