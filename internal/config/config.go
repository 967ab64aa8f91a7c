package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Kafka struct {
		Broker        string
		ReadingsTopic string
		EventsTopic   string
		GroupID       string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Logging struct {
		Dir   string
		Level string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromName   string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	Telegram struct {
		BotToken string
	}
	RateLimit struct {
		TelegramRateLimiter int
	}
	API struct {
		Port     string
		BasePath string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Jobs struct {
		PollInterval   time.Duration
		MaxConcurrency int
		CacheTTL       time.Duration
	}
	Alerts struct {
		DedupWindow        time.Duration
		RulesFile          string
		SweepSchedule      string
		MonitoringSchedule string
	}
	Limits struct {
		NominalVoltage   float64
		NominalFrequency float64
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.ReadingsTopic = os.Getenv("KAFKA_READINGS_TOPIC")
	cfg.Kafka.EventsTopic = os.Getenv("KAFKA_EVENTS_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = n
	}

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	if p, err := strconv.Atoi(os.Getenv("EMAIL_SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = p
	}
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")

	cfg.SMS.AccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("SMS_FROM_NUMBER")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if n, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.RateLimit.TelegramRateLimiter = n
	}

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Notification worker settings
	if qs, err := strconv.Atoi(os.Getenv("QUEUE_SIZE")); err == nil {
		cfg.Notification.QueueSize = qs
	}
	if mw, err := strconv.Atoi(os.Getenv("MAX_WORKERS")); err == nil {
		cfg.Notification.MaxWorkers = mw
	}

	var invalid []string

	// Job processing settings
	if v := os.Getenv("JOB_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "JOB_POLL_INTERVAL")
		}
		cfg.Jobs.PollInterval = d
	}
	if v := os.Getenv("JOB_MAX_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			invalid = append(invalid, "JOB_MAX_CONCURRENCY")
		}
		cfg.Jobs.MaxConcurrency = n
	}
	if v := os.Getenv("JOB_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			invalid = append(invalid, "JOB_CACHE_TTL")
		}
		cfg.Jobs.CacheTTL = d
	}

	// Alerting settings
	if v := os.Getenv("ALERT_DEDUP_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, "ALERT_DEDUP_WINDOW")
		}
		cfg.Alerts.DedupWindow = d
	}
	cfg.Alerts.RulesFile = os.Getenv("ESCALATION_RULES_FILE")
	cfg.Alerts.SweepSchedule = os.Getenv("ESCALATION_SWEEP_SCHEDULE")
	cfg.Alerts.MonitoringSchedule = os.Getenv("MONITORING_SCHEDULE")

	if v := os.Getenv("NOMINAL_VOLTAGE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			invalid = append(invalid, "NOMINAL_VOLTAGE")
		}
		cfg.Limits.NominalVoltage = f
	}
	if v := os.Getenv("NOMINAL_FREQUENCY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			invalid = append(invalid, "NOMINAL_FREQUENCY")
		}
		cfg.Limits.NominalFrequency = f
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configurations: %v", invalid)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Kafka.ReadingsTopic == "" {
		cfg.Kafka.ReadingsTopic = "facility_readings"
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "facility_events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "facility-alerting"
	}
	if cfg.RateLimit.TelegramRateLimiter == 0 {
		cfg.RateLimit.TelegramRateLimiter = 25
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Jobs.PollInterval == 0 {
		cfg.Jobs.PollInterval = 10 * time.Second
	}
	if cfg.Jobs.MaxConcurrency == 0 {
		cfg.Jobs.MaxConcurrency = 3
	}
	if cfg.Jobs.CacheTTL == 0 {
		cfg.Jobs.CacheTTL = 5 * time.Minute
	}
	if cfg.Alerts.DedupWindow == 0 {
		cfg.Alerts.DedupWindow = time.Hour
	}
	if cfg.Alerts.SweepSchedule == "" {
		cfg.Alerts.SweepSchedule = "@every 1m"
	}
	if cfg.Limits.NominalVoltage == 0 {
		cfg.Limits.NominalVoltage = 230
	}
	if cfg.Limits.NominalFrequency == 0 {
		cfg.Limits.NominalFrequency = 50
	}
}
