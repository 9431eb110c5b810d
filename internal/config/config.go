package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Store       StoreConfig
	Pipeline    PipelineConfig
	Detection   DetectionConfig
	Classifier  ClassifierConfig
	Blocks      BlocksConfig
	Alerts      AlertsConfig
	ThreatIntel ThreatIntelConfig
	GeoIP       GeoIPConfig
	MLScorer    MLScorerConfig
	Notify      NotifyConfig
	Firewall    FirewallConfig
}

type AppConfig struct {
	Env  string
	Port int
	Host string
}

type StoreConfig struct {
	Path string
}

type PipelineConfig struct {
	Workers       int
	QueueSize     int
	DrainTimeout  time.Duration
	SweepInterval time.Duration
}

type DetectionConfig struct {
	WindowMaxEntries int
	WindowHorizon    time.Duration
	TuningPath       string // optional YAML override for thresholds
}

type ClassifierConfig struct {
	HighRiskCountries []string
	OffHoursStart     int // hour of day, inclusive
	OffHoursEnd       int // hour of day, exclusive
}

type BlocksConfig struct {
	WhitelistBootstrap []string // CIDRs loaded at startup
}

type AlertsConfig struct {
	DedupWindow     time.Duration
	BatchInterval   time.Duration
	DigestInterval  time.Duration
	SummaryInterval time.Duration
	TopAttackers    int
}

type ThreatIntelConfig struct {
	AbuseIPDBKey  string
	VirusTotalKey string
	// Shodan InternetDB needs no API key
	Timeout       time.Duration
	CacheSize     int
	AbuseIPDBTTL  time.Duration
	VirusTotalTTL time.Duration
	ShodanTTL     time.Duration
	AbuseIPDBRPM  int // requests per minute budget
	VirusTotalRPM int
	ShodanRPM     int
}

type GeoIPConfig struct {
	Enabled  bool
	CacheTTL time.Duration
	Timeout  time.Duration
}

type MLScorerConfig struct {
	URL     string // empty = scorer absent
	Timeout time.Duration
}

type NotifyConfig struct {
	WebhookURL     string
	Timeout        time.Duration
	SMTPHost       string
	SMTPPort       int
	SMTPSecurity   string // tls, ssl, none
	SMTPFrom       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPRecipients []string
}

type FirewallConfig struct {
	Backend string // iptables, noop
	Chain   string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/sshsentinel")

	viper.AutomaticEnv()

	bindEnvVars()
	setDefaults()

	// Config file is optional
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("Error reading config file", "error", err)
		}
	}

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetInt("APP_PORT"),
			Host: viper.GetString("APP_HOST"),
		},
		Store: StoreConfig{
			Path: viper.GetString("STORE_PATH"),
		},
		Pipeline: PipelineConfig{
			Workers:       viper.GetInt("PIPELINE_WORKERS"),
			QueueSize:     viper.GetInt("PIPELINE_QUEUE_SIZE"),
			DrainTimeout:  viper.GetDuration("PIPELINE_DRAIN_TIMEOUT"),
			SweepInterval: viper.GetDuration("PIPELINE_SWEEP_INTERVAL"),
		},
		Detection: DetectionConfig{
			WindowMaxEntries: viper.GetInt("DETECTION_WINDOW_MAX_ENTRIES"),
			WindowHorizon:    viper.GetDuration("DETECTION_WINDOW_HORIZON"),
			TuningPath:       viper.GetString("DETECTION_TUNING_PATH"),
		},
		Classifier: ClassifierConfig{
			HighRiskCountries: viper.GetStringSlice("CLASSIFIER_HIGH_RISK_COUNTRIES"),
			OffHoursStart:     viper.GetInt("CLASSIFIER_OFF_HOURS_START"),
			OffHoursEnd:       viper.GetInt("CLASSIFIER_OFF_HOURS_END"),
		},
		Blocks: BlocksConfig{
			WhitelistBootstrap: viper.GetStringSlice("BLOCKS_WHITELIST"),
		},
		Alerts: AlertsConfig{
			DedupWindow:     viper.GetDuration("ALERTS_DEDUP_WINDOW"),
			BatchInterval:   viper.GetDuration("ALERTS_BATCH_INTERVAL"),
			DigestInterval:  viper.GetDuration("ALERTS_DIGEST_INTERVAL"),
			SummaryInterval: viper.GetDuration("ALERTS_SUMMARY_INTERVAL"),
			TopAttackers:    viper.GetInt("ALERTS_TOP_ATTACKERS"),
		},
		ThreatIntel: ThreatIntelConfig{
			AbuseIPDBKey:  viper.GetString("ABUSEIPDB_API_KEY"),
			VirusTotalKey: viper.GetString("VIRUSTOTAL_API_KEY"),
			Timeout:       viper.GetDuration("THREAT_INTEL_TIMEOUT"),
			CacheSize:     viper.GetInt("THREAT_INTEL_CACHE_SIZE"),
			AbuseIPDBTTL:  viper.GetDuration("ABUSEIPDB_CACHE_TTL"),
			VirusTotalTTL: viper.GetDuration("VIRUSTOTAL_CACHE_TTL"),
			ShodanTTL:     viper.GetDuration("SHODAN_CACHE_TTL"),
			AbuseIPDBRPM:  viper.GetInt("ABUSEIPDB_RPM"),
			VirusTotalRPM: viper.GetInt("VIRUSTOTAL_RPM"),
			ShodanRPM:     viper.GetInt("SHODAN_RPM"),
		},
		GeoIP: GeoIPConfig{
			Enabled:  viper.GetBool("GEOIP_ENABLED"),
			CacheTTL: viper.GetDuration("GEOIP_CACHE_TTL"),
			Timeout:  viper.GetDuration("GEOIP_TIMEOUT"),
		},
		MLScorer: MLScorerConfig{
			URL:     viper.GetString("ML_SCORER_URL"),
			Timeout: viper.GetDuration("ML_SCORER_TIMEOUT"),
		},
		Notify: NotifyConfig{
			WebhookURL:     viper.GetString("NOTIFY_WEBHOOK_URL"),
			Timeout:        viper.GetDuration("NOTIFY_TIMEOUT"),
			SMTPHost:       viper.GetString("NOTIFY_SMTP_HOST"),
			SMTPPort:       viper.GetInt("NOTIFY_SMTP_PORT"),
			SMTPSecurity:   viper.GetString("NOTIFY_SMTP_SECURITY"),
			SMTPFrom:       viper.GetString("NOTIFY_SMTP_FROM"),
			SMTPUsername:   viper.GetString("NOTIFY_SMTP_USERNAME"),
			SMTPPassword:   viper.GetString("NOTIFY_SMTP_PASSWORD"),
			SMTPRecipients: viper.GetStringSlice("NOTIFY_SMTP_RECIPIENTS"),
		},
		Firewall: FirewallConfig{
			Backend: viper.GetString("FIREWALL_BACKEND"),
			Chain:   viper.GetString("FIREWALL_CHAIN"),
		},
	}

	return config, nil
}

func bindEnvVars() {
	viper.BindEnv("APP_ENV")
	viper.BindEnv("APP_PORT")
	viper.BindEnv("APP_HOST")

	viper.BindEnv("STORE_PATH")

	viper.BindEnv("PIPELINE_WORKERS")
	viper.BindEnv("PIPELINE_QUEUE_SIZE")
	viper.BindEnv("PIPELINE_DRAIN_TIMEOUT")
	viper.BindEnv("PIPELINE_SWEEP_INTERVAL")

	viper.BindEnv("DETECTION_WINDOW_MAX_ENTRIES")
	viper.BindEnv("DETECTION_WINDOW_HORIZON")
	viper.BindEnv("DETECTION_TUNING_PATH")

	viper.BindEnv("CLASSIFIER_HIGH_RISK_COUNTRIES")
	viper.BindEnv("CLASSIFIER_OFF_HOURS_START")
	viper.BindEnv("CLASSIFIER_OFF_HOURS_END")

	viper.BindEnv("BLOCKS_WHITELIST")

	viper.BindEnv("ALERTS_DEDUP_WINDOW")
	viper.BindEnv("ALERTS_BATCH_INTERVAL")
	viper.BindEnv("ALERTS_DIGEST_INTERVAL")
	viper.BindEnv("ALERTS_SUMMARY_INTERVAL")
	viper.BindEnv("ALERTS_TOP_ATTACKERS")

	viper.BindEnv("ABUSEIPDB_API_KEY")
	viper.BindEnv("VIRUSTOTAL_API_KEY")
	viper.BindEnv("THREAT_INTEL_TIMEOUT")
	viper.BindEnv("THREAT_INTEL_CACHE_SIZE")
	viper.BindEnv("ABUSEIPDB_CACHE_TTL")
	viper.BindEnv("VIRUSTOTAL_CACHE_TTL")
	viper.BindEnv("SHODAN_CACHE_TTL")
	viper.BindEnv("ABUSEIPDB_RPM")
	viper.BindEnv("VIRUSTOTAL_RPM")
	viper.BindEnv("SHODAN_RPM")

	viper.BindEnv("GEOIP_ENABLED")
	viper.BindEnv("GEOIP_CACHE_TTL")
	viper.BindEnv("GEOIP_TIMEOUT")

	viper.BindEnv("ML_SCORER_URL")
	viper.BindEnv("ML_SCORER_TIMEOUT")

	viper.BindEnv("NOTIFY_WEBHOOK_URL")
	viper.BindEnv("NOTIFY_TIMEOUT")
	viper.BindEnv("NOTIFY_SMTP_HOST")
	viper.BindEnv("NOTIFY_SMTP_PORT")
	viper.BindEnv("NOTIFY_SMTP_SECURITY")
	viper.BindEnv("NOTIFY_SMTP_FROM")
	viper.BindEnv("NOTIFY_SMTP_USERNAME")
	viper.BindEnv("NOTIFY_SMTP_PASSWORD")
	viper.BindEnv("NOTIFY_SMTP_RECIPIENTS")

	viper.BindEnv("FIREWALL_BACKEND")
	viper.BindEnv("FIREWALL_CHAIN")
}

func setDefaults() {
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_HOST", "0.0.0.0")

	viper.SetDefault("STORE_PATH", "/var/lib/sshsentinel")

	viper.SetDefault("PIPELINE_WORKERS", 4)
	viper.SetDefault("PIPELINE_QUEUE_SIZE", 1024)
	viper.SetDefault("PIPELINE_DRAIN_TIMEOUT", 30*time.Second)
	viper.SetDefault("PIPELINE_SWEEP_INTERVAL", time.Minute)

	viper.SetDefault("DETECTION_WINDOW_MAX_ENTRIES", 100)
	viper.SetDefault("DETECTION_WINDOW_HORIZON", 24*time.Hour)

	viper.SetDefault("CLASSIFIER_HIGH_RISK_COUNTRIES", []string{"CN", "RU", "KP", "IR"})
	viper.SetDefault("CLASSIFIER_OFF_HOURS_START", 22)
	viper.SetDefault("CLASSIFIER_OFF_HOURS_END", 6)

	viper.SetDefault("ALERTS_DEDUP_WINDOW", 10*time.Minute)
	viper.SetDefault("ALERTS_BATCH_INTERVAL", 15*time.Minute)
	viper.SetDefault("ALERTS_DIGEST_INTERVAL", time.Hour)
	viper.SetDefault("ALERTS_SUMMARY_INTERVAL", 24*time.Hour)
	viper.SetDefault("ALERTS_TOP_ATTACKERS", 5)

	viper.SetDefault("THREAT_INTEL_TIMEOUT", 10*time.Second)
	viper.SetDefault("THREAT_INTEL_CACHE_SIZE", 10000)
	// Shorter TTL for generous quotas, longer for constrained ones
	viper.SetDefault("ABUSEIPDB_CACHE_TTL", 6*time.Hour)
	viper.SetDefault("VIRUSTOTAL_CACHE_TTL", 24*time.Hour)
	viper.SetDefault("SHODAN_CACHE_TTL", time.Hour)
	viper.SetDefault("ABUSEIPDB_RPM", 30)
	viper.SetDefault("VIRUSTOTAL_RPM", 4)
	viper.SetDefault("SHODAN_RPM", 60)

	viper.SetDefault("GEOIP_ENABLED", true)
	viper.SetDefault("GEOIP_CACHE_TTL", 24*time.Hour)
	viper.SetDefault("GEOIP_TIMEOUT", 5*time.Second)

	viper.SetDefault("ML_SCORER_TIMEOUT", 5*time.Second)

	viper.SetDefault("NOTIFY_TIMEOUT", 10*time.Second)
	viper.SetDefault("NOTIFY_SMTP_PORT", 587)
	viper.SetDefault("NOTIFY_SMTP_SECURITY", "tls")

	viper.SetDefault("FIREWALL_BACKEND", "iptables")
	viper.SetDefault("FIREWALL_CHAIN", "SSHSENTINEL")
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func SetupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
