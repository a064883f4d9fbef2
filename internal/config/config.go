package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"crossposter/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Pollers    PollersConfig    `yaml:"pollers"`
	Media      MediaConfig      `yaml:"media"`
	Queue      QueueConfig      `yaml:"queue"`
	Backup     BackupConfig     `yaml:"backup"`
	OAuth      []OAuthApp       `yaml:"oauth_apps"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type APIConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Port         int            `yaml:"port"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
	RateLimit    RateLimit      `yaml:"rate_limit"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PollersConfig struct {
	Twitter  PollerConfig   `yaml:"twitter"`
	Telegram TelegramPoller `yaml:"telegram"`
	// MarkerRetentionDays controls pruning of processed-message markers.
	MarkerRetentionDays int `yaml:"marker_retention_days"`
}

type PollerConfig struct {
	Enabled bool `yaml:"enabled"`
	// DefaultIntervalSec is used when no active task configures an interval.
	DefaultIntervalSec int `yaml:"default_interval_sec"`
}

type TelegramPoller struct {
	PollerConfig       `yaml:",inline"`
	BatchSize          int `yaml:"batch_size"`
	AlbumQuietWindowMS int `yaml:"album_quiet_window_ms"`
	AlbumMaxAgeSec     int `yaml:"album_max_age_sec"`
}

type MediaConfig struct {
	MaxDownloadBytes int64  `yaml:"max_download_bytes"`
	TempDir          string `yaml:"temp_dir"`
}

type QueueConfig struct {
	MaxInFlight int `yaml:"max_in_flight"`
}

// OAuthApp holds the client credentials of a registered developer application,
// consumed only during token refresh.
type OAuthApp struct {
	PlatformID   string `yaml:"platform_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      string `yaml:"interval"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

func Load(configPath string) (*Config, error) {
	// .env опционален: берём переменные из окружения, если файла нет
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Enabled && len(c.API.APIKeys) == 0 {
		return errors.New("api.api_keys must not be empty when the ops API is enabled")
	}
	for _, app := range c.OAuth {
		switch app.PlatformID {
		case models.PlatformTwitter, models.PlatformYouTube, models.PlatformFacebook:
		default:
			return fmt.Errorf("oauth_apps: unsupported platform %q", app.PlatformID)
		}
		if app.ClientID == "" || app.ClientSecret == "" {
			return fmt.Errorf("oauth_apps: incomplete credentials for %s", app.PlatformID)
		}
	}
	if c.Pollers.Telegram.BatchSize < models.MinTelegramBatchSize ||
		c.Pollers.Telegram.BatchSize > models.MaxTelegramBatchSize {
		return fmt.Errorf("pollers.telegram.batch_size must be in [%d, %d]",
			models.MinTelegramBatchSize, models.MaxTelegramBatchSize)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.HeaderAPIKey == "" {
		c.API.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 5
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}

	if c.Pollers.Twitter.DefaultIntervalSec == 0 {
		c.Pollers.Twitter.DefaultIntervalSec = models.DefaultPollIntervalSec
	}
	if c.Pollers.Telegram.DefaultIntervalSec == 0 {
		c.Pollers.Telegram.DefaultIntervalSec = models.DefaultPollIntervalSec
	}
	if c.Pollers.Telegram.BatchSize == 0 {
		c.Pollers.Telegram.BatchSize = models.DefaultTelegramBatchSize
	}
	if c.Pollers.Telegram.AlbumQuietWindowMS == 0 {
		c.Pollers.Telegram.AlbumQuietWindowMS = models.DefaultAlbumQuietWindowSec * 1000
	}
	if c.Pollers.Telegram.AlbumMaxAgeSec == 0 {
		c.Pollers.Telegram.AlbumMaxAgeSec = models.DefaultAlbumMaxAgeSec
	}
	if c.Pollers.MarkerRetentionDays == 0 {
		c.Pollers.MarkerRetentionDays = models.DefaultMarkerRetentionDays
	}

	if c.Media.MaxDownloadBytes == 0 {
		c.Media.MaxDownloadBytes = models.DefaultMaxDownloadBytes
	}
	if c.Queue.MaxInFlight == 0 {
		c.Queue.MaxInFlight = models.DefaultQueueCap
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// AlbumQuietWindow returns the configured album quiet window as a duration.
func (t TelegramPoller) AlbumQuietWindow() time.Duration {
	return time.Duration(t.AlbumQuietWindowMS) * time.Millisecond
}

// AlbumMaxAge returns the configured stalled-album force-flush age.
func (t TelegramPoller) AlbumMaxAge() time.Duration {
	return time.Duration(t.AlbumMaxAgeSec) * time.Second
}

// MarkerRetention returns the dedup marker retention as a duration.
func (p PollersConfig) MarkerRetention() time.Duration {
	return time.Duration(p.MarkerRetentionDays) * 24 * time.Hour
}

// GetOAuthClientCredentials resolves the developer application credentials for
// a platform. The owner argument exists for API parity; applications are
// registered per deployment, not per user.
func (c *Config) GetOAuthClientCredentials(owner, platformID string) (OAuthApp, error) {
	for _, app := range c.OAuth {
		if app.PlatformID == platformID {
			return app, nil
		}
	}
	return OAuthApp{}, fmt.Errorf("no oauth application configured for platform %q", platformID)
}
