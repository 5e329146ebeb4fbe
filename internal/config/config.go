package config

import (
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port      int    `envconfig:"PORT" default:"5000"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"output"`
	LogsDir   string `envconfig:"LOGS_DIR" default:"logs"`
	ConfigDir string `envconfig:"CONFIG_DIR" default:"config"`

	// ModelsFile overrides the built-in model catalog. Empty means ConfigDir/models.yaml when present.
	ModelsFile   string `envconfig:"MODELS_FILE"`
	ProgressFile string `envconfig:"PROGRESS_FILE"`

	TogetherAPIKey    string `envconfig:"TOGETHER_API_KEY"`
	ReplicateAPIToken string `envconfig:"REPLICATE_API_TOKEN"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	FalKey            string `envconfig:"FAL_KEY"`

	DefaultSize     int           `envconfig:"DEFAULT_SIZE" default:"1024"`
	MaxWorkers      int           `envconfig:"MAX_WORKERS" default:"1"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"120s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3"`
	RateInterval    time.Duration `envconfig:"PROVIDER_RATE_INTERVAL" default:"1s"`

	RemoveBackground    bool  `envconfig:"REMOVE_BACKGROUND" default:"true"`
	CreateICO           bool  `envconfig:"CREATE_ICO" default:"true"`
	ICOSizes            []int `envconfig:"ICO_SIZES" default:"16,32,48,64,128,256"`
	BackgroundTolerance int   `envconfig:"BG_TOLERANCE" default:"48"`

	// HistoryDriver is one of sqlite, postgres or none.
	HistoryDriver string `envconfig:"HISTORY_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH"`
	PostgresURL   string `envconfig:"POSTGRES_URL"`

	RedisURL    string `envconfig:"REDIS_URL"`
	ProgressKey string `envconfig:"PROGRESS_KEY" default:"logo-forge:progress"`

	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	KeycloakURL      string `envconfig:"KEYCLOAK_URL"`
	KeycloakRealm    string `envconfig:"KEYCLOAK_REALM" default:"master"`
	KeycloakClientID string `envconfig:"KEYCLOAK_CLIENT_ID" default:"logo-forge"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ProgressFile == "" {
		cfg.ProgressFile = filepath.Join(cfg.LogsDir, "progress.json")
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(cfg.LogsDir, "history.db")
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &cfg, nil
}

// APIKeys reports which generation providers have a usable credential.
func (c *Config) APIKeys() map[string]string {
	return map[string]string{
		"together_ai": c.TogetherAPIKey,
		"replicate":   c.ReplicateAPIToken,
		"openai":      c.OpenAIAPIKey,
		"fal_ai":      c.FalKey,
	}
}

func (c *Config) JWKSURL() string {
	if c.KeycloakURL == "" {
		return ""
	}
	return c.KeycloakURL + "/realms/" + c.KeycloakRealm + "/protocol/openid-connect/certs"
}
