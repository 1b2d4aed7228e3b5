// Package config loads the service configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "DRIVECHAT_CONFIG"

// Token backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config is the full service configuration. Secret values never appear
// here, only the SSM parameter names they are resolved from.
type Config struct {
	DevMode   bool   `yaml:"dev_mode"`
	Listen    string `yaml:"listen" validate:"required"`
	PublicURL string `yaml:"public_url" validate:"omitempty,url"`

	Google     GoogleConfig     `yaml:"google"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	Store      StoreConfig      `yaml:"store"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Generation GenerationConfig `yaml:"generation"`
	Summary    SummaryConfig    `yaml:"summary"`
	Reply      ReplyConfig      `yaml:"reply"`
	Drive      DriveConfig      `yaml:"drive"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type GoogleConfig struct {
	ClientID          string `yaml:"client_id"`
	ClientSecretParam string `yaml:"client_secret_param" validate:"required"`
	RedirectURL       string `yaml:"redirect_url" validate:"omitempty,url"`
}

type TwilioConfig struct {
	AccountSID     string `yaml:"account_sid"`
	AuthTokenParam string `yaml:"auth_token_param" validate:"required"`
	From           string `yaml:"from"`
	// ValidateSignature is forced off in dev mode.
	ValidateSignature bool `yaml:"validate_signature"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=dynamodb sqlite memory"`
	Table      string `yaml:"table" validate:"required_if=Backend dynamodb"`
	LeaseTable string `yaml:"lease_table"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	KMSKeyID   string `yaml:"kms_key_id"`
}

type SecretsConfig struct {
	StateSecretParam string `yaml:"state_secret_param" validate:"required"`
}

type GenerationConfig struct {
	Model       string        `yaml:"model" validate:"required"`
	APIKeyParam string        `yaml:"api_key_param"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
}

type SummaryConfig struct {
	CharBudget   int   `yaml:"char_budget" validate:"gt=0"`
	MaxDocuments int   `yaml:"max_documents" validate:"gt=0"`
	Concurrency  int   `yaml:"concurrency" validate:"gt=0,lte=32"`
	MaxFileBytes int64 `yaml:"max_file_bytes" validate:"gt=0"`
}

type ReplyConfig struct {
	ChunkLimit int `yaml:"chunk_limit" validate:"gte=100"`
}

type DriveConfig struct {
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	FolderCacheTTL time.Duration `yaml:"folder_cache_ttl" validate:"gte=0"`
	SearchLimit    int           `yaml:"search_limit" validate:"gt=0"`
	MaxMediaBytes  int64         `yaml:"max_media_bytes" validate:"gt=0"`
}

type AuthConfig struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	RefreshSkew time.Duration `yaml:"refresh_skew" validate:"gte=0"`
	StateTTL    time.Duration `yaml:"state_ttl" validate:"gt=0"`
	LeaseTTL    time.Duration `yaml:"lease_ttl" validate:"gt=0"`
	LeaseWait   time.Duration `yaml:"lease_wait" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Google: GoogleConfig{
			ClientSecretParam: "/drivechat/google-client-secret",
		},
		Twilio: TwilioConfig{
			AuthTokenParam:    "/drivechat/twilio-auth-token",
			ValidateSignature: true,
		},
		Store: StoreConfig{
			Backend:    BackendDynamoDB,
			Table:      "DriveChatTokens",
			LeaseTable: "DriveChatLeases",
			SQLitePath: "data/drivechat.db",
			KMSKeyID:   "alias/drivechat-token-key",
		},
		Secrets: SecretsConfig{
			StateSecretParam: "/drivechat/state-secret",
		},
		Generation: GenerationConfig{
			Model:       "gemini-2.5-flash",
			APIKeyParam: "/drivechat/gemini-api-key",
			Timeout:     60 * time.Second,
		},
		Summary: SummaryConfig{
			CharBudget:   20000,
			MaxDocuments: 50,
			Concurrency:  4,
			MaxFileBytes: 20 << 20,
		},
		Reply: ReplyConfig{
			ChunkLimit: 1600,
		},
		Drive: DriveConfig{
			Timeout:        20 * time.Second,
			FolderCacheTTL: 10 * time.Minute,
			SearchLimit:    500,
			MaxMediaBytes:  16 << 20,
		},
		Auth: AuthConfig{
			Timeout:     15 * time.Second,
			RefreshSkew: 2 * time.Minute,
			StateTTL:    15 * time.Minute,
			LeaseTTL:    30 * time.Second,
			LeaseWait:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// DRIVECHAT_CONFIG is consulted; a missing file is an error only when a
// path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if cfg.DevMode {
		cfg.Twilio.ValidateSignature = false
		if cfg.Store.Backend == BackendDynamoDB {
			cfg.Store.Backend = BackendMemory
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET_PARAM", &c.Google.ClientSecretParam)
	str("GOOGLE_REDIRECT_URL", &c.Google.RedirectURL)
	str("TWILIO_ACCOUNT_SID", &c.Twilio.AccountSID)
	str("TWILIO_AUTH_TOKEN_PARAM", &c.Twilio.AuthTokenParam)
	str("TWILIO_WHATSAPP_NUMBER", &c.Twilio.From)
	str("TOKEN_BACKEND", &c.Store.Backend)
	str("USER_TOKENS_TABLE", &c.Store.Table)
	str("LEASES_TABLE", &c.Store.LeaseTable)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("KMS_KEY_ID", &c.Store.KMSKeyID)
	str("STATE_SECRET_PARAM", &c.Secrets.StateSecretParam)
	str("GEMINI_API_KEY_PARAM", &c.Generation.APIKeyParam)
	str("GEMINI_MODEL", &c.Generation.Model)
	str("PUBLIC_URL", &c.PublicURL)
	str("LOG_LEVEL", &c.Logging.Level)
	if port := os.Getenv("PORT"); port != "" {
		c.Listen = ":" + port
	}

	if v := os.Getenv("DEV_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEV_MODE: %w", err)
		}
		c.DevMode = b
	}
	return nil
}

// Validate checks field constraints. Outside dev mode the Google and
// Twilio account identifiers are required as well.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		if cfg.DevMode {
			return
		}
		if cfg.Google.ClientID == "" {
			sl.ReportError(cfg.Google.ClientID, "Google.ClientID", "ClientID", "required_in_production", "")
		}
		if cfg.Twilio.AccountSID == "" {
			sl.ReportError(cfg.Twilio.AccountSID, "Twilio.AccountSID", "AccountSID", "required_in_production", "")
		}
		if cfg.Twilio.From == "" {
			sl.ReportError(cfg.Twilio.From, "Twilio.From", "From", "required_in_production", "")
		}
	}, Config{})

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RedirectURL is the OAuth callback the consent screen returns to.
func (c *Config) RedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	if c.PublicURL != "" {
		return c.PublicURL + "/oauth/callback"
	}
	return "http://localhost" + c.Listen + "/oauth/callback"
}

// WebhookURL is the public URL Twilio signs inbound requests against.
func (c *Config) WebhookURL() string {
	return c.PublicURL + "/whatsapp/message"
}
