package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "GOCHAT"

var supportedDrivers = []string{"postgres", "sqlite3"}

// Options are the raw settings as read from the environment and flags.
type Options struct {
	ServerAddr     string        `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDriver string        `envconfig:"DB_DRIVER" default:"sqlite3"`
	DatabaseDSN    string        `envconfig:"DSN" default:"file:groupchat.db?_foreign_keys=on&_busy_timeout=5000"`
	SigningKey     string        `envconfig:"SIGNING_KEY"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	UploadDir      string        `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxUploadSize  int64         `envconfig:"MAX_UPLOAD_SIZE" default:"52428800"`
	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	SendRateLimit  float64       `envconfig:"SEND_RATE" default:"10"`
	SendBurst      int           `envconfig:"SEND_BURST" default:"20"`
}

type Config struct {
	ServerAddr     string
	DatabaseDriver string
	DatabaseDSN    string
	// SigningKey is nil when token auth is disabled.
	SigningKey     []byte
	AllowedOrigins []string
	UploadDir      string
	MaxUploadSize  int64
	StoreTimeout   time.Duration
	SendRateLimit  float64
	SendBurst      int
}

// LoadOptions reads GOCHAT_* variables into Options, after loading the given
// dotenv files (".env" when none are given). Missing dotenv files are
// ignored.
func LoadOptions(dotenvFiles ...string) (*Options, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	var opts Options
	if err := envconfig.Process(envPrefix, &opts); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	return &opts, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if !slices.Contains(supportedDrivers, opts.DatabaseDriver) {
		return nil, fmt.Errorf("unsupported database driver %q, want one of %v", opts.DatabaseDriver, supportedDrivers)
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.UploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}
	if opts.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("max upload size must be positive")
	}
	if opts.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive")
	}
	if opts.SendBurst < 0 {
		return nil, fmt.Errorf("send burst cannot be negative")
	}

	var signingKey []byte
	if opts.SigningKey != "" {
		key, err := decodeSigningSecret(opts.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		signingKey = key
	}

	return &Config{
		ServerAddr:     opts.ServerAddr,
		DatabaseDriver: opts.DatabaseDriver,
		DatabaseDSN:    opts.DatabaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: opts.AllowedOrigins,
		UploadDir:      opts.UploadDir,
		MaxUploadSize:  opts.MaxUploadSize,
		StoreTimeout:   opts.StoreTimeout,
		SendRateLimit:  opts.SendRateLimit,
		SendBurst:      opts.SendBurst,
	}, nil
}

// AuthEnabled reports whether connections and requests must carry a token.
func (c *Config) AuthEnabled() bool {
	return len(c.SigningKey) > 0
}
