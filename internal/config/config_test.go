package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		ServerAddr:     "localhost:8080",
		DatabaseDriver: "postgres",
		DatabaseDSN:    "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		SigningKey:     "c29tZV9zZWNyZXQ=",
		AllowedOrigins: []string{"http://localhost:3000"},
		UploadDir:      "uploads",
		MaxUploadSize:  50 << 20,
		StoreTimeout:   5 * time.Second,
		SendRateLimit:  10,
		SendBurst:      20,
	}
}

func TestNewConfig(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(o *Options)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(o *Options) {},
		},
		{
			name:   "auth disabled",
			modify: func(o *Options) { o.SigningKey = "" },
		},
		{
			name:   "empty address",
			modify: func(o *Options) { o.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "unsupported driver",
			modify: func(o *Options) { o.DatabaseDriver = "mysql" },
			err:    true,
		},
		{
			name:   "empty DSN",
			modify: func(o *Options) { o.DatabaseDSN = "" },
			err:    true,
		},
		{
			name:   "invalid signing key",
			modify: func(o *Options) { o.SigningKey = "not base64!" },
			err:    true,
		},
		{
			name:   "empty upload dir",
			modify: func(o *Options) { o.UploadDir = "" },
			err:    true,
		},
		{
			name:   "zero upload size",
			modify: func(o *Options) { o.MaxUploadSize = 0 },
			err:    true,
		},
		{
			name:   "zero store timeout",
			modify: func(o *Options) { o.StoreTimeout = 0 },
			err:    true,
		},
		{
			name:   "negative burst",
			modify: func(o *Options) { o.SendBurst = -1 },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.modify(&opts)

			config, err := NewConfig(opts)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			require.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, opts.ServerAddr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, opts.DatabaseDSN, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, opts.AllowedOrigins, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, opts.SigningKey != "", config.AuthEnabled())
		})
	}
}

func Test_decodeSigningSecret(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		err          bool
	}{
		{
			name:         "valid secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
		},
		{
			name:         "invalid secret",
			base64Secret: "%%%",
			err:          true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedKey, key)
		})
	}
}

func TestLoadOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := LoadOptions(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:8000", opts.ServerAddr)
		assert.Equal(t, "sqlite3", opts.DatabaseDriver)
		assert.Equal(t, int64(52428800), opts.MaxUploadSize)
		assert.Equal(t, 5*time.Second, opts.StoreTimeout)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("GOCHAT_ADDR", ":9999")
		t.Setenv("GOCHAT_ALLOWED_ORIGINS", "http://a.test,http://b.test")
		t.Setenv("GOCHAT_STORE_TIMEOUT", "2s")

		opts, err := LoadOptions(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, ":9999", opts.ServerAddr)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, opts.AllowedOrigins)
		assert.Equal(t, 2*time.Second, opts.StoreTimeout)
	})

	t.Run("dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("GOCHAT_UPLOAD_DIR=/tmp/files\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("GOCHAT_UPLOAD_DIR") })

		opts, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/files", opts.UploadDir)
	})
}
