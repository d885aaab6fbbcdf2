package session

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ClientConfig configures console clients such as mdmctl.
type ClientConfig struct {
	APIBaseURL  string        `envconfig:"MDM_API_BASE_URL" default:"http://localhost:8080"`
	SessionFile string        `envconfig:"MDM_SESSION_FILE"`
	HTTPTimeout time.Duration `envconfig:"MDM_HTTP_TIMEOUT" default:"15s"`
	// RedisAddr selects a RedisStore instead of the session file when set.
	RedisAddr string `envconfig:"MDM_SESSION_REDIS_ADDR"`
	RedisKey  string `envconfig:"MDM_SESSION_REDIS_KEY" default:"mdm:console:session"`
}

// LoadClientConfig reads an optional .env file and the environment.
func LoadClientConfig(envFiles ...string) (ClientConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = DefaultSessionFile()
	}
	return cfg, nil
}

// DefaultSessionFile is session.yaml under the user config directory.
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "mdm-console", "session.yaml")
}
