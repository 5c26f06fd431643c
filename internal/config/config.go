package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. All access to the environment goes
// through this struct; no package reads env vars directly.
type Config struct {
	AppEnv string `env:"APP_ENV,default=dev"`
	Port   string `env:"PORT,default=8080"`
	DBPath string `env:"DB_PATH,default=collect.db"`

	// SessionSecret signs merchant dashboard JWTs.
	SessionSecret string `env:"SESSION_SECRET,default=collect-session-secret"`

	// LateWindowSeconds is both the reconciliation lateness threshold and
	// the expiry sweep threshold; the two must agree.
	LateWindowSeconds   int `env:"LATE_WINDOW,default=120"`
	SweepIntervalSecond int `env:"EXPIRY_SWEEP_INTERVAL,default=30"`

	// TrustedHosts are origin hostnames exempt from the domain allowlist.
	TrustedHosts string `env:"TRUSTED_HOSTS,default=localhost,127.0.0.1"`

	UploadDir string `env:"UPLOAD_DIR,default=uploads"`
}

// Load reads an optional dotenv file and then the process environment.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load configuration file %s: %w", path, err)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return nil, fmt.Errorf("failed to map env variables to configuration: %w", err)
	}
	return c, nil
}

// LateWindow returns the lateness/expiry threshold as a duration.
func (c *Config) LateWindow() time.Duration {
	return time.Duration(c.LateWindowSeconds) * time.Second
}

// SweepInterval returns the expiry sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecond) * time.Second
}

// TrustedHostList splits TrustedHosts into hostnames.
func (c *Config) TrustedHostList() []string {
	var hosts []string
	for _, h := range strings.Split(c.TrustedHosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, strings.ToLower(h))
		}
	}
	return hosts
}
