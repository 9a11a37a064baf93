package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier.
	DatabaseSchemePostgres = "postgres"

	defaultPort           = 8080
	defaultTokenTTL       = 5 * time.Minute
	defaultSessionTimeout = time.Hour
	defaultLockout        = 30 * time.Minute
)

type Config struct {
	Port           int
	DBDialect      string // postgres only
	DBDsn          string // DSN string passed to GORM driver
	Secret         string // current signing/encryption secret
	RetiredSecrets []string
	KeyDir         string // directory holding the report attestation key file
	TokenTTL       time.Duration
	SessionTimeout time.Duration
	LockoutFor     time.Duration
	MaxLoginTries  int
	Debug          bool
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// Load reads configuration from the environment. ELECTION_SECRET and
// DATABASE_URL are required; everything else has a sane default.
func Load() (Config, error) {
	cfg := Config{
		Port:           getenvInt("PORT", defaultPort),
		Secret:         os.Getenv("ELECTION_SECRET"),
		KeyDir:         getenv("KEY_DIR", "./keys"),
		TokenTTL:       getenvDuration("TOKEN_TTL", defaultTokenTTL),
		SessionTimeout: getenvDuration("SESSION_TIMEOUT", defaultSessionTimeout),
		LockoutFor:     getenvDuration("LOCKOUT_DURATION", defaultLockout),
		MaxLoginTries:  getenvInt("MAX_LOGIN_ATTEMPTS", 5),
		Debug:          getenvBool("DEBUG", false),
	}

	if cfg.Secret == "" {
		return cfg, errors.New("ELECTION_SECRET is required")
	}

	if retired := strings.TrimSpace(os.Getenv("ELECTION_RETIRED_SECRETS")); retired != "" {
		for _, s := range strings.Split(retired, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.RetiredSecrets = append(cfg.RetiredSecrets, s)
			}
		}
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}
	dialect, dsn, err := parseDatabaseURL(dbURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.DBDialect = dialect
	cfg.DBDsn = dsn

	return cfg, nil
}

func (c Config) String() string {
	return fmt.Sprintf("port=%d db=%s dsn=%s", c.Port, c.DBDialect, maskDSN(c.DBDsn))
}

func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	parts := strings.Fields(dsn)
	for i, p := range parts {
		if strings.HasPrefix(strings.ToLower(p), "password=") {
			parts[i] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}
