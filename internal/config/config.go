package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/korjavin/caloriediary/internal/catalog"
)

// Config is the runtime configuration shared by the server and the CLI.
type Config struct {
	Port           string
	DataDir        string
	APIKeys        []string
	CORSOrigins    string
	CatalogURL     string
	CatalogTimeout time.Duration
	SearchDebounce time.Duration
	NoticeTimeout  time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Defaults used when the corresponding variable is unset.
const (
	DefaultPort           = "8080"
	DefaultDataDir        = "data"
	DefaultCatalogTimeout = 30 * time.Second
	DefaultSearchDebounce = 300 * time.Millisecond
	DefaultNoticeTimeout  = 3 * time.Second
)

// Load reads the configuration from the environment. Variables in the given
// .env files (or ./.env when none are named) are applied first without
// overriding what is already set; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	c := &Config{
		Port:        getenv("PORT", DefaultPort),
		DataDir:     getenv("DATA_DIR", DefaultDataDir),
		APIKeys:     ParseList(os.Getenv("API_KEYS")),
		CORSOrigins: getenv("CORS_ORIGINS", "*"),
		CatalogURL:  getenv("CATALOG_URL", catalog.DefaultURL),
	}

	var err error
	if c.CatalogTimeout, err = durationEnv("CATALOG_TIMEOUT", DefaultCatalogTimeout); err != nil {
		return nil, err
	}
	if c.SearchDebounce, err = durationEnv("SEARCH_DEBOUNCE", DefaultSearchDebounce); err != nil {
		return nil, err
	}
	if c.NoticeTimeout, err = durationEnv("NOTICE_TIMEOUT", DefaultNoticeTimeout); err != nil {
		return nil, err
	}

	if c.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 100); err != nil {
		return nil, err
	}
	if c.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if c.RateLimitBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: must be at least 1, got %d", c.RateLimitBurst)
	}

	return c, nil
}

// ParseList splits a comma-separated list, trimming whitespace and dropping
// empty items.
func ParseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, v)
	}
	return d, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
