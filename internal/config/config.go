package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/DeafMist/boletin-radar/internal/models"
)

// ErrConfiguration marks a fatal startup configuration problem.
var ErrConfiguration = errors.New("configuration error")

// Record store backends.
const (
	StoreElasticsearch = "elasticsearch"
	StoreRedis         = "redis"
	StoreSQLite        = "sqlite"
	StoreMemory        = "memory"
)

// Store selects and configures the record store.
type Store struct {
	Backend            string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisRecordTTL     time.Duration
	SQLitePath         string
}

// Scanner holds configuration for the bulletin scan job.
type Scanner struct {
	Store
	TelegramToken    string
	TelegramChatID   string
	TelegramAPIURL   string
	SearchURL        string
	PublicURL        string
	UserAgent        string
	Location         *time.Location
	ValidationWindow time.Duration
	HTTPTimeout      time.Duration
	FetchRateLimit   float64
	Targets          []models.SearchTarget
	KafkaBrokers     []string
	KafkaDLQTopic    string
	PushgatewayURL   string
	Schedule         string
}

// API describes HTTP-layer configuration.
type API struct {
	RecordStore        string
	ElasticsearchAddr  string
	ElasticsearchIndex string
	BindAddr           string
	DefaultPage        int
	MaxPage            int
}

// Retention configures the cleanup loop.
type Retention struct {
	Store
	Interval         time.Duration
	MaxAge           time.Duration
	ValidationWindow time.Duration
	BatchSize        int
}

// LoadDotEnv reads .env.local and .env when present. Variables already set
// in the environment win.
func LoadDotEnv() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// LoadScanner builds a Scanner config from environment variables.
func LoadScanner() (*Scanner, error) {
	store, err := loadStore()
	if err != nil {
		return nil, err
	}

	c := &Scanner{
		Store:          store,
		TelegramToken:  strings.TrimSpace(os.Getenv("TOKEN_TELEGRAM")),
		TelegramChatID: strings.TrimSpace(os.Getenv("CHAT_ID")),
		TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		SearchURL:      getEnv("BOLETIN_SEARCH_URL", "http://sica.tsjmorelos2.gob.mx/boletin/DT/dat_consulta.php"),
		PublicURL:      getEnv("BOLETIN_PUBLIC_URL", "http://sica.tsjmorelos2.gob.mx/boletin/boletinjudicial.php"),
		UserAgent:      getEnv("BOLETIN_USER_AGENT", "insomnia/2023.5.8"),
		FetchRateLimit: getFloat("FETCH_RATE_LIMIT", 1),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", ""), ","),
		KafkaDLQTopic:  getEnv("KAFKA_DLQ_TOPIC", "boletin_alerts_dlq"),
		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		Schedule:       getEnv("SCAN_SCHEDULE", ""),
	}

	if c.ValidationWindow, err = getDuration("VALIDATION_WINDOW", "144h"); err != nil {
		return nil, err
	}
	if c.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	if c.TelegramToken == "" {
		return nil, fmt.Errorf("%w: TOKEN_TELEGRAM is required", ErrConfiguration)
	}
	if c.TelegramChatID == "" {
		return nil, fmt.Errorf("%w: CHAT_ID is required", ErrConfiguration)
	}

	tz := getEnv("BOLETIN_TIMEZONE", "America/Mexico_City")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: BOLETIN_TIMEZONE %q: %v", ErrConfiguration, tz, err)
	}
	c.Location = loc

	if c.ValidationWindow <= 0 {
		return nil, fmt.Errorf("%w: VALIDATION_WINDOW must be positive", ErrConfiguration)
	}
	if c.RedisRecordTTL > 0 && c.RedisRecordTTL < c.ValidationWindow {
		return nil, fmt.Errorf("%w: REDIS_RECORD_TTL %s is shorter than VALIDATION_WINDOW %s", ErrConfiguration, c.RedisRecordTTL, c.ValidationWindow)
	}
	if c.FetchRateLimit < 0 {
		return nil, fmt.Errorf("%w: FETCH_RATE_LIMIT cannot be negative", ErrConfiguration)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return nil, fmt.Errorf("%w: SCAN_SCHEDULE %q: %v", ErrConfiguration, c.Schedule, err)
		}
	}

	targets, err := loadTargets()
	if err != nil {
		return nil, err
	}
	c.Targets = targets

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		RecordStore:        strings.ToLower(getEnv("RECORD_STORE", StoreElasticsearch)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "boletin"),
		BindAddr:           getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:        getInt("API_PAGE_SIZE", 20),
		MaxPage:            getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	store, err := loadStore()
	if err != nil {
		return nil, err
	}

	c := &Retention{
		Store:     store,
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}
	if c.Interval, err = getDuration("RETENTION_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if c.MaxAge, err = getDuration("RETENTION_MAX_AGE", "720h"); err != nil {
		return nil, err
	}
	if c.ValidationWindow, err = getDuration("VALIDATION_WINDOW", "144h"); err != nil {
		return nil, err
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("%w: RETENTION_MAX_AGE must be positive", ErrConfiguration)
	}
	// Pruning a record before its window ends would let the key alert again.
	if c.MaxAge < c.ValidationWindow {
		return nil, fmt.Errorf("%w: RETENTION_MAX_AGE %s is shorter than VALIDATION_WINDOW %s", ErrConfiguration, c.MaxAge, c.ValidationWindow)
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("%w: RETENTION_INTERVAL must be positive", ErrConfiguration)
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: RETENTION_BATCH_SIZE must be positive", ErrConfiguration)
	}

	return c, nil
}

func loadStore() (Store, error) {
	s := Store{
		Backend:            strings.ToLower(getEnv("RECORD_STORE", StoreElasticsearch)),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "boletin"),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		SQLitePath:         getEnv("SQLITE_PATH", "boletin.db"),
	}

	var err error
	if s.RedisRecordTTL, err = getDuration("REDIS_RECORD_TTL", "0s"); err != nil {
		return Store{}, err
	}

	switch s.Backend {
	case StoreElasticsearch, StoreRedis, StoreSQLite, StoreMemory:
	default:
		return Store{}, fmt.Errorf("%w: unknown RECORD_STORE %q", ErrConfiguration, s.Backend)
	}
	if s.RedisRecordTTL < 0 {
		return Store{}, fmt.Errorf("%w: REDIS_RECORD_TTL cannot be negative", ErrConfiguration)
	}

	return s, nil
}

type targetsFile struct {
	Targets []models.SearchTarget `yaml:"targets"`
}

// loadTargets reads TARGETS_FILE when set, otherwise the cross product of
// SEARCH_NAMES (";"-separated) and SEARCH_DISTRICTS (","-separated).
func loadTargets() ([]models.SearchTarget, error) {
	var targets []models.SearchTarget

	if path := getEnv("TARGETS_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read TARGETS_FILE: %v", ErrConfiguration, err)
		}
		var f targetsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: parse TARGETS_FILE: %v", ErrConfiguration, err)
		}
		for _, t := range f.Targets {
			t.Name = strings.TrimSpace(t.Name)
			if t.Name == "" || t.District <= 0 {
				return nil, fmt.Errorf("%w: TARGETS_FILE entry needs a name and a positive district", ErrConfiguration)
			}
			targets = append(targets, t)
		}
	} else {
		names := splitAndTrim(getEnv("SEARCH_NAMES", ""), ";")
		districts := splitAndTrim(getEnv("SEARCH_DISTRICTS", ""), ",")
		for _, name := range names {
			for _, raw := range districts {
				d, err := strconv.Atoi(raw)
				if err != nil || d <= 0 {
					return nil, fmt.Errorf("%w: SEARCH_DISTRICTS entry %q is not a positive number", ErrConfiguration, raw)
				}
				targets = append(targets, models.SearchTarget{Name: name, District: d})
			}
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no search targets; set TARGETS_FILE or SEARCH_NAMES and SEARCH_DISTRICTS", ErrConfiguration)
	}
	return targets, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDuration parses key as a time.Duration. An unset variable yields
// fallback; a malformed one is a configuration error.
func getDuration(key, fallback string) (time.Duration, error) {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a duration", ErrConfiguration, key, raw)
	}
	return d, nil
}

func splitAndTrim(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
