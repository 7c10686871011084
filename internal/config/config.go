package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Kafka struct {
	Brokers     []string
	TopicPrefix string
	EmitTopic   string
	Group       string
}

type Sync struct {
	PollInterval    time.Duration
	FreshnessWindow time.Duration
	CancelledWindow int
}

type Reconnect struct {
	Base time.Duration
	Max  time.Duration
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts uint
	Base     time.Duration
	Max      time.Duration
}

type Config struct {
	HTTPAddr     string
	RestaurantID string
	APIBaseURL   string
	SnapshotPath string

	Kafka     Kafka
	Sync      Sync
	Reconnect Reconnect
	Breaker   Breaker
	Retry     Retry
}

// Load fatals on error for simplicity in main().
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		HTTPAddr:     envDefault("HTTP_ADDR", ":8080"),
		RestaurantID: strings.TrimSpace(os.Getenv("RESTAURANT_ID")),
		APIBaseURL:   strings.TrimSpace(os.Getenv("API_BASE_URL")),
		SnapshotPath: envDefault("SNAPSHOT_DB_PATH", "ordersync.db"),

		Kafka: Kafka{
			Brokers:     splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			TopicPrefix: envDefault("KAFKA_TOPIC_PREFIX", "orders"),
			EmitTopic:   envDefault("KAFKA_EMIT_TOPIC", "console.requests"),
			Group:       envDefault("KAFKA_GROUP", "console"),
		},

		Sync: Sync{
			PollInterval:    envDurationMS("POLL_INTERVAL", 60*time.Second),
			FreshnessWindow: envDurationMS("FRESHNESS_WINDOW", 10*time.Minute),
			CancelledWindow: envInt("CANCELLED_WINDOW", 50),
		},

		Reconnect: Reconnect{
			Base: envDurationMS("RECONNECT_BASE", 500*time.Millisecond),
			Max:  envDurationMS("RECONNECT_MAX", 30*time.Second),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts: uint(envInt("RETRY_ATTEMPTS", 5)),
			Base:     envDurationMS("RETRY_BASE", 100*time.Millisecond),
			Max:      envDurationMS("RETRY_MAX", 5*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	req := map[string]string{
		"RESTAURANT_ID": c.RestaurantID,
		"API_BASE_URL":  c.APIBaseURL,
		"KAFKA_BROKERS": strings.Join(c.Kafka.Brokers, ","),
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &missingEnvError{Keys: missing}
	}

	if c.Sync.CancelledWindow <= 0 {
		log.Printf("CANCELLED_WINDOW is %d, adjusting to 1", c.Sync.CancelledWindow)
		c.Sync.CancelledWindow = 1
	}
	if c.Sync.PollInterval <= 0 {
		log.Printf("POLL_INTERVAL is %v, polling disabled", c.Sync.PollInterval)
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
