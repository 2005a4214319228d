// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	liststr "upandup/pkg/platform/strings"
)

// Gateway providers.
const (
	ProviderDhiway  = "dhiway"
	ProviderCord    = "cord"
	ProviderSandbox = "sandbox"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Ledger   LedgerConfig
	Auth     AuthConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	// TrustedProxies may set X-Forwarded-For. Empty trusts no proxy.
	TrustedProxies []netip.Prefix
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the DID resolution cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DIDCacheTTL  time.Duration
}

// KafkaConfig configures the event publisher. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
	PollInterval    time.Duration
	// ConsumerGroup is used by the ledger event log consumer.
	ConsumerGroup string
}

// GatewayConfig selects and configures the DID/VC provider.
type GatewayConfig struct {
	Provider string
	APIKey   string
	OrgID    string
	Timeout  time.Duration

	// IssuerDID is the platform DID used as VC issuer.
	IssuerDID string

	DEDIPublishURL  string
	DEDILookupURL   string
	MarkStudioURL   string
	IssuerAgentURL  string
	VerificationURL string
	DigiLockerURL   string
	CordNetworkURL  string

	// DocumentChecks verifies registry-backed documents with DigiLocker
	// before issuance when the provider supports it.
	DocumentChecks bool

	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// LedgerConfig tunes ledger concurrency and re-verification.
type LedgerConfig struct {
	LockWait            time.Duration
	ReverifyInterval    time.Duration
	ReverifyMaxAge      time.Duration
	ReverifyParallelism int
	ReverifyBatchSize   int
	GatewayCallTimeout  time.Duration
}

// AuthConfig holds admin and partner credentials.
type AuthConfig struct {
	AdminToken       string
	PartnerJWTKey    string
	PartnerJWTIssuer string
	PartnerTokenTTL  time.Duration
}

// IsProduction reports whether the server runs with production safeguards.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:        getString("UPANDUP_ADDR", ":8080"),
			Environment: getString("ENVIRONMENT", "development"),
			LogLevel:    getString("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DIDCacheTTL:  getDuration("DID_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			Topic:           getString("KAFKA_TOPIC", "upandup.ledger.events"),
			Acks:            getString("KAFKA_ACKS", "all"),
			Retries:         getInt("KAFKA_RETRIES", 3),
			DeliveryTimeout: getDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
			PollInterval:    getDuration("OUTBOX_POLL_INTERVAL", 250*time.Millisecond),
			ConsumerGroup:   getString("KAFKA_CONSUMER_GROUP", "upandup-ledger-events"),
		},
		Gateway: GatewayConfig{
			Provider:         strings.ToLower(getString("GATEWAY_PROVIDER", ProviderSandbox)),
			APIKey:           os.Getenv("GATEWAY_API_KEY"),
			OrgID:            os.Getenv("GATEWAY_ORG_ID"),
			IssuerDID:        getString("GATEWAY_ISSUER_DID", "did:cord:upandup-platform"),
			Timeout:          getDuration("GATEWAY_TIMEOUT", 10*time.Second),
			DEDIPublishURL:   getString("DEDI_PUBLISH_URL", "https://dedi-publish.dhiway.com/api/v1"),
			DEDILookupURL:    getString("DEDI_LOOKUP_URL", "https://dedi-lookup.dhiway.com/api/v1"),
			MarkStudioURL:    getString("MARK_STUDIO_URL", "https://mark-studio.dhiway.com/api/v1"),
			IssuerAgentURL:   getString("ISSUER_AGENT_URL", "https://issuer-agent.dhiway.com/api/v1"),
			VerificationURL:  getString("VERIFICATION_URL", "https://verification.dhiway.com/api/v1"),
			DigiLockerURL:    getString("DIGILOCKER_URL", "https://issuer-agent-digilocker.dhiway.com/api/v1"),
			CordNetworkURL:   getString("CORD_NETWORK_URL", "https://cord-api.dhiway.com/api/v1"),
			DocumentChecks:   getBool("GATEWAY_DOCUMENT_CHECKS", true),
			BreakerThreshold: getInt("GATEWAY_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getDuration("GATEWAY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Ledger: LedgerConfig{
			LockWait:            getDuration("LEDGER_LOCK_WAIT", 5*time.Second),
			ReverifyInterval:    getDuration("REVERIFY_INTERVAL", time.Hour),
			ReverifyMaxAge:      getDuration("REVERIFY_MAX_AGE", 24*time.Hour),
			ReverifyParallelism: getInt("REVERIFY_PARALLELISM", 8),
			ReverifyBatchSize:   getInt("REVERIFY_BATCH_SIZE", 200),
			GatewayCallTimeout:  getDuration("LEDGER_GATEWAY_CALL_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			AdminToken:       os.Getenv("ADMIN_API_TOKEN"),
			PartnerJWTKey:    os.Getenv("PARTNER_JWT_SIGNING_KEY"),
			PartnerJWTIssuer: getString("PARTNER_JWT_ISSUER", "upandup"),
			PartnerTokenTTL:  getDuration("PARTNER_TOKEN_TTL", time.Hour),
		},
	}

	proxies, err := getPrefixes("TRUSTED_PROXIES")
	if err != nil {
		return Config{}, err
	}
	cfg.Server.TrustedProxies = proxies

	if cfg.Auth.PartnerJWTKey == "" {
		if cfg.Server.IsProduction() {
			return Config{}, fmt.Errorf("PARTNER_JWT_SIGNING_KEY is required in production")
		}
		// Use a default for development - should be overridden in production
		cfg.Auth.PartnerJWTKey = "dev-secret-key-change-in-production"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Gateway.Provider {
	case ProviderDhiway, ProviderCord:
		if c.Gateway.APIKey == "" {
			return fmt.Errorf("GATEWAY_API_KEY is required for provider %q", c.Gateway.Provider)
		}
	case ProviderSandbox:
		if c.Server.IsProduction() {
			return fmt.Errorf("sandbox gateway is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown GATEWAY_PROVIDER %q", c.Gateway.Provider)
	}
	if c.Ledger.ReverifyParallelism < 1 {
		return fmt.Errorf("REVERIFY_PARALLELISM must be at least 1")
	}
	if c.Ledger.LockWait <= 0 {
		return fmt.Errorf("LEDGER_LOCK_WAIT must be positive")
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getPrefixes parses a comma-separated CIDR list. A bare address is taken as
// a single-host prefix.
func getPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range liststr.SplitList(os.Getenv(key)) {
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s entry %q: %w", key, raw, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, raw, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
