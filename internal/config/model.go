// internal/config/model.go
//
// Typed configuration model for cancelwatch.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                               – dotenv values,
//   • `conf/global.yaml`                            – primary static file,
//   • `CANCELWATCH_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs—only plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// Broker section — STOMP push-port target
//

// Broker holds connection parameters for the Darwin push-port.
type Broker struct {
	Host         string `koanf:"host"           validate:"required"`
	Port         int    `koanf:"port"           validate:"required,min=1,max=65535"`
	User         string `koanf:"user"           validate:"required"`
	Password     string `koanf:"password"       validate:"required"`
	Topic        string `koanf:"topic"          validate:"required"`
	HeartbeatMs  int    `koanf:"heartbeat_ms"   validate:"required,min=1000"`
	BackoffMaxMs int    `koanf:"backoff_max_ms" validate:"required,min=1000"`
}

//
// Store section — Schedule Store
//

// Store holds the Schedule Store's on-disk location and retention policy.
type Store struct {
	Path          string `koanf:"path"           validate:"required"`
	RetentionDays int    `koanf:"retention_days" validate:"required,min=1"`
}

//
// Cache section — Cancellation Cache bounds
//

// Cache holds the Cancellation Cache's capacity and age bound. MaxAge is
// a duration string (e.g. "24h"); koanf's default mapstructure decode
// hooks parse it straight into time.Duration.
type Cache struct {
	MaxEntries int           `koanf:"max_entries" validate:"required,min=1"`
	MaxAge     time.Duration `koanf:"max_age"     validate:"required"`
}

//
// HTTP section
//

// Server holds web-server tunables.
type Server struct {
	Listen           string `koanf:"listen"             validate:"required,hostname_port"`
	RequestTimeoutMs int    `koanf:"request_timeout_ms" validate:"required,min=100"`
}

//
// Rate limiting section
//

// RateLimit holds per-bucket requests-per-minute allowances.
type RateLimit struct {
	Default int `koanf:"default" validate:"required,min=1"`
	Health  int `koanf:"health"  validate:"required,min=1"`
}

//
// CORS section
//

// CORS holds the configurable allowlist of origins.
type CORS struct {
	Origins []string `koanf:"origins"`
}

//
// Health check section
//

// Health holds pacing for readiness/liveness probes.
type Health struct {
	CheckTimeoutMs int `koanf:"check_timeout_ms" validate:"required,min=1"`
	CacheTTLMs     int `koanf:"cache_ttl_ms"     validate:"required,min=1"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or CANCELWATCH_ROOT override) so later
// code can build absolute file paths.
type Paths struct {
	Root string // CANCELWATCH_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	Broker    Broker    `koanf:"broker"`
	Store     Store     `koanf:"store"`
	Cache     Cache     `koanf:"cache"`
	Server    Server    `koanf:"server"`
	RateLimit RateLimit `koanf:"rate_limit"`
	CORS      CORS      `koanf:"cors"`
	Health    Health    `koanf:"health"`
	Paths     Paths     `koanf:"-"` // not loaded from config files
}
