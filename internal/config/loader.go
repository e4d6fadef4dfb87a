// internal/config/loader.go
//
// Configuration loader and hot-reloader with optional Vault support.
//
// Context
// -------
// `Load()` builds one immutable `Config` struct from three layers (highest
// precedence last):
//
//  1. Optional `.env` file at `<root>/conf/.env`.
//  2. `conf/global.yaml`.
//  3. Environment variables prefixed `CANCELWATCH_`, where `__` maps to “.”
//     (e.g., `CANCELWATCH_BROKER__HOST → broker.host`).
//
// **Vault integration** — any string value that begins with the prefix
// `vault:` is treated as a Vault URI of the form
// `vault:<secret-path>#<key>` and is resolved through `internal/vault.Client`
// before unmarshalling, so callers stay oblivious.  Vault is opportunistic:
// if VAULT_ADDR is unset, the resolver is skipped, and any `vault:`-prefixed
// value remaining in the tree is a configuration error.
//
// **Unknown keys** — every key present in the merged tree must correspond
// to a field on Config, traced through koanf tags.  Anything else aborts
// startup.
//
// Instrumentation
// ---------------
//   - DEBUG spans — root discovery, YAML read, Vault resolve.
//   - ERROR spans — YAML parse, env overlay, Vault fetch, unmarshal, validation.
//   - INFO  span  — final “config loaded” with key highlights.
//   - Logs use the global *sugared* logger (`zap.S()`).  Until logger.New
//     installs the process logger that global is zap's no-op logger, so
//     lines logged by a Load that runs first are discarded; every failure
//     is also returned to the caller as an error.
//
// Notes
// -----
//   - Oxford commas, two spaces after sentence periods.
//   - Creating the Vault client fails only on invalid Vault environment
//     settings; it does not contact the server.  An unreachable Vault
//     aborts Load only when a `vault:` value has to be resolved.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"

	cwvault "github.com/nrod/cancelwatch/internal/vault"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

/*────────────────── singleton Vault client & bootstrap ─────────────────────*/

var (
	vaultMu  sync.Mutex
	vaultCli *cwvault.Client // nil means Vault is not configured
)

func ensureVault(ctx context.Context) error {
	vaultMu.Lock()
	defer vaultMu.Unlock()
	if vaultCli != nil {
		return nil
	}
	if os.Getenv("VAULT_ADDR") == "" {
		return nil // opportunistic: no Vault configured, nothing to do
	}

	cli, err := cwvault.New(ctx, zap.S().Debugf)
	if err != nil {
		return err
	}
	vaultCli = cli
	return nil
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves CANCELWATCH_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv("CANCELWATCH_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves Vault URIs, validates, and
// caches Config.  It is safe for concurrent use.
func Load() (*Config, error) {
	ctx := context.Background()

	if err := ensureVault(ctx); err != nil {
		zap.S().Errorw("vault init failed", "err", err)
		return nil, fmt.Errorf("config: vault init: %w", err)
	}

	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, fmt.Errorf("config: load yaml %s: %w", yamlPath, err)
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: CANCELWATCH_BROKER__HOST → broker.host
	if err := k.Load(env.Provider("CANCELWATCH_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CANCELWATCH_")
		if s == "ROOT" {
			return "" // CANCELWATCH_ROOT selects the root dir; not a config key
		}
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	if err := rejectUnknownKeys(k); err != nil {
		zap.S().Errorw("config has unknown keys", "err", err)
		return nil, err
	}

	// Resolve Vault URIs in-place.
	if err := resolveVaultURIs(ctx, k); err != nil {
		zap.S().Errorw("config vault resolve failed", "err", err)
		return nil, fmt.Errorf("config: vault resolve: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"broker_host", cfg.Broker.Host,
		"broker_topic", cfg.Broker.Topic,
		"store_path", cfg.Store.Path,
		"server_listen", cfg.Server.Listen,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }

/*──────────────────── unknown-key rejection ────────────────────────────────*/

// knownKeys walks Config's koanf tags into a set of dotted paths accepted
// by the schema.  "-"-tagged fields (Paths) are runtime-only and excluded.
func knownKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			tag := f.Tag.Get("koanf")
			if tag == "-" || tag == "" {
				continue
			}
			path := tag
			if prefix != "" {
				path = prefix + "." + tag
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, path)
				continue
			}
			keys[path] = struct{}{}
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

func rejectUnknownKeys(k *koanf.Koanf) error {
	known := knownKeys()
	var unknown []string
	for _, key := range k.Keys() {
		if _, ok := known[key]; ok {
			continue
		}
		// Slice fields (cors.origins) may expand into indexed sub-keys
		// depending on provider; accept any key whose parent is known.
		if isSliceField(key, known) {
			continue
		}
		unknown = append(unknown, key)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("config: unknown key(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

func isSliceField(key string, known map[string]struct{}) bool {
	idx := strings.LastIndex(key, ".")
	if idx < 0 {
		return false
	}
	_, ok := known[key[:idx]]
	return ok
}

/*──────────────────── Vault URI resolver ───────────────────────────────────*/

func resolveVaultURIs(ctx context.Context, k *koanf.Koanf) error {
	const prefix = "vault:"

	keys := k.Keys() // snapshot to avoid concurrent mutation
	for _, key := range keys {
		val, ok := k.Get(key).(string)
		if !ok || !strings.HasPrefix(val, prefix) {
			continue
		}

		if vaultCli == nil {
			return fmt.Errorf("config: key %q references Vault but VAULT_ADDR is not set", key)
		}

		body := strings.TrimPrefix(val, prefix)
		parts := strings.SplitN(body, "#", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid vault URI %q (want vault:path#key)", val)
		}
		secretPath, field := parts[0], parts[1]

		plain, err := vaultCli.GetKV(ctx, secretPath, field, 10*time.Minute)
		if err != nil {
			return err
		}
		k.Set(key, plain)
		zap.S().Debugw("vault uri resolved",
			"key", key, "path", secretPath, "field", field)
	}
	return nil
}
