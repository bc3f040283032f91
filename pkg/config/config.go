// pkg/config/config.go
package config

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/vulntor/webscope/pkg/paths"
	"github.com/vulntor/webscope/pkg/response"
)

// EnvPrefix prefixes every environment variable read by EnvSource.
const EnvPrefix = "WEBSCOPE_"

var validate = validator.New()

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager holding DefaultConfig until Load is called.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New("."), currentConfig: DefaultConfig()}
}

// DefaultConfig returns the configuration used when no source overrides it.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scan: DefaultScanConfig(),
		Signatures: SignaturesConfig{
			Builtin:  true,
			Dirs:     []string{},
			CacheDir: paths.CacheDir(),
		},
	}
}

// DefaultScanConfig returns the default fetch and concurrency settings.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Workers:         8,
		TargetWorkers:   4,
		FetchTimeout:    response.DefaultTimeout,
		UserAgent:       response.DefaultUserAgent,
		MaxBodyBytes:    2 << 20,
		FollowRedirects: true,
	}
}

// Load loads defaults, the config file, WEBSCOPE_ environment variables and
// flags, in that order of precedence. An empty customConfigFilePath falls back
// to paths.ConfigFile, which may be absent.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	if customConfigFilePath == "" {
		customConfigFilePath = paths.ConfigFile()
	}
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(customConfigFilePath, flags, debug))
}

// LoadWithSources loads the given sources in ascending priority, then
// unmarshals and validates the merged result.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("load config source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := k.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return err
	}

	m.koanfInstance = k
	m.currentConfig = newCfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.currentConfig
	cfg.Signatures.Dirs = slices.Clone(m.currentConfig.Signatures.Dirs)
	return cfg
}

// Value returns the raw merged value of key, or nil when it is unset.
func (m *Manager) Value(key string) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// Validate rejects configurations the scanner cannot run with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider so
// every key is known before flags are applied.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Scan configuration
		"scan.workers":              def.Scan.Workers,
		"scan.target_workers":       def.Scan.TargetWorkers,
		"scan.fetch_timeout":        def.Scan.FetchTimeout,
		"scan.user_agent":           def.Scan.UserAgent,
		"scan.max_body_bytes":       def.Scan.MaxBodyBytes,
		"scan.follow_redirects":     def.Scan.FollowRedirects,
		"scan.insecure_skip_verify": def.Scan.InsecureSkipVerify,

		// Signature sources
		"signatures.builtin":   def.Signatures.Builtin,
		"signatures.dirs":      def.Signatures.Dirs,
		"signatures.strict":    def.Signatures.Strict,
		"signatures.cache_dir": def.Signatures.CacheDir,
	}
}

// BindFlags defines the global flags of every command.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.String("log.level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.String("log.file", defaults.Log.File, "Path to log file (optional, leave empty for stderr)")

	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")
}

// BindScanFlags binds fetch and concurrency flags, namespaced under 'scan.'.
// Example: --scan.workers, --scan.fetch_timeout
func BindScanFlags(flags *pflag.FlagSet) {
	defaults := DefaultScanConfig()

	flags.Int("scan.workers", defaults.Workers, "Signatures evaluated concurrently per target")
	flags.Int("scan.target_workers", defaults.TargetWorkers, "Targets scanned concurrently")
	flags.Duration("scan.fetch_timeout", defaults.FetchTimeout, "Timeout for every page fetch")
	flags.String("scan.user_agent", defaults.UserAgent, "User-Agent header")
	flags.Int64("scan.max_body_bytes", defaults.MaxBodyBytes, "Maximum body bytes read per page (0 for unlimited)")
	flags.Bool("scan.follow_redirects", defaults.FollowRedirects, "Follow redirects of the initial request")
	flags.Bool("scan.insecure_skip_verify", defaults.InsecureSkipVerify, "Skip TLS certificate verification")
}

// BindSignatureFlags binds signature source flags, namespaced under 'signatures.'.
func BindSignatureFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig().Signatures

	flags.Bool("signatures.builtin", defaults.Builtin, "Load embedded signatures")
	flags.StringSlice("signatures.dirs", nil, "Additional signature directories")
	flags.Bool("signatures.strict", defaults.Strict, "Abort on any malformed or duplicate signature")
	flags.String("signatures.cache_dir", defaults.CacheDir, "Directory holding synced signature feeds")
}
