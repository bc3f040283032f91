// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for webscope.
type Config struct {
	Log        LogConfig        `description:"Logging configuration" koanf:"log"`
	Scan       ScanConfig       `description:"Scan configuration" koanf:"scan"`
	Signatures SignaturesConfig `description:"Signature sources" koanf:"signatures"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level (debug, info, warn, error)" koanf:"level"`
	Format string `description:"Log format: json | text" koanf:"format" validate:"oneof=text json"`
	File   string `description:"Log file path" koanf:"file"`
}

// ScanConfig controls fetching and evaluation.
type ScanConfig struct {
	// Concurrency
	Workers       int `description:"Signatures evaluated concurrently per target" koanf:"workers" validate:"gt=0"`
	TargetWorkers int `description:"Targets scanned concurrently" koanf:"target_workers" validate:"gt=0"`

	// HTTP
	FetchTimeout       time.Duration `description:"Timeout for every page fetch" koanf:"fetch_timeout" validate:"gt=0"`
	UserAgent          string        `description:"User-Agent header sent with requests" koanf:"user_agent" validate:"required"`
	MaxBodyBytes       int64         `description:"Maximum body bytes read per page (0 for unlimited)" koanf:"max_body_bytes" validate:"gte=0"`
	FollowRedirects    bool          `description:"Follow redirects of the initial request" koanf:"follow_redirects"`
	InsecureSkipVerify bool          `description:"Skip TLS certificate verification" koanf:"insecure_skip_verify"`
}

// SignaturesConfig selects where signatures are loaded from.
type SignaturesConfig struct {
	Builtin  bool     `description:"Load embedded signatures" koanf:"builtin"`
	Dirs     []string `description:"Directories searched recursively for signature files" koanf:"dirs"`
	Strict   bool     `description:"Abort on any malformed or duplicate signature" koanf:"strict"`
	CacheDir string   `description:"Directory holding synced signature feeds" koanf:"cache_dir"`
}
