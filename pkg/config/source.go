// pkg/config/source.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Layer priorities of the built-in sources. A custom ConfigSource picks a
// value in between to slot into the stack.
const (
	PriorityDefaults = 10
	PriorityFile     = 20
	PriorityEnv      = 30
	PriorityFlags    = 40
)

// ConfigSource is one layer of the scanner configuration. Manager applies
// layers from the lowest Priority up, so a key set by a later layer replaces
// the same key from an earlier one.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource seeds every key with the value from DefaultConfig.
type DefaultSource struct{}

func (*DefaultSource) Name() string  { return "defaults" }
func (*DefaultSource) Priority() int { return PriorityDefaults }

func (*DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	return nil
}

// FileSource reads a YAML document from Path. An empty Path or a file that
// does not exist contributes nothing.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return PriorityFile }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	_, err := os.Stat(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat config file %s: %w", s.Path, err)
	}

	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("parse config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource maps prefixed environment variables onto config keys. Only the
// first underscore after the prefix becomes a dot, so WEBSCOPE_LOG_LEVEL sets
// log.level and WEBSCOPE_SCAN_FETCH_TIMEOUT sets scan.fetch_timeout.
type EnvSource struct {
	// Prefix defaults to EnvPrefix.
	Prefix string
}

func (*EnvSource) Name() string  { return "env" }
func (*EnvSource) Priority() int { return PriorityEnv }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	if err := k.Load(env.Provider(prefix, ".", envKey(prefix)), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

func envKey(prefix string) func(string) string {
	return func(name string) string {
		section, key, _ := strings.Cut(strings.TrimPrefix(name, prefix), "_")
		if key == "" {
			return strings.ToLower(section)
		}
		return strings.ToLower(section + "." + key)
	}
}

// FlagSource applies command-line flags. Flags left at their default only
// fill keys no earlier layer set. Debug forces log.level to debug.
type FlagSource struct {
	Flags *pflag.FlagSet
	Debug bool
}

func (*FlagSource) Name() string  { return "flags" }
func (*FlagSource) Priority() int { return PriorityFlags }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	if s.Debug {
		return k.Set("log.level", "debug")
	}
	return nil
}

// DefaultSources is the stack Manager.Load uses.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags, Debug: debug},
	}
}
