package commands

import (
	"errors"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/webscope/cmd/webscope/internal/format"
	"github.com/vulntor/webscope/pkg/appctx"
	"github.com/vulntor/webscope/pkg/config"
	"github.com/vulntor/webscope/pkg/feed"
	"github.com/vulntor/webscope/pkg/signature"
)

func outputFlag(cmd *cobra.Command) string {
	mode, _ := cmd.Flags().GetString("output")
	return mode
}

// Formatter builds the output formatter selected by the global flags.
func Formatter(cmd *cobra.Command) format.Formatter {
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	return format.New(
		cmd.OutOrStdout(),
		cmd.ErrOrStderr(),
		format.ParseMode(outputFlag(cmd)),
		quiet,
		!noColor && !color.NoColor,
	)
}

// configFrom returns the configuration loaded by the root command, or the
// defaults when a subcommand runs without it.
func configFrom(cmd *cobra.Command) config.Config {
	if mgr, ok := appctx.Config(cmd.Context()); ok {
		return mgr.Get()
	}
	return config.DefaultConfig()
}

// registryFor returns a registry placed on the command context, or loads one
// from the configured signature sources.
func registryFor(cmd *cobra.Command, cfg config.SignaturesConfig) (*signature.Registry, error) {
	if reg, ok := appctx.Registry(cmd.Context()); ok {
		return reg, nil
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	cmd.SetContext(appctx.WithRegistry(cmd.Context(), reg))
	return reg, nil
}

// loadRegistry merges signature directories, the synced feed and the built-in
// signatures, in that order. Leniently loaded registries keep the first
// signature of a name, so local definitions shadow the feed and the feed
// shadows built-ins.
func loadRegistry(cfg config.SignaturesConfig) (*signature.Registry, error) {
	var sources []signature.Source

	for _, dir := range cfg.Dirs {
		found, err := signature.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}

	cached, err := feed.CachedSources(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	sources = append(sources, cached...)

	if cfg.Builtin {
		builtin, err := signature.Builtin()
		if err != nil {
			return nil, err
		}
		sources = append(sources, builtin...)
	}

	var opts []signature.LoadOption
	if cfg.Strict {
		opts = append(opts, signature.WithStrict())
	}
	reg, err := signature.Load(sources, opts...)
	if err != nil {
		return nil, err
	}

	for _, issue := range reg.Issues() {
		if errors.Is(issue, signature.ErrDuplicateName) {
			log.Debug().Str("component", "cli").Err(issue).Msg("signature shadowed")
			continue
		}
		log.Warn().Str("component", "cli").Err(issue).Msg("signature skipped")
	}
	log.Debug().
		Str("component", "cli").
		Int("signatures", reg.Len()).
		Int("sources", len(sources)).
		Msg("signatures loaded")
	return reg, nil
}

// PrintError reports err with hints using the output flags of cmd.
func PrintError(cmd *cobra.Command, err error) error {
	return Formatter(cmd).PrintError(err, suggestions(err))
}
