package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/vulntor/webscope/pkg/feed"
)

// newFeedCommand wires CLI helpers for signature feed management.
func newFeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "feed",
		Short:   "Manage the synced signature feed",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newFeedSyncCommand())

	return cmd
}

func newFeedSyncCommand() *cobra.Command {
	var (
		filePath string
		url      string
		cacheDir string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync signatures from a remote or local feed",
		Example: `  webscope feed sync --url https://feeds.example.org/webscope/signatures.yaml
  webscope feed sync --file ./bundle.json --cache-dir /var/cache/webscope`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filePath == "" && url == "" {
				return fmt.Errorf("%w: either --file or --url must be provided", ErrInvalidInput)
			}
			if filePath != "" && url != "" {
				return fmt.Errorf("%w: only one of --file or --url may be provided at a time", ErrInvalidInput)
			}

			destination := cacheDir
			if destination == "" {
				destination = configFrom(cmd).Signatures.CacheDir
			}

			svc := feed.Service{Store: feed.FileStore{Dir: destination}}
			if filePath != "" {
				svc.Source = feed.FileSource{Path: filePath}
			} else {
				svc.Source = feed.HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
			}

			reg, err := svc.Sync(cmd.Context())
			if err != nil {
				return err
			}

			f := Formatter(cmd)
			return f.PrintSummary(fmt.Sprintf("✓ Synced %d signatures into %s", reg.Len(), destination))
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Load the signature bundle from a local file")
	cmd.Flags().StringVar(&url, "url", "", "Download the signature bundle from a remote URL")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Override the cache directory (default signatures.cache_dir)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Download timeout")

	return cmd
}
