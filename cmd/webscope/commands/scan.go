package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/webscope/cmd/webscope/internal/format"
	"github.com/vulntor/webscope/pkg/config"
	"github.com/vulntor/webscope/pkg/detect"
	"github.com/vulntor/webscope/pkg/response"
	"github.com/vulntor/webscope/pkg/signature"
)

func newScanCommand() *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:     "scan <target...>",
		Short:   "Fingerprint one or more web targets",
		GroupID: "scan",
		Example: `  webscope scan mg.example.com
  webscope scan https://a.example http://10.0.0.2:8080 --signature MobilityGuard
  webscope scan mg.example.com -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return detect.ErrNoTargets
			}
			cfg := configFrom(cmd)

			reg, err := registryFor(cmd, cfg.Signatures)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				if reg, err = reg.Select(names...); err != nil {
					return err
				}
			}
			if reg.Len() == 0 {
				log.Warn().Str("component", "cli").Msg("no signatures loaded; every target will report no detections")
			}

			scanner := newScanner(cfg.Scan, reg)

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			batch := scanner.Start(cmd.Context(), args)
			interrupted := stopOnSignal(batch, sigs)
			outcomes := batch.Wait()
			if err := format.PrintReports(Formatter(cmd), format.Reports(outcomes)); err != nil {
				return err
			}

			if interrupted() {
				return &exitError{code: exitGeneral, err: fmt.Errorf("scan interrupted: %w", context.Canceled)}
			}
			if err := cmd.Context().Err(); err != nil {
				return &exitError{code: exitGeneral, err: fmt.Errorf("scan interrupted: %w", err)}
			}
			for _, o := range outcomes {
				if o.Err != nil {
					return &exitError{code: ExitCode(o.Err), err: fmt.Errorf("%s: %w", o.Target, o.Err)}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "signature", "s", nil, "Only evaluate the named signatures (repeatable)")
	config.BindScanFlags(cmd.Flags())

	return cmd
}

func newScanner(cfg config.ScanConfig, reg *signature.Registry) *detect.Scanner {
	fetcher := response.NewHTTPFetcher(response.HTTPOptions{
		UserAgent:          cfg.UserAgent,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		FollowRedirects:    cfg.FollowRedirects,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	return detect.NewScanner(reg, fetcher,
		detect.WithFetchTimeout(cfg.FetchTimeout),
		detect.WithTargetWorkers(cfg.TargetWorkers),
		detect.WithAggregator(detect.NewAggregator(reg, detect.WithWorkers(cfg.Workers))),
	)
}

// stopOnSignal aborts every target of batch when a signal arrives on sigs.
// The returned func reports whether that happened; call it after Wait.
func stopOnSignal(batch *detect.Batch, sigs <-chan os.Signal) func() bool {
	var hit atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigs:
			hit.Store(true)
			log.Warn().Str("component", "cli").Str("signal", sig.String()).Msg("stopping scan")
			batch.Stop()
		case <-batch.Done():
		}
	}()
	return func() bool {
		<-done
		return hit.Load()
	}
}
