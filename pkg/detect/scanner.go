package detect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vulntor/webscope/pkg/response"
	"github.com/vulntor/webscope/pkg/signature"
)

// DefaultTargetWorkers bounds concurrent targets in a Batch.
const DefaultTargetWorkers = 4

// Scanner captures targets through a Fetcher and runs the aggregator on them.
type Scanner struct {
	fetcher       response.Fetcher
	aggregator    *Aggregator
	timeout       time.Duration
	targetWorkers int
	logger        zerolog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithFetchTimeout sets the timeout applied to every fetch of a scan.
func WithFetchTimeout(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTargetWorkers bounds the number of targets a Batch scans at once.
func WithTargetWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.targetWorkers = n
		}
	}
}

// WithAggregator replaces the aggregator built from the registry.
func WithAggregator(a *Aggregator) ScannerOption {
	return func(s *Scanner) {
		if a != nil {
			s.aggregator = a
		}
	}
}

// NewScanner creates a scanner evaluating the signatures of reg.
func NewScanner(reg *signature.Registry, fetcher response.Fetcher, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		fetcher:       fetcher,
		aggregator:    NewAggregator(reg),
		timeout:       response.DefaultTimeout,
		targetWorkers: DefaultTargetWorkers,
		logger:        log.With().Str("component", "scanner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeTarget turns a bare host, host:port or IP into an http URL and
// validates absolute URLs.
func NormalizeTarget(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return "", ErrNoTargets
	}
	if !strings.Contains(t, "://") {
		t = "http://" + t
	}

	u, err := url.Parse(t)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidTarget, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w %q: unsupported scheme %q", ErrInvalidTarget, raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w %q: missing host", ErrInvalidTarget, raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Scan captures target and evaluates every signature against it.
func (s *Scanner) Scan(ctx context.Context, target string) (*Result, error) {
	u, err := NormalizeTarget(target)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Str("target", u).Msg("capturing target")
	resp, err := response.Capture(ctx, s.fetcher, u, s.timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrTargetUnreachable, u, err)
	}

	result, err := s.aggregator.Detect(ctx, resp)
	if err != nil {
		return nil, err
	}
	result.Target = target
	return result, nil
}

// Outcome is the result of one target in a Batch.
type Outcome struct {
	Index  int
	Target string
	Result *Result
	Err    error
}

// Batch scans several targets concurrently. Each target runs under its own
// context so it can be cancelled without affecting the others.
type Batch struct {
	outcomes chan Outcome
	done     chan struct{}

	mu      sync.Mutex
	cancels map[string][]context.CancelFunc
	results []Outcome
	stop    context.CancelFunc
}

// Start begins scanning targets and returns immediately.
func (s *Scanner) Start(ctx context.Context, targets []string) *Batch {
	parent, stop := context.WithCancel(ctx)
	b := &Batch{
		outcomes: make(chan Outcome, len(targets)),
		done:     make(chan struct{}),
		cancels:  make(map[string][]context.CancelFunc, len(targets)),
		results:  make([]Outcome, len(targets)),
		stop:     stop,
	}

	ctxs := make([]context.Context, len(targets))
	for i, t := range targets {
		tctx, cancel := context.WithCancel(parent)
		ctxs[i] = tctx
		b.cancels[t] = append(b.cancels[t], cancel)
	}

	go func() {
		defer close(b.done)
		defer stop()

		var g errgroup.Group
		g.SetLimit(s.targetWorkers)
		for i, t := range targets {
			g.Go(func() error {
				res, err := s.Scan(ctxs[i], t)
				if err != nil {
					s.logger.Debug().Str("target", t).Err(err).Msg("target failed")
				}
				o := Outcome{Index: i, Target: t, Result: res, Err: err}

				b.mu.Lock()
				b.results[i] = o
				b.mu.Unlock()
				b.outcomes <- o
				return nil
			})
		}
		_ = g.Wait()
		close(b.outcomes)

		b.mu.Lock()
		for _, cancels := range b.cancels {
			for _, cancel := range cancels {
				cancel()
			}
		}
		b.mu.Unlock()
	}()

	return b
}

// Cancel aborts every occurrence of target in the batch. It reports whether
// the target was part of the batch.
func (b *Batch) Cancel(target string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cancels, ok := b.cancels[target]
	for _, cancel := range cancels {
		cancel()
	}
	return ok
}

// Stop aborts all targets.
func (b *Batch) Stop() {
	b.stop()
}

// Done is closed once every target has finished.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Outcomes streams outcomes as targets complete. The channel is closed once
// every target has finished.
func (b *Batch) Outcomes() <-chan Outcome {
	return b.outcomes
}

// Wait blocks until every target has finished and returns the outcomes in
// input order.
func (b *Batch) Wait() []Outcome {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Outcome(nil), b.results...)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
