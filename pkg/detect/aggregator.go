// Package detect runs registered signatures over captured responses and
// aggregates their findings per target.
package detect

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vulntor/webscope/pkg/finding"
	"github.com/vulntor/webscope/pkg/matcher"
	"github.com/vulntor/webscope/pkg/passive"
	"github.com/vulntor/webscope/pkg/signature"
)

// Response is what the aggregator needs from a captured exchange.
type Response interface {
	matcher.Target
	FinalURL() *url.URL
	StatusCode() int
}

// Detection holds the deduplicated findings of one signature.
type Detection struct {
	Signature string            `json:"signature"`
	Certainty int               `json:"certainty"`
	Findings  []finding.Finding `json:"findings"`
}

// Values returns the distinct values of kind in first-seen order.
func (d Detection) Values(kind finding.Kind) []string {
	var out []string
	for _, f := range d.Findings {
		if f.Kind == kind {
			out = append(out, f.Value)
		}
	}
	return out
}

// Result is the outcome of evaluating all signatures against one response.
type Result struct {
	ScanID     string            `json:"scan_id"`
	Target     string            `json:"target"`
	FinalURL   string            `json:"final_url"`
	StatusCode int               `json:"status_code"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration_ns"`
	Detections []Detection       `json:"detections"`
	Errors     []*SignatureError `json:"errors,omitempty"`
}

// Get returns the detection for a signature name.
func (r *Result) Get(name string) (Detection, bool) {
	for _, d := range r.Detections {
		if d.Signature == name {
			return d, true
		}
	}
	return Detection{}, false
}

// Ranked returns detections ordered by highest certainty. Ties keep
// registration order.
func (r *Result) Ranked() []Detection {
	out := append([]Detection(nil), r.Detections...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Certainty > out[j].Certainty
	})
	return out
}

// Aggregator evaluates every signature of a registry on a bounded pool.
type Aggregator struct {
	registry *signature.Registry
	workers  int
	logger   zerolog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithWorkers bounds the number of signatures evaluated concurrently.
func WithWorkers(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// NewAggregator creates an aggregator over reg. The registry must not change
// afterwards.
func NewAggregator(reg *signature.Registry, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		registry: reg,
		workers:  runtime.GOMAXPROCS(0),
		logger:   log.With().Str("component", "detect").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type outcome struct {
	set finding.Set
	err error
}

// Detect evaluates all signatures against resp. Signatures that fail are
// listed in Result.Errors; the only error returned is ctx's.
func (a *Aggregator) Detect(ctx context.Context, resp Response) (*Result, error) {
	started := time.Now()
	sigs := a.registry.All()
	outcomes := make([]outcome, len(sigs))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, sig := range sigs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcomes[i] = a.evaluate(ctx, sig, resp)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		ScanID:     uuid.NewString(),
		FinalURL:   resp.FinalURL().String(),
		StatusCode: resp.StatusCode(),
		StartedAt:  started,
	}
	for i, sig := range sigs {
		o := outcomes[i]
		if o.err != nil {
			a.logger.Warn().Str("signature", sig.Name).Err(o.err).Msg("signature evaluation failed")
			result.Errors = append(result.Errors, &SignatureError{Signature: sig.Name, Err: o.err})
			continue
		}
		if o.set.Len() == 0 {
			continue
		}
		result.Detections = append(result.Detections, Detection{
			Signature: sig.Name,
			Certainty: o.set.MaxCertainty(),
			Findings:  o.set.Findings(),
		})
	}
	result.Duration = time.Since(started)

	a.logger.Debug().
		Str("url", result.FinalURL).
		Int("signatures", len(sigs)).
		Int("detections", len(result.Detections)).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("detection completed")
	return result, nil
}

// evaluate runs the match rules, then the passive rules, of one signature.
func (a *Aggregator) evaluate(ctx context.Context, sig *signature.Signature, resp Response) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: %v", ErrSignaturePanic, r)}
		}
	}()

	var set finding.Set
	for i := range sig.Rules {
		fs, err := matcher.Evaluate(ctx, sig.Name, i, &sig.Rules[i], resp)
		if err != nil {
			return outcome{err: err}
		}
		set.AddAll(fs)
	}

	fs, err := passive.Detect(sig, resp)
	if err != nil {
		return outcome{err: err}
	}
	set.AddAll(fs)

	return outcome{set: set}
}
