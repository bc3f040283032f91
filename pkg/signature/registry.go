package signature

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Registry indexes compiled signatures by name and preserves registration
// order. A Registry is read-only once Load returns, so it can be shared across
// goroutines without locking.
type Registry struct {
	signatures []*Signature
	byName     map[string]*Signature
	origins    map[string]string
	issues     []error
}

type loadOptions struct {
	strict bool
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithStrict makes any load error or duplicate name abort the whole load.
func WithStrict() LoadOption {
	return func(o *loadOptions) { o.strict = true }
}

// Load decodes and compiles every source in order.
//
// By default loading is lenient: a malformed source is skipped with a
// LoadError, a duplicate name keeps the first signature and records a
// DuplicateNameError, and all of these are available from Issues. In strict
// mode the first pass collects the same issues but Load returns nil and the
// joined issues instead of a partial registry.
func Load(sources []Source, opts ...LoadOption) (*Registry, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.With().Str("component", "signature-registry").Logger()
	r := newRegistry()

	for _, src := range sources {
		def, err := src.Decode()
		if err != nil {
			r.issues = append(r.issues, &LoadError{Origin: src.Origin, Err: err})
			continue
		}

		sig, err := Compile(def, src.Origin)
		if err != nil {
			r.issues = append(r.issues, &LoadError{Origin: src.Origin, Err: err})
			continue
		}

		if err := r.add(sig); err != nil {
			r.issues = append(r.issues, err)
		}
	}

	if o.strict && len(r.issues) > 0 {
		return nil, errors.Join(r.issues...)
	}

	for _, issue := range r.issues {
		logger.Debug().Err(issue).Msg("Skipped signature source")
	}
	logger.Debug().
		Int("loaded", len(r.signatures)).
		Int("issues", len(r.issues)).
		Msg("Signature registry loaded")

	return r, nil
}

// New builds a registry from already compiled signatures. Duplicate names are
// rejected.
func New(sigs ...*Signature) (*Registry, error) {
	r := newRegistry()
	for _, sig := range sigs {
		if sig == nil {
			return nil, fmt.Errorf("cannot register nil signature")
		}
		if sig.Name == "" {
			return nil, fmt.Errorf("signature name cannot be empty")
		}
		if err := r.add(sig); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Signature),
		origins: make(map[string]string),
	}
}

func (r *Registry) add(sig *Signature) error {
	if _, exists := r.byName[sig.Name]; exists {
		return &DuplicateNameError{
			Name:        sig.Name,
			Origin:      sig.Origin,
			FirstOrigin: r.origins[sig.Name],
		}
	}
	r.signatures = append(r.signatures, sig)
	r.byName[sig.Name] = sig
	r.origins[sig.Name] = sig.Origin
	return nil
}

// Get returns the signature registered under name.
func (r *Registry) Get(name string) (*Signature, error) {
	sig, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return sig, nil
}

// All returns the signatures in registration order.
func (r *Registry) All() []*Signature {
	return append([]*Signature(nil), r.signatures...)
}

// Names returns signature names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.signatures))
	for _, sig := range r.signatures {
		names = append(names, sig.Name)
	}
	return names
}

// Len returns the number of registered signatures.
func (r *Registry) Len() int {
	return len(r.signatures)
}

// Issues returns the problems recorded during a lenient load.
func (r *Registry) Issues() []error {
	return append([]error(nil), r.issues...)
}

// Select returns a registry restricted to names, keeping registration order.
// Every name must exist.
func (r *Registry) Select(names ...string) (*Registry, error) {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		want[name] = true
	}

	sub := newRegistry()
	for _, sig := range r.signatures {
		if want[sig.Name] {
			_ = sub.add(sig)
		}
	}
	return sub, nil
}
