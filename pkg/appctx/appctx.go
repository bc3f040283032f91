// Package appctx carries process-wide collaborators on a context so commands
// share one config manager and one signature registry.
package appctx

import (
	"context"

	"github.com/vulntor/webscope/pkg/config"
	"github.com/vulntor/webscope/pkg/signature"
)

type key string

const (
	configKey   key = "webscope.config.manager"
	registryKey key = "webscope.signature.registry"
)

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// WithRegistry stores a loaded signature registry on context.
func WithRegistry(ctx context.Context, reg *signature.Registry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, registryKey, reg)
}

// Registry retrieves the signature registry from context.
func Registry(ctx context.Context) (*signature.Registry, bool) {
	if ctx == nil {
		return nil, false
	}
	reg, ok := ctx.Value(registryKey).(*signature.Registry)
	return reg, ok && reg != nil
}
