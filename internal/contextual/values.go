// Package contextual carries values detected or loaded once per invocation through a context.
package contextual

import (
	"context"

	"github.com/rockstor/btrfs-utils/internal/config"
	"github.com/rockstor/btrfs-utils/internal/system"
)

type key int

const (
	// toolsetKey is used to set and retrieve context held values for Toolset.
	toolsetKey key = iota
	// configKey is used to set and retrieve context held values for Config.
	configKey
)

// WithToolset extends the context to provide a Toolset.
func WithToolset(ctx context.Context, toolset *system.Toolset) context.Context {
	return context.WithValue(ctx, toolsetKey, toolset)
}

// Toolset fetches the detected btrfs Toolset provided in ctx.
func Toolset(ctx context.Context) *system.Toolset {
	if val := ctx.Value(toolsetKey); val != nil {
		if v, ok := val.(*system.Toolset); ok {
			return v
		}
		panic("incoherent context")
	}

	return nil
}

// WithConfig extends the context to provide a Config.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// Config fetches the loaded Config provided in ctx.
func Config(ctx context.Context) *config.Config {
	if val := ctx.Value(configKey); val != nil {
		if v, ok := val.(*config.Config); ok {
			return v
		}
		panic("incoherent context")
	}

	return nil
}
