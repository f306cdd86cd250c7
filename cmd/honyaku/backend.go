package main

import (
	"fmt"

	"github.com/jackzampolin/honyaku/internal/config"
	"github.com/jackzampolin/honyaku/internal/providers"
)

// newRegistry builds the backend registry from cfg. With dryRun a mock
// backend is registered and used regardless of name.
func newRegistry(cfg *config.Config, dryRun bool) *providers.Registry {
	reg := providers.NewRegistry()
	reg.SetLogger(logger)
	reg.Reload(cfg.ToProviderRegistryConfig())
	if dryRun {
		reg.Register(providers.MockName, providers.NewMockBackend())
	}
	return reg
}

// selectBackend resolves the backend to use: the mock for a dry run, the
// --backend flag, or translation.backend.
func selectBackend(reg *providers.Registry, cfg *config.Config, flag string, dryRun bool) (providers.Backend, error) {
	name := flag
	switch {
	case dryRun:
		name = providers.MockName
	case name == "":
		name = cfg.Translation.Backend
	}
	b, err := reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (configured: %v)", err, reg.List())
	}
	return b, nil
}
