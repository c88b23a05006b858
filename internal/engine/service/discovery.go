package service

import (
	"fmt"

	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Module is one discoverable service package. Register is called once with
// the registry and may register any number of services.
type Module struct {
	Name     string
	Register func(reg *Registry) error
}

// DiscoveryResult reports which modules loaded.
type DiscoveryResult struct {
	Loaded []string
	Failed map[string]error
}

// Discover runs every module against reg. A module that fails or panics is
// logged and skipped; the remaining modules still load.
func Discover(reg *Registry, log *logger.Logger, modules ...Module) DiscoveryResult {
	if log == nil {
		log = logger.NewDiscard()
	}
	result := DiscoveryResult{Failed: make(map[string]error)}

	for _, m := range modules {
		if err := loadModule(reg, m); err != nil {
			log.Entry().WithField("module", m.Name).WithError(err).Error("error loading service module")
			result.Failed[m.Name] = err
			continue
		}
		log.Entry().WithField("module", m.Name).Debug("service module loaded")
		result.Loaded = append(result.Loaded, m.Name)
	}
	return result
}

func loadModule(reg *Registry, m Module) (err error) {
	if m.Register == nil {
		return fmt.Errorf("module %s has no register function", m.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s panicked: %v", m.Name, r)
		}
	}()
	return m.Register(reg)
}
