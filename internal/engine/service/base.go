package service

import (
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Base provides the default lifecycle hooks and dependency bookkeeping.
//
// Example usage:
//
//	type Tokens struct {
//	    *service.Base
//	}
//
//	func NewTokens(host service.Host) (service.Service, error) {
//	    return &Tokens{Base: service.NewBase("tokens", host)}, nil
//	}
type Base struct {
	id    string
	host  Host
	state state.Status
	deps  map[string]Service
}

// NewBase creates a Base for the service registered under id.
func NewBase(id string, host Host) *Base {
	return &Base{
		id:    id,
		host:  host,
		state: state.StatusUnstarted,
		deps:  make(map[string]Service),
	}
}

// ID returns the service identifier.
func (b *Base) ID() string {
	return b.id
}

// Host returns the orchestrator handle.
func (b *Base) Host() Host {
	return b.host
}

// Logger returns the host logger named after the service, or a discarding
// logger when the service was built without a host.
func (b *Base) Logger() *logger.Logger {
	if b.host == nil {
		return logger.NewDiscard()
	}
	return b.host.Logger().Named(b.id)
}

// State returns the current lifecycle status.
func (b *Base) State() state.Status {
	return b.state
}

// SetState records a new lifecycle status.
func (b *Base) SetState(s state.Status) {
	b.state = s
}

// Bind attaches a dependency under alias.
func (b *Base) Bind(alias string, dep Service) {
	if b.deps == nil {
		b.deps = make(map[string]Service)
	}
	b.deps[alias] = dep
}

// Dependency returns the dependency bound under alias.
func (b *Base) Dependency(alias string) (Service, bool) {
	dep, ok := b.deps[alias]
	return dep, ok
}

// Dependencies returns a snapshot of all bound dependencies.
func (b *Base) Dependencies() map[string]Service {
	out := make(map[string]Service, len(b.deps))
	for k, v := range b.deps {
		out[k] = v
	}
	return out
}

// OnPreInit accepts the start.
func (b *Base) OnPreInit() (bool, error) {
	return true, nil
}

// OnInit marks the service running.
func (b *Base) OnInit() error {
	b.SetState(state.StatusRunning)
	return nil
}

// OnPostInit does nothing.
func (b *Base) OnPostInit() error {
	return nil
}

// OnSystemShutdown does nothing.
func (b *Base) OnSystemShutdown() error {
	return nil
}

var _ Service = (*Base)(nil)
