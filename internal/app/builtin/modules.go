package builtin

import (
	"github.com/R3E-Network/service_orchestrator/internal/config"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/pkg/clock"
)

// Modules returns the discovery modules of the built-in services.
func Modules(cfg config.ServicesConfig, c clock.Clock) []service.Module {
	return []service.Module{
		{
			Name: EventLogID,
			Register: func(reg *service.Registry) error {
				return reg.Register(EventLogID, service.Descriptor{
					New:       NewEventLog(cfg.EventLogSize, c),
					Events:    []string{service.AllEvents},
					AutoStart: true,
				})
			},
		},
		{
			Name: HeartbeatID,
			Register: func(reg *service.Registry) error {
				return reg.RegisterWithDeclaredIdentifier(service.Descriptor{
					ID:           HeartbeatID,
					New:          NewHeartbeat(cfg.HeartbeatEvent),
					Dependencies: []service.Dependency{service.DependsOnAs(EventLogID, "log")},
					Events:       []string{EventPing},
					AutoStart:    true,
				})
			},
		},
	}
}
