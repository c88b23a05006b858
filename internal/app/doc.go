// Package app is the composition layer of the orchestrator binary.
//
// It owns no orchestration logic itself. New wires the pieces in order:
//
//	config ──► logger ──► registry + discovery ──► journal, metrics
//	                                │
//	                                ▼
//	                     manager (owner loop)
//	                        │            │
//	                        ▼            ▼
//	                 schedule (cron)   admin (HTTP)
//
// Start runs the owner loop on its own goroutine and starts the auto-start
// services before the scheduler and the admin listener accept work. Stop
// reverses that order, so nothing produces events once the orchestrator
// begins its shutdown sequence.
//
// Additional services are plugged in as discovery modules:
//
//	a, err := app.New(cfg, log, app.WithModules(service.Module{
//		Name: "rewards",
//		Register: func(reg *service.Registry) error {
//			return reg.Register("rewards", service.Descriptor{New: rewards.New})
//		},
//	}))
package app
