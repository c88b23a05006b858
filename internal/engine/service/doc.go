// Package service defines what the orchestrator runs: the Service contract
// with its lifecycle hooks, the optional capabilities a service may expose
// (heartbeat, exact-name event handlers, catch-all handler), the static
// Descriptor each service registers, and the Registry that holds them.
//
// Registration happens during discovery, before the manager starts. Each
// service module contributes a Module whose Register function calls
// Registry.Register or Registry.RegisterWithDeclaredIdentifier:
//
//	reg := service.NewRegistry()
//	service.Discover(reg, log,
//	    service.Module{Name: "tokens", Register: tokens.Register},
//	    service.Module{Name: "sockets", Register: sockets.Register},
//	)
//	mgr := manager.New(reg)
//
// After the registry is handed to the manager it belongs to the owner
// goroutine and must not be touched from anywhere else.
package service
