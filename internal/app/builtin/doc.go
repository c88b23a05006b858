// Package builtin holds the services shipped with the orchestrator binary.
//
// EventLog subscribes to every event and keeps a bounded history that other
// goroutines may read. Heartbeat receives the tick, scatters a heartbeat
// event on each one, and answers pings; it depends on EventLog under the
// alias "log".
package builtin
