package builtin

import (
	"errors"
	"strings"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

// HeartbeatID is the registered identifier of the heartbeat.
const HeartbeatID = "heartbeat"

// Events the heartbeat handles and emits.
const (
	EventPing = "heartbeat.ping"
	EventPong = "heartbeat.pong"
)

// Heartbeat turns ticks into bus events.
type Heartbeat struct {
	*service.Base
	event string
	log   *EventLog

	beats  int64
	uptime time.Duration
}

// NewHeartbeat returns a constructor for a heartbeat scattering event on
// every tick.
func NewHeartbeat(event string) service.Constructor {
	return func(host service.Host) (service.Service, error) {
		return &Heartbeat{Base: service.NewBase(HeartbeatID, host), event: event}, nil
	}
}

// OnPreInit rejects an empty event name.
func (h *Heartbeat) OnPreInit() (bool, error) {
	if strings.TrimSpace(h.event) == "" {
		return false, errors.New("heartbeat event name is empty")
	}
	return true, nil
}

// OnInit resolves the event log.
func (h *Heartbeat) OnInit() error {
	log, err := service.Lookup[*EventLog](h, "log")
	if err != nil {
		return err
	}
	h.log = log
	h.SetState(state.StatusRunning)
	return nil
}

// OnPostInit notes the start in the event log.
func (h *Heartbeat) OnPostInit() error {
	h.log.Note(HeartbeatID + ".started")
	return nil
}

// OnTick scatters the heartbeat event with the beat count and uptime.
func (h *Heartbeat) OnTick(elapsed time.Duration) {
	h.beats++
	h.uptime += elapsed
	err := h.Host().ScatterEnvelope(bus.NewEnvelope(h.event, h.beats).
		With("elapsed", elapsed).
		With("uptime", h.uptime))
	if err != nil {
		h.Logger().Entry().WithError(err).Warn("heartbeat scatter failed")
	}
}

// EventHandlers answers pings with a pong.
func (h *Heartbeat) EventHandlers() map[string]service.Handler {
	return map[string]service.Handler{
		EventPing: h.onPing,
	}
}

func (h *Heartbeat) onPing(env bus.Envelope) {
	pong := bus.NewEnvelope(EventPong, h.beats).With("uptime", h.uptime)
	if from, ok := env.Kwarg("from"); ok {
		pong = pong.With("to", from)
	}
	if err := h.Host().ScatterEnvelope(pong); err != nil {
		h.Logger().Entry().WithError(err).Warn("pong scatter failed")
	}
}

// Beats returns the number of ticks received. Owner goroutine only.
func (h *Heartbeat) Beats() int64 {
	return h.beats
}

// Uptime returns the accumulated tick time. Owner goroutine only.
func (h *Heartbeat) Uptime() time.Duration {
	return h.uptime
}

var (
	_ service.Ticker          = (*Heartbeat)(nil)
	_ service.EventSubscriber = (*Heartbeat)(nil)
)
