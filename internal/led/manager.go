package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/fakewebcam/internal/events"
)

// Manager lights the LED while at least one device is streaming.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	logger      *slog.Logger
	unsubscribe func()

	mu        sync.Mutex
	streaming map[string]bool // device path -> streaming
	lit       bool
}

// NewManager creates a manager for controller driven by eventBus.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		streaming:  make(map[string]bool),
	}
}

// Start subscribes to stream state and registration events. The LED starts off.
func (m *Manager) Start() {
	m.apply(false)
	unsubState := m.eventBus.Subscribe(func(e events.StreamStateChangedEvent) {
		m.update(e.Device, e.IsStreaming())
	})
	unsubReg := m.eventBus.Subscribe(func(e events.DeviceRegisteredEvent) {
		if e.Action == "unregistered" {
			m.update(e.Device, false)
		}
	})
	m.unsubscribe = func() {
		unsubState()
		unsubReg()
	}
	m.logger.Info("LED manager started")
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = make(map[string]bool)
	m.apply(false)
	m.logger.Info("LED manager stopped")
}

// Lit reports whether the LED is currently on.
func (m *Manager) Lit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lit
}

func (m *Manager) update(device string, streaming bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if streaming {
		m.streaming[device] = true
	} else {
		delete(m.streaming, device)
	}
	on := len(m.streaming) > 0
	if on != m.lit {
		m.logger.Debug("Activity LED changed", "on", on, "device", device)
		m.apply(on)
	}
}

// apply sets the LED. Callers other than Start must hold m.mu.
func (m *Manager) apply(on bool) {
	if err := m.controller.Set(on); err != nil {
		m.logger.Warn("Failed to set activity LED", "on", on, "error", err)
		return
	}
	m.lit = on
}
