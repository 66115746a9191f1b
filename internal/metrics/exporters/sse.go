package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/smazurov/fakewebcam/internal/events"
	"github.com/smazurov/fakewebcam/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes per-device queue metrics as events.
type SSEExporter struct {
	eventBus EventPublisher
	clock    clockwork.Clock
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// delivered count at the previous tick, for the frame rate
	lastDelivered map[string]float64
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus:      eventBus,
		clock:         clockwork.NewRealClock(),
		interval:      1 * time.Second,
		lastDelivered: make(map[string]float64),
	}
}

// SetInterval changes the publish interval. It must be called before Start.
func (s *SSEExporter) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	allMetrics := metrics.GetAllQueueMetrics()
	for device := range s.lastDelivered {
		if _, ok := allMetrics[device]; !ok {
			delete(s.lastDelivered, device)
		}
	}

	for device, m := range allMetrics {
		fps := 0.0
		if last, ok := s.lastDelivered[device]; ok && m.FramesDelivered >= last {
			fps = (m.FramesDelivered - last) / s.interval.Seconds()
		}
		s.lastDelivered[device] = m.FramesDelivered

		s.eventBus.Publish(events.QueueMetricsEvent{
			EventType:       "queue_metrics",
			Device:          device,
			FPS:             strconv.FormatFloat(fps, 'f', 2, 64),
			FramesDelivered: strconv.FormatFloat(m.FramesDelivered, 'f', 0, 64),
			FramesDequeued:  strconv.FormatFloat(m.FramesDequeued, 'f', 0, 64),
			FramesCancelled: strconv.FormatFloat(m.FramesCancelled, 'f', 0, 64),
			PendingBuffers:  strconv.FormatFloat(m.PendingBuffers, 'f', 0, 64),
			Streaming:       m.Streaming,
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"queue-metrics": events.QueueMetricsEvent{},
	}
}
