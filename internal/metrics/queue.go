// Package metrics provides Prometheus metrics for capture queues and devices.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fakewebcam"

var (
	framesQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "frames_queued_total",
		Help:      "Buffers handed to the delivery engine",
	}, []string{"device"})

	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "frames_delivered_total",
		Help:      "Buffers marked ready for dequeue",
	}, []string{"device"})

	framesDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "frames_dequeued_total",
		Help:      "Buffers taken by consumers",
	}, []string{"device"})

	framesCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "frames_cancelled_total",
		Help:      "Pending deliveries cancelled by stream off",
	}, []string{"device"})

	pendingBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "pending_buffers",
		Help:      "Buffers waiting for their target delivery time",
	}, []string{"device"})

	streaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "streaming",
		Help:      "1 while the queue is streaming",
	}, []string{"device"})

	deliveryLateness = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "delivery_lateness_seconds",
		Help:      "Time between a buffer's target and its delivery",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"device"})

	// Local cache for SSE exporter and API access.
	queueCache   = make(map[string]*QueueMetrics)
	queueCacheMu sync.RWMutex
)

// QueueMetrics holds current metric values for a device queue.
type QueueMetrics struct {
	FramesQueued    float64
	FramesDelivered float64
	FramesDequeued  float64
	FramesCancelled float64
	PendingBuffers  float64
	Streaming       bool
	LastLateness    time.Duration
}

// RecordFrameQueued counts a queued buffer.
func RecordFrameQueued(device string) {
	framesQueued.WithLabelValues(device).Inc()
	pendingBuffers.WithLabelValues(device).Inc()
	updateCache(device, func(m *QueueMetrics) {
		m.FramesQueued++
		m.PendingBuffers++
	})
}

// RecordFrameDelivered counts a delivered buffer and observes its lateness.
func RecordFrameDelivered(device string, lateness time.Duration) {
	framesDelivered.WithLabelValues(device).Inc()
	pendingBuffers.WithLabelValues(device).Dec()
	deliveryLateness.WithLabelValues(device).Observe(lateness.Seconds())
	updateCache(device, func(m *QueueMetrics) {
		m.FramesDelivered++
		m.PendingBuffers--
		m.LastLateness = lateness
	})
}

// RecordFrameDequeued counts a dequeued buffer.
func RecordFrameDequeued(device string) {
	framesDequeued.WithLabelValues(device).Inc()
	updateCache(device, func(m *QueueMetrics) { m.FramesDequeued++ })
}

// RecordFrameCancelled counts a cancelled delivery.
func RecordFrameCancelled(device string) {
	framesCancelled.WithLabelValues(device).Inc()
	pendingBuffers.WithLabelValues(device).Dec()
	updateCache(device, func(m *QueueMetrics) {
		m.FramesCancelled++
		m.PendingBuffers--
	})
}

// SetStreaming records whether a device is streaming.
func SetStreaming(device string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	streaming.WithLabelValues(device).Set(v)
	updateCache(device, func(m *QueueMetrics) { m.Streaming = on })
}

// DeleteQueueMetrics removes all metrics for a device.
func DeleteQueueMetrics(device string) {
	framesQueued.DeleteLabelValues(device)
	framesDelivered.DeleteLabelValues(device)
	framesDequeued.DeleteLabelValues(device)
	framesCancelled.DeleteLabelValues(device)
	pendingBuffers.DeleteLabelValues(device)
	streaming.DeleteLabelValues(device)
	deliveryLateness.DeleteLabelValues(device)

	queueCacheMu.Lock()
	delete(queueCache, device)
	queueCacheMu.Unlock()
}

// GetQueueMetrics returns current metric values for a device.
func GetQueueMetrics(device string) *QueueMetrics {
	queueCacheMu.RLock()
	defer queueCacheMu.RUnlock()
	if m, ok := queueCache[device]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllQueueMetrics returns metrics for all devices.
func GetAllQueueMetrics() map[string]*QueueMetrics {
	queueCacheMu.RLock()
	defer queueCacheMu.RUnlock()
	result := make(map[string]*QueueMetrics, len(queueCache))
	for device, m := range queueCache {
		dup := *m
		result[device] = &dup
	}
	return result
}

func updateCache(device string, update func(*QueueMetrics)) {
	queueCacheMu.Lock()
	defer queueCacheMu.Unlock()
	m, ok := queueCache[device]
	if !ok {
		m = &QueueMetrics{}
		queueCache[device] = m
	}
	update(m)
}
