package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/fakewebcam/internal/vb2"
)

var (
	registeredDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "registered",
		Help:      "Number of registered video nodes",
	})

	ioctlCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "ioctl_total",
		Help:      "Ioctl calls by request and result",
	}, []string{"device", "ioctl", "result"})
)

// RecordDeviceRegistered counts a newly registered node.
func RecordDeviceRegistered(string) {
	registeredDevices.Inc()
}

// RecordDeviceUnregistered drops a node and its queue metrics.
func RecordDeviceUnregistered(device string) {
	registeredDevices.Dec()
	DeleteQueueMetrics(device)
	ioctlCalls.DeletePartialMatch(prometheus.Labels{"device": device})
}

// RecordIoctl counts an ioctl call with its outcome.
func RecordIoctl(device, ioctl string, err error) {
	ioctlCalls.WithLabelValues(device, ioctl, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var vbErr *vb2.Error
	if errors.As(err, &vbErr) {
		return string(vbErr.Code)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CANCELED"
	}
	return "ERROR"
}
