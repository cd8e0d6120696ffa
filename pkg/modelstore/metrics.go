package modelstore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "modelstore"

// Result label values.
const (
	resultOK    = "ok"
	resultError = "error"
)

type metrics struct {
	writes      *prometheus.CounterVec
	checkpoints *prometheus.CounterVec
	slotOps     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "record_writes_total",
			Help:      "Record writes by kind and result.",
		}, []string{"kind", "result"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "checkpoints_total",
			Help:      "Write-back checkpoints by mode.",
		}, []string{"mode"}),
		slotOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "slot_operations_total",
			Help:      "Multi-file slot operations by operation and result.",
		}, []string{"op", "result"}),
	}

	if reg == nil {
		return m
	}

	m.writes = register(reg, m.writes)
	m.checkpoints = register(reg, m.checkpoints)
	m.slotOps = register(reg, m.slotOps)

	return m
}

// register adds c to reg, reusing an identical collector that is already
// registered (several stores may share one registry).
func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	err := reg.Register(c)
	if err == nil {
		return c
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}

	panic(err)
}

func resultLabel(err error) string {
	if err != nil {
		return resultError
	}

	return resultOK
}

func (m *metrics) write(kind string, err error) {
	m.writes.WithLabelValues(kind, resultLabel(err)).Inc()
}

func (m *metrics) checkpoint(force bool) {
	mode := "routine"
	if force {
		mode = "forced"
	}

	m.checkpoints.WithLabelValues(mode).Inc()
}

func (m *metrics) slotOp(op string, err error) {
	m.slotOps.WithLabelValues(op, resultLabel(err)).Inc()
}
