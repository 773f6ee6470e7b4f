package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/proyectoio2/back/internal/core/port"
)

const namespace = "back"

// Metrics exposes the authentication and store counters served on /metrics.
type Metrics struct {
	LoginAttempts *prometheus.CounterVec
	AccountLocks  prometheus.Counter
	ResetRequests *prometheus.CounterVec
	OrdersPlaced  prometheus.Counter
	SalesTotal    prometheus.Counter
}

// NewMetrics registers the counters with reg. Each registry may hold only one Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts partitioned by outcome.",
		}, []string{"outcome"}),
		AccountLocks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "account_locks_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
		ResetRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "password_reset_requests_total",
			Help:      "Password reset requests partitioned by outcome.",
		}, []string{"outcome"}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "orders_placed_total",
			Help:      "Orders created through checkout.",
		}),
		SalesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "sales_amount_total",
			Help:      "Sum of order totals created through checkout.",
		}),
	}
}

func (m *Metrics) LoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AccountLocked() {
	m.AccountLocks.Inc()
}

func (m *Metrics) ResetRequested(outcome string) {
	m.ResetRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderPlaced(total float64) {
	m.OrdersPlaced.Inc()
	if total > 0 {
		m.SalesTotal.Add(total)
	}
}

var _ port.Metrics = (*Metrics)(nil)
