package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's prometheus instruments.
type Metrics struct {
	ledgerEntries   *prometheus.CounterVec
	ledgerRejects   *prometheus.CounterVec
	fraudFlags      *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
	sweepPayments   *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	callSettlements *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		ledgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_ledger_entries_total",
			Help: "Ledger entries posted, by kind.",
		}, []string{"kind"}),
		ledgerRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_ledger_rejects_total",
			Help: "Ledger postings rejected, by reason.",
		}, []string{"reason"}),
		fraudFlags: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_fraud_flags_total",
			Help: "Fraud flags raised, by type and severity.",
		}, []string{"flag_type", "severity"}),
		sweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_payout_sweep_runs_total",
			Help: "Payout sweep runs, by outcome.",
		}, []string{"outcome"}),
		sweepPayments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_payout_payments_total",
			Help: "Scheduled payments produced by the sweep, by status.",
		}, []string{"status"}),
		sweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "minutepay_payout_sweep_duration_seconds",
			Help:    "Duration of a payout sweep run.",
			Buckets: prometheus.DefBuckets,
		}),
		callSettlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "minutepay_call_settlements_total",
			Help: "Call settlements, by result (full, partial).",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordLedgerEntry(kind string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordLedgerReject(reason string) {
	if m == nil {
		return
	}
	m.ledgerRejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordFraudFlag(flagType, severity string) {
	if m == nil {
		return
	}
	m.fraudFlags.WithLabelValues(flagType, severity).Inc()
}

func (m *Metrics) RecordSweepRun(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordSweepPayment(status string) {
	if m == nil {
		return
	}
	m.sweepPayments.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCallSettlement(result string) {
	if m == nil {
		return
	}
	m.callSettlements.WithLabelValues(result).Inc()
}
