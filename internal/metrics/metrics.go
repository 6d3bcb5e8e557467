package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snacktrack_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snacktrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Inventory metrics
	MachinesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_machines_created_total",
			Help: "Total number of machines created",
		},
	)

	SlotUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_slot_updates_total",
			Help: "Total number of slot edits applied",
		},
	)

	Refills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_refills_total",
			Help: "Total number of machine refills",
		},
	)

	SalesRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_sales_recorded_total",
			Help: "Total number of sales recorded",
		},
	)

	UnitsSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_units_sold_total",
			Help: "Total number of units deducted from product stock",
		},
	)

	PartialConsistency = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snacktrack_partial_consistency_total",
			Help: "Multi-document writes that stopped before completing, by reason",
		},
		[]string{"reason"},
	)

	// Alert metrics
	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snacktrack_alerts_sent_total",
			Help: "Push alerts delivered by kind",
		},
		[]string{"kind"},
	)

	AlertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snacktrack_alerts_dropped_total",
			Help: "Alerts dropped because the worker queue was full",
		},
	)

	// Audit metrics
	AllocationDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snacktrack_allocation_drift_products",
			Help: "Products whose stored allocated capacity disagreed with the slots at the last audit",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(MachinesCreated)
	prometheus.MustRegister(SlotUpdates)
	prometheus.MustRegister(Refills)
	prometheus.MustRegister(SalesRecorded)
	prometheus.MustRegister(UnitsSold)
	prometheus.MustRegister(PartialConsistency)
	prometheus.MustRegister(AlertsSent)
	prometheus.MustRegister(AlertsDropped)
	prometheus.MustRegister(AllocationDrift)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
