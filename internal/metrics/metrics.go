package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the service's Prometheus collectors. All recording methods
// are nil-safe so components can run without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	AcceptUnavailable  *prometheus.CounterVec
	AssetLookups       *prometheus.CounterVec
	Refinements        *prometheus.CounterVec
	OutcomesResolved   *prometheus.CounterVec

	ECE            *prometheus.GaugeVec
	Brier          *prometheus.GaugeVec
	FeaturePSI     *prometheus.GaugeVec
	DriftAlerts    *prometheus.CounterVec
	ActiveB0       prometheus.Gauge
	ShadowState    *prometheus.GaugeVec
	Promotions     *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDurationMS *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_evaluations_total",
				Help: "Trade evaluations by fairness method",
			},
			[]string{"method"},
		),
		EvaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradeeval_evaluation_duration_seconds",
				Help:    "End-to-end evaluation latency",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		AcceptUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_acceptance_unavailable_total",
				Help: "Evaluations where the acceptance model declined to predict",
			},
			[]string{"reason"},
		),
		AssetLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_asset_lookups_total",
				Help: "Asset pricing lookups by kind and source",
			},
			[]string{"kind", "source"},
		),
		Refinements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_narrative_refinements_total",
				Help: "Narrative refinement attempts by result",
			},
			[]string{"result"},
		),
		OutcomesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_outcomes_resolved_total",
				Help: "Resolved trade outcomes",
			},
			[]string{"outcome"},
		),
		ECE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeeval_calibration_ece",
				Help: "Expected calibration error of the last scan",
			},
			[]string{"scope"},
		),
		Brier: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeeval_calibration_brier",
				Help: "Brier score of the last scan",
			},
			[]string{"scope"},
		),
		FeaturePSI: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeeval_feature_psi",
				Help: "Population stability index per feature",
			},
			[]string{"feature"},
		),
		DriftAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_drift_alerts_total",
				Help: "Drift alerts raised by severity",
			},
			[]string{"severity"},
		),
		ActiveB0: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeeval_active_intercept",
				Help: "Intercept of the active calibrated weights",
			},
		),
		ShadowState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradeeval_shadow_state",
				Help: "1 for the current shadow intercept state",
			},
			[]string{"state"},
		),
		Promotions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_weight_promotions_total",
				Help: "Calibrated weight promotions by source",
			},
			[]string{"source"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeeval_http_requests_total",
				Help: "HTTP requests by route and status class",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDurationMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeeval_http_duration_ms",
				Help:    "HTTP handler latency in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"route"},
		),
	}

	r.reg.MustRegister(
		r.Evaluations,
		r.EvaluationDuration,
		r.AcceptUnavailable,
		r.AssetLookups,
		r.Refinements,
		r.OutcomesResolved,
		r.ECE,
		r.Brier,
		r.FeaturePSI,
		r.DriftAlerts,
		r.ActiveB0,
		r.ShadowState,
		r.Promotions,
		r.HTTPRequests,
		r.HTTPDurationMS,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.DefaultGatherer
	}
	return r.reg
}

func (r *Registry) ObserveEvaluation(method string, took time.Duration) {
	if r == nil {
		return
	}
	r.Evaluations.WithLabelValues(method).Inc()
	r.EvaluationDuration.Observe(took.Seconds())
}

func (r *Registry) IncUnavailable(reason string) {
	if r == nil {
		return
	}
	r.AcceptUnavailable.WithLabelValues(reason).Inc()
}

func (r *Registry) IncAssetLookup(kind, source string) {
	if r == nil {
		return
	}
	r.AssetLookups.WithLabelValues(kind, source).Inc()
}

func (r *Registry) IncRefinement(result string) {
	if r == nil {
		return
	}
	r.Refinements.WithLabelValues(result).Inc()
}

func (r *Registry) IncOutcome(outcome string) {
	if r == nil {
		return
	}
	r.OutcomesResolved.WithLabelValues(outcome).Inc()
}

func (r *Registry) SetCalibration(scope string, ece, brier float64) {
	if r == nil {
		return
	}
	r.ECE.WithLabelValues(scope).Set(ece)
	r.Brier.WithLabelValues(scope).Set(brier)
}

func (r *Registry) SetFeaturePSI(feature string, psi float64) {
	if r == nil {
		return
	}
	r.FeaturePSI.WithLabelValues(feature).Set(psi)
}

func (r *Registry) IncDriftAlert(severity string) {
	if r == nil {
		return
	}
	r.DriftAlerts.WithLabelValues(severity).Inc()
}

func (r *Registry) SetActiveB0(b0 float64) {
	if r == nil {
		return
	}
	r.ActiveB0.Set(b0)
}

// SetShadowState marks state as current and clears the others.
func (r *Registry) SetShadowState(state string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.ShadowState.WithLabelValues(s).Set(v)
	}
}

func (r *Registry) IncPromotion(source string) {
	if r == nil {
		return
	}
	r.Promotions.WithLabelValues(source).Inc()
}

func (r *Registry) ObserveHTTP(route, method, status string, took time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(route, method, status).Inc()
	r.HTTPDurationMS.WithLabelValues(route).Observe(float64(took.Milliseconds()))
}
