package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics holds all application metrics for the protest engine.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Property lookups
	PropertyLookupsTotal   CounterVec
	PropertyLookupDuration HistogramVec

	// Comparable analysis
	AnalysisRunsTotal      CounterVec
	AnalysisRunDuration    HistogramVec
	ComparablesPerAnalysis HistogramVec
	ExcludedPerAnalysis    HistogramVec

	// Valuation
	ValuationsTotal      CounterVec
	MedianValueDollars   HistogramVec
	SavingsDollars       HistogramVec
	AdjustmentRejections CounterVec

	// Workflow
	SessionsStartedTotal CounterVec
	StageTransitions     CounterVec
	TransitionRejections CounterVec
	ActiveSessions       GaugeVec

	// Deductions
	DeductionsAddedTotal CounterVec
	EvidenceUploadsTotal CounterVec

	// Reports
	ReportsGeneratedTotal  CounterVec
	ReportRenderDuration   HistogramVec

	// Infrastructure
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessagePublishTotal    CounterVec
	MessageProcessDuration HistogramVec

	// System health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default buckets
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultAnalysisDurationBuckets = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultDollarBuckets       = []float64{1000, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000}
	DefaultCountBuckets        = []float64{0, 1, 2, 3, 5, 8, 13, 21}
)

// NewAppMetrics registers all metrics and returns the AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Property
	m.PropertyLookupsTotal = collector.RegisterCounter("property_lookups_total", "Property lookups", "source", "status")
	m.PropertyLookupDuration = collector.RegisterHistogram("property_lookup_duration_seconds", "Property lookup duration", DefaultHTTPDurationBuckets, "source")

	// Analysis
	m.AnalysisRunsTotal = collector.RegisterCounter("analysis_runs_total", "Comparable analysis runs", "status")
	m.AnalysisRunDuration = collector.RegisterHistogram("analysis_run_duration_seconds", "Comparable analysis duration", DefaultAnalysisDurationBuckets, "status")
	m.ComparablesPerAnalysis = collector.RegisterHistogram("comparables_per_analysis", "Accepted comparables per analysis", DefaultCountBuckets)
	m.ExcludedPerAnalysis = collector.RegisterHistogram("excluded_per_analysis", "Excluded properties per analysis", DefaultCountBuckets)

	// Valuation
	m.ValuationsTotal = collector.RegisterCounter("valuations_total", "Median valuations computed", "baseline", "status")
	m.MedianValueDollars = collector.RegisterHistogram("median_value_dollars", "Computed median assessment value", DefaultDollarBuckets, "baseline")
	m.SavingsDollars = collector.RegisterHistogram("potential_savings_dollars", "Potential savings per valuation", DefaultDollarBuckets, "baseline")
	m.AdjustmentRejections = collector.RegisterCounter("market_adjustment_rejections_total", "Market adjustment rates rejected as out of range")

	// Workflow
	m.SessionsStartedTotal = collector.RegisterCounter("sessions_started_total", "Protest sessions started")
	m.StageTransitions = collector.RegisterCounter("stage_transitions_total", "Workflow stage transitions", "from", "to")
	m.TransitionRejections = collector.RegisterCounter("stage_transition_rejections_total", "Rejected workflow transitions", "from", "to", "reason")
	m.ActiveSessions = collector.RegisterGauge("active_sessions", "Sessions not yet finalized", "stage")

	// Deductions
	m.DeductionsAddedTotal = collector.RegisterCounter("deductions_added_total", "Deductions added to ledgers", "category")
	m.EvidenceUploadsTotal = collector.RegisterCounter("evidence_uploads_total", "Evidence files uploaded", "kind", "status")

	// Reports
	m.ReportsGeneratedTotal = collector.RegisterCounter("reports_generated_total", "Reports generated", "status")
	m.ReportRenderDuration = collector.RegisterHistogram("report_render_duration_seconds", "Report render duration", DefaultAnalysisDurationBuckets)

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessagePublishTotal = collector.RegisterCounter("mq_publish_total", "Messages published", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")

	// System health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_code")

	return m
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if metrics == nil {
		return
	}
	status := fmt.Sprintf("%d", statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordPropertyLookup(metrics *AppMetrics, source string, err error, duration time.Duration) {
	if metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.PropertyLookupsTotal.WithLabelValues(source, status).Inc()
	metrics.PropertyLookupDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordAnalysisRun(metrics *AppMetrics, accepted, excluded int, err error, duration time.Duration) {
	if metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.AnalysisRunsTotal.WithLabelValues(status).Inc()
	metrics.AnalysisRunDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		metrics.ComparablesPerAnalysis.WithLabelValues().Observe(float64(accepted))
		metrics.ExcludedPerAnalysis.WithLabelValues().Observe(float64(excluded))
	}
}

func RecordValuation(metrics *AppMetrics, baseline string, median, savings float64, err error) {
	if metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.ValuationsTotal.WithLabelValues(baseline, status).Inc()
	if err == nil {
		metrics.MedianValueDollars.WithLabelValues(baseline).Observe(median)
		metrics.SavingsDollars.WithLabelValues(baseline).Observe(savings)
	}
}

func RecordStageTransition(metrics *AppMetrics, from, to string, rejectedReason string) {
	if metrics == nil {
		return
	}
	if rejectedReason != "" {
		metrics.TransitionRejections.WithLabelValues(from, to, rejectedReason).Inc()
		return
	}
	metrics.StageTransitions.WithLabelValues(from, to).Inc()
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if metrics == nil {
		return
	}
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordError(metrics *AppMetrics, component, errorCode string) {
	if metrics == nil {
		return
	}
	metrics.ErrorsTotal.WithLabelValues(component, errorCode).Inc()
}
