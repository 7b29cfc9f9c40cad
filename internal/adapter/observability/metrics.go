package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		},
		[]string{"route", "method"},
	)

	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_requests_total",
			Help: "Total number of model calls by provider and outcome code",
		},
		[]string{"provider", "outcome"},
	)
	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "model_request_duration_seconds",
			Help:    "Model call duration in seconds, retries included",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
		},
		[]string{"provider"},
	)
	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_tokens_total",
			Help: "Tokens sent to and received from the model",
		},
		[]string{"model", "kind"},
	)

	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Evaluation requests by rubric and outcome",
		},
		[]string{"rubric", "outcome"},
	)
	EvaluationScorePercent = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_score_percent",
			Help:    "Distribution of aggregate scores on the 0-100 scale",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"rubric"},
	)
	CompanyUpsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_upserts_total",
			Help: "Company upserts by result (inserted or updated)",
		},
		[]string{"result"},
	)

	QueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_total",
			Help: "Queue messages by topic and result",
		},
		[]string{"topic", "result"},
	)
	MaintenanceRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_rows_total",
			Help: "Rows touched by background maintenance tasks",
		},
		[]string{"task"},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(ModelRequestsTotal)
		prometheus.MustRegister(ModelRequestDuration)
		prometheus.MustRegister(ModelTokensTotal)
		prometheus.MustRegister(EvaluationsTotal)
		prometheus.MustRegister(EvaluationScorePercent)
		prometheus.MustRegister(CompanyUpsertsTotal)
		prometheus.MustRegister(QueueMessagesTotal)
		prometheus.MustRegister(MaintenanceRowsTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveModelCall records one logical model call. An empty outcome means success.
func ObserveModelCall(provider, outcome string, took time.Duration) {
	if outcome == "" {
		outcome = "OK"
	}
	ModelRequestsTotal.WithLabelValues(provider, outcome).Inc()
	ModelRequestDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// RecordTokens adds prompt or completion token counts for model.
func RecordTokens(model, kind string, n int) {
	if n <= 0 {
		return
	}
	ModelTokensTotal.WithLabelValues(model, kind).Add(float64(n))
}

// RecordEvaluation counts an evaluation outcome (cached, completed, failed, conflict).
func RecordEvaluation(rubric, outcome string) {
	EvaluationsTotal.WithLabelValues(rubric, outcome).Inc()
}

// ObserveScore records a completed evaluation's aggregate on the 0-100 scale.
func ObserveScore(rubric string, percent int) {
	if percent >= 0 && percent <= 100 {
		EvaluationScorePercent.WithLabelValues(rubric).Observe(float64(percent))
	}
}

// RecordCompanyUpsert counts company writes by whether a row was inserted.
func RecordCompanyUpsert(inserted bool) {
	result := "updated"
	if inserted {
		result = "inserted"
	}
	CompanyUpsertsTotal.WithLabelValues(result).Inc()
}

// RecordQueueMessage counts produced or consumed messages.
func RecordQueueMessage(topic, result string) {
	QueueMessagesTotal.WithLabelValues(topic, result).Inc()
}

// RecordMaintenance adds the number of rows a maintenance task changed.
func RecordMaintenance(task string, n int64) {
	if n > 0 {
		MaintenanceRowsTotal.WithLabelValues(task).Add(float64(n))
	}
}
