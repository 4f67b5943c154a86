// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration)
	RecordMenuPublished()
	RecordSessionCreated(method string)
	RecordLogoFetchFailure(reason string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	menusPublished  prometheus.Counter
	sessionsCreated *prometheus.CounterVec
	logoFetchFail   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "menuya_http_requests_total",
			Help: "HTTPリクエストの合計数（メソッド・パス・ステータス別）",
		}, []string{"method", "path", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "menuya_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		menusPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "menuya_menus_published_total",
			Help: "メニュー公開の合計数",
		}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "menuya_sessions_created_total",
			Help: "発行されたセッションの合計数（認証方式別）",
		}, []string{"method"}),
		logoFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "menuya_logo_fetch_fail_total",
			Help: "ロゴ取得失敗の合計数（理由別）",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.menusPublished,
		c.sessionsCreated,
		c.logoFetchFail,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの完了を記録する。
// pathにはルートパターン（/api/menus/{menuID} 等）を渡し、
// 生パスによるラベルの無限増殖を避ける。
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMenuPublished はメニュー公開を記録する。
func (c *Collector) RecordMenuPublished() {
	c.menusPublished.Inc()
}

// RecordSessionCreated はセッション発行を記録する。
// methodは "register", "login", "google" のいずれか。
func (c *Collector) RecordSessionCreated(method string) {
	c.sessionsCreated.WithLabelValues(method).Inc()
}

// RecordLogoFetchFailure はロゴ取得失敗を記録する。
func (c *Collector) RecordLogoFetchFailure(reason string) {
	c.logoFetchFail.WithLabelValues(reason).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
