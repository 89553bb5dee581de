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
// OAuthクライアント、セッションガード、アイテムフェッチャーから利用する。
type MetricsCollector interface {
	RecordOAuthRequest(step, outcome string)
	RecordSessionRejection(reason string)
	RecordPageFetched()
	RecordFetchFailure(reason string)
	RecordShapeAnomaly()
	RecordItemsReturned(count int)
	RecordFetchLatency(duration time.Duration)
	RecordGraphQLStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	oauthRequests     *prometheus.CounterVec
	sessionRejections *prometheus.CounterVec
	pagesFetched      prometheus.Counter
	fetchFail         *prometheus.CounterVec
	shapeAnomalies    prometheus.Counter
	itemsReturned     prometheus.Counter
	fetchLatency      prometheus.Histogram
	graphqlStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		oauthRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argonath_oauth_requests_total",
			Help: "GitHub OAuthへのリクエスト数（step: token/user, outcome: success/failure）",
		}, []string{"step", "outcome"}),
		sessionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argonath_session_rejections_total",
			Help: "セッションガードで未認証と判定したリクエスト数（理由別）",
		}, []string{"reason"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argonath_graphql_pages_fetched_total",
			Help: "取得に成功したGraphQLページの合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argonath_fetch_failures_total",
			Help: "アイテム取得失敗の合計数（理由別）",
		}, []string{"reason"}),
		shapeAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argonath_graphql_shape_anomalies_total",
			Help: "期待するフィールドが欠けたGraphQLレスポンスの数",
		}),
		itemsReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argonath_items_returned_total",
			Help: "クライアントに返した未分類アイテムの合計数",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "argonath_fetch_latency_seconds",
			Help:    "全ページ取得にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		graphqlStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argonath_graphql_http_status_total",
			Help: "GraphQL APIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.oauthRequests,
		c.sessionRejections,
		c.pagesFetched,
		c.fetchFail,
		c.shapeAnomalies,
		c.itemsReturned,
		c.fetchLatency,
		c.graphqlStatus,
	)

	return c
}

// RecordOAuthRequest はOAuthリクエストの結果を記録する。
func (c *Collector) RecordOAuthRequest(step, outcome string) {
	c.oauthRequests.WithLabelValues(step, outcome).Inc()
}

// RecordSessionRejection は未認証と判定した理由を記録する。
func (c *Collector) RecordSessionRejection(reason string) {
	c.sessionRejections.WithLabelValues(reason).Inc()
}

// RecordPageFetched はGraphQLページ取得成功を記録する。
func (c *Collector) RecordPageFetched() {
	c.pagesFetched.Inc()
}

// RecordFetchFailure はアイテム取得失敗を記録する。
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordShapeAnomaly はレスポンス形状の異常を記録する。
func (c *Collector) RecordShapeAnomaly() {
	c.shapeAnomalies.Inc()
}

// RecordItemsReturned は返却したアイテム数を記録する。
func (c *Collector) RecordItemsReturned(count int) {
	c.itemsReturned.Add(float64(count))
}

// RecordFetchLatency はアイテム取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordGraphQLStatus はGraphQL APIのHTTPステータスコードを記録する。
func (c *Collector) RecordGraphQLStatus(statusCode int) {
	c.graphqlStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
// メトリクスを注入しないテストやコンポーネントのデフォルトとして使う。
type Nop struct{}

func (Nop) RecordOAuthRequest(string, string) {}
func (Nop) RecordSessionRejection(string) {}
func (Nop) RecordPageFetched() {}
func (Nop) RecordFetchFailure(string) {}
func (Nop) RecordShapeAnomaly() {}
func (Nop) RecordItemsReturned(int) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordGraphQLStatus(int) {}

// Handler はgathererの内容を返すPrometheusスクレイプ用ハンドラー。
// 収集エラーがあっても取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
