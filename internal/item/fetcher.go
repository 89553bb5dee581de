// Package item はGitHub Projects v2から未分類アイテムを取得する。
package item

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/hitoshi/argonath/internal/metrics"
	"github.com/hitoshi/argonath/internal/model"
	"github.com/hitoshi/argonath/internal/telemetry"
)

const (
	// PageSize は1回のGraphQLクエリで取得するアイテム数。GitHubの上限値。
	PageSize = 100

	// DefaultTaskTypeField は分類に使うプロジェクトフィールド名の既定値。
	DefaultTaskTypeField = "Task Type"

	defaultAPIBaseURL     = "https://api.github.com"
	defaultRequestTimeout = 10 * time.Second

	// maxResponseSize は1ページ分のレスポンスの読み込み上限（10MB）。
	maxResponseSize = 10 << 20

	// contentTypeIssue は出力対象とするcontentの種類。
	contentTypeIssue = "Issue"
)

// 失敗理由。メトリクスのラベルとして使う。
const (
	reasonCanceled       = "canceled"
	reasonTransport      = "transport"
	reasonHTTPStatus     = "http_status"
	reasonDecode         = "decode"
	reasonMissingCursor  = "missing_cursor"
	reasonRepeatedCursor = "repeated_cursor"
)

// ItemFetcher は未分類アイテム取得のインターフェース。
type ItemFetcher interface {
	FetchUnmappedItems(ctx context.Context, org string, projectNumber int, accessToken string) ([]model.Item, error)
}

// FetcherConfig はFetcherの設定。
type FetcherConfig struct {
	// APIBaseURL はGitHub REST APIのベースURL。GraphQLエンドポイントはここから導出する。
	APIBaseURL string
	// TaskTypeField は分類済みかどうかを判定するプロジェクトフィールド名。
	TaskTypeField string
	HTTPClient    *http.Client
	// Timeout は1ページの取得にかける最大時間。
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector
}

// Fetcher はカーソルページネーションでプロジェクトの全アイテムを走査し、
// 分類されていないIssueだけを返す。
type Fetcher struct {
	endpoint      string
	taskTypeField string
	httpClient    *http.Client
	timeout       time.Duration
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
}

// NewFetcher はFetcherを生成する。
func NewFetcher(config FetcherConfig) *Fetcher {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.TaskTypeField == "" {
		config.TaskTypeField = DefaultTaskTypeField
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}

	return &Fetcher{
		endpoint:      GraphQLEndpoint(config.APIBaseURL),
		taskTypeField: config.TaskTypeField,
		httpClient:    config.HTTPClient,
		timeout:       config.Timeout,
		logger:        config.Logger,
		metrics:       config.Metrics,
	}
}

// GraphQLEndpoint はREST APIのベースURLからGraphQLエンドポイントを導出する。
// GitHub Enterpriseでは /api/v3 に対して /api/graphql となる。
func GraphQLEndpoint(apiBaseURL string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	if strings.HasSuffix(base, "/api/v3") {
		return strings.TrimSuffix(base, "/v3") + "/graphql"
	}
	return base + "/graphql"
}

// FetchUnmappedItems はプロジェクトの全ページを順に取得し、未分類のIssueを返す。
// 1ページでも取得に失敗した場合は途中までの結果を捨ててエラーを返す。
// 結果が0件の場合も空スライス（非nil）を返す。
func (f *Fetcher) FetchUnmappedItems(ctx context.Context, org string, projectNumber int, accessToken string) ([]model.Item, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "item.fetch_unmapped_items",
		trace.WithAttributes(
			attribute.String("github.org", org),
			attribute.Int("github.project_number", projectNumber),
		),
	)
	defer span.End()

	start := time.Now()
	results := []model.Item{}
	var cursor *string
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, f.fail(span, reasonCanceled, fmt.Errorf("%w: fetch aborted: %w", model.ErrFetchFailure, err))
		}

		resp, err := f.fetchPage(ctx, queryVariables{
			Org:           org,
			Number:        projectNumber,
			First:         PageSize,
			After:         cursor,
			TaskTypeField: f.taskTypeField,
		}, accessToken, pages+1)
		if err != nil {
			return nil, f.fail(span, failureReason(err), err)
		}
		pages++
		f.metrics.RecordPageFetched()

		conn := resp.items()
		if conn == nil {
			// 権限不足や存在しないプロジェクトでは data の途中が null になる。
			// 空ページとして扱い、ループを終える。
			f.metrics.RecordShapeAnomaly()
			f.logger.WarnContext(ctx, "graphql response missing project items",
				slog.String("org", org),
				slog.Int("project_number", projectNumber),
				slog.Int("page", pages),
				slog.Any("graphql_errors", resp.errorMessages()),
			)
			break
		}

		for _, node := range conn.Nodes {
			if it, ok := unmappedItem(node); ok {
				results = append(results, it)
			}
		}

		if !conn.PageInfo.HasNextPage {
			break
		}

		next := conn.PageInfo.EndCursor
		if next == nil || *next == "" {
			return nil, f.fail(span, reasonMissingCursor,
				fmt.Errorf("%w: hasNextPage without endCursor on page %d", model.ErrFetchFailure, pages))
		}
		if cursor != nil && *cursor == *next {
			return nil, f.fail(span, reasonRepeatedCursor,
				fmt.Errorf("%w: cursor did not advance on page %d", model.ErrFetchFailure, pages))
		}
		cursor = next
	}

	f.metrics.RecordItemsReturned(len(results))
	f.metrics.RecordFetchLatency(time.Since(start))
	span.SetAttributes(
		attribute.Int("item.pages", pages),
		attribute.Int("item.count", len(results)),
	)

	f.logger.InfoContext(ctx, "project items fetched",
		slog.String("org", org),
		slog.Int("project_number", projectNumber),
		slog.Int("pages", pages),
		slog.Int("items_count", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return results, nil
}

// unmappedItem はノードが出力対象であればItemに変換する。
// 分類済み、Issue以外、作者不明のノードは除外する。
func unmappedItem(node *itemNode) (model.Item, bool) {
	if node == nil || node.TaskType != nil {
		return model.Item{}, false
	}
	c := node.Content
	if c == nil || c.Typename != contentTypeIssue {
		return model.Item{}, false
	}
	if c.Author == nil || c.Author.Login == "" {
		return model.Item{}, false
	}
	return model.Item{
		Title:  c.Title,
		Author: c.Author.Login,
		URL:    c.URL,
	}, true
}

// pageError は1ページの取得失敗とその理由を表す。
type pageError struct {
	reason string
	err    error
}

func (e *pageError) Error() string { return e.err.Error() }
func (e *pageError) Unwrap() error { return e.err }

func failureReason(err error) string {
	var pe *pageError
	if errors.As(err, &pe) {
		return pe.reason
	}
	return reasonTransport
}

// fetchPage はGraphQL APIに1ページ分のクエリを送信する。リトライは行わない。
func (f *Fetcher) fetchPage(ctx context.Context, vars queryVariables, accessToken string, page int) (*graphqlResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "item.fetch_page",
		trace.WithAttributes(attribute.Int("item.page", page)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := json.Marshal(graphqlRequest{Query: unmappedItemsQuery, Variables: vars})
	if err != nil {
		return nil, &pageError{reasonDecode, fmt.Errorf("%w: failed to encode query: %w", model.ErrFetchFailure, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &pageError{reasonTransport, fmt.Errorf("%w: failed to create request: %w", model.ErrFetchFailure, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, f.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	resp, err := client.Do(req)
	if err != nil {
		reason := reasonTransport
		if ctx.Err() != nil {
			reason = reasonCanceled
		}
		return nil, &pageError{reason, fmt.Errorf("%w: graphql request failed: %w", model.ErrFetchFailure, err)}
	}
	defer resp.Body.Close()

	f.metrics.RecordGraphQLStatus(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, &pageError{reasonHTTPStatus, fmt.Errorf("%w: graphql request returned status %d", model.ErrFetchFailure, resp.StatusCode)}
	}

	var out graphqlResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, &pageError{reasonDecode, fmt.Errorf("%w: failed to decode graphql response: %w", model.ErrFetchFailure, err)}
	}

	return &out, nil
}

// fail は失敗をメトリクス、スパン、ログに記録してerrをそのまま返す。
func (f *Fetcher) fail(span trace.Span, reason string, err error) error {
	f.metrics.RecordFetchFailure(reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	f.logger.Error("project items fetch failed",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return err
}

// compile-time interface check
var _ ItemFetcher = (*Fetcher)(nil)
