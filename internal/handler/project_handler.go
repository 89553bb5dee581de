package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/argonath/internal/middleware"
	"github.com/hitoshi/argonath/internal/model"
)

// ItemFetcherInterface はプロジェクトハンドラーが必要とするフェッチャーのインターフェース。
type ItemFetcherInterface interface {
	FetchUnmappedItems(ctx context.Context, org string, projectNumber int, accessToken string) ([]model.Item, error)
}

// ProjectHandler はプロジェクトボードのアイテム取得のHTTPハンドラー。
type ProjectHandler struct {
	fetcher ItemFetcherInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(fetcher ItemFetcherInterface) *ProjectHandler {
	return &ProjectHandler{fetcher: fetcher}
}

// ListUnmappedItems はプロジェクトの未分類Issueの一覧をJSON配列で返す。
// GET /org/{org}/project/{id}
func (h *ProjectHandler) ListUnmappedItems(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusTemporaryRedirect)
		return
	}

	org := chi.URLParam(r, "org")
	rawID := chi.URLParam(r, "id")
	number, ok := parseProjectNumber(rawID)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectIDError(rawID))
		return
	}

	items, err := h.fetcher.FetchUnmappedItems(r.Context(), org, number, session.AccessToken)
	if err != nil {
		middleware.WriteFailure(r.Context(), w, "failed to fetch unmapped items", err,
			slog.String("org", org),
			slog.Int("project", number),
		)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// parseProjectNumber はプロジェクト番号を1以上2^31-1以下の整数として解釈する。
func parseProjectNumber(raw string) (int, bool) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
