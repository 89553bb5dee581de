package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/argonath/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON本文。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// 失敗の種別。ログのerror_kind属性に使う。
const (
	FailureKindOAuth    = "oauth"
	FailureKindFetch    = "fetch"
	FailureKindStore    = "store"
	FailureKindInternal = "internal"
)

// FailureKind はエラーチェーンに含まれるセンチネルから失敗の種別を判定する。
func FailureKind(err error) string {
	switch {
	case errors.Is(err, model.ErrOAuthFailure):
		return FailureKindOAuth
	case errors.Is(err, model.ErrFetchFailure):
		return FailureKindFetch
	case errors.Is(err, model.ErrStoreFailure):
		return FailureKindStore
	default:
		return FailureKindInternal
	}
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は500 REQUEST_FAILEDを書き込む。本文は失敗の種別によらず同一。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewRequestFailedError())
}

// WriteFailure は失敗を種別付きでログに記録し、500 REQUEST_FAILEDを返す。
// 原因はログにのみ残り、クライアントには届かない。
func WriteFailure(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args,
		slog.String("error_kind", FailureKind(err)),
		slog.String("error", err.Error()),
	)
	for _, a := range attrs {
		args = append(args, a)
	}
	slog.ErrorContext(ctx, msg, args...)
	WriteInternalServerError(w)
}
