// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 失敗の種別。呼び出し元はerrors.Isで判定する。
var (
	// ErrOAuthFailure はOAuthプロバイダーとのやり取りに失敗したことを表す。
	ErrOAuthFailure = errors.New("oauth failure")
	// ErrFetchFailure はGraphQL APIからのアイテム取得に失敗したことを表す。
	ErrFetchFailure = errors.New("fetch failure")
	// ErrStoreFailure はストレージ操作に失敗したことを表す。
	ErrStoreFailure = errors.New("store failure")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeRequestFailed    = "REQUEST_FAILED"
	ErrCodeInvalidProjectID = "INVALID_PROJECT_ID"
	ErrCodeRateLimited      = "RATE_LIMIT_EXCEEDED"
)

// NewRequestFailedError は内部の詳細を含まない汎用的な失敗エラーを生成する。
// OAuth、フェッチ、ストレージのいずれの失敗もこの形でクライアントに返す。
func NewRequestFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestFailed,
		Message:  "Request failed",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidProjectIDError は無効なプロジェクト番号エラーを生成する。
func NewInvalidProjectIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProjectID,
		Message:  fmt.Sprintf("無効なプロジェクト番号です: %s", raw),
		Category: "validation",
		Action:   "プロジェクト番号には正の整数を指定してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
