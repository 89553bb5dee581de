package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/argonath/internal/middleware"
	"github.com/hitoshi/argonath/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetCurrentUser(ctx context.Context, userID int64) (*model.User, error)
}

// UserHandler はログイン中ユーザーのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// currentUserResponse はログイン中ユーザーのレスポンス。
type currentUserResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Me はログイン中のユーザー情報を返す。
// GET /
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusTemporaryRedirect)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		middleware.WriteFailure(r.Context(), w, "failed to get current user", err,
			slog.Int64("user_id", userID),
		)
		return
	}

	writeJSON(w, http.StatusOK, currentUserResponse{
		ID:    user.ID,
		Login: user.GitHubLogin,
	})
}
