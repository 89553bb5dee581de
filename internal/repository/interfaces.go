// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/argonath/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// GetOrCreate はGitHubログイン名でユーザーをupsertし、保存済みのユーザーを返す。
	// 同じログイン名で何度呼んでも同一IDのユーザーが返る。
	GetOrCreate(ctx context.Context, githubLogin string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。IDはストレージ側で採番する。
	Create(ctx context.Context, params CreateSessionParams) (*model.Session, error)

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	// 有効期限による絞り込みは行わない。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// CreateSessionParams はセッション作成時の入力。
type CreateSessionParams struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
