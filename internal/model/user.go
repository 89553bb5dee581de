// Package model はドメインモデルを定義する。
package model

import "time"

// User はGitHubでログインしたユーザーを表す。
// GitHubLoginは一意であり、upsertのキーとなる。
type User struct {
	ID          int64
	GitHubLogin string
	CreatedAt   time.Time
}

// Session はユーザーのログインセッションを表す。
// 作成後に更新されることはなく、作成と参照のみを行う。
type Session struct {
	ID           string
	UserID       int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // プロバイダーが有効期限を返さない場合はnil
	CreatedAt    time.Time
}

// IsExpired はセッションが指定時刻の時点で期限切れかどうかを返す。
// 有効期限を持たないセッションは期限切れにならない。
func (s *Session) IsExpired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}
