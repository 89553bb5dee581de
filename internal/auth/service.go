// Package auth はGitHub OAuthによるログインとセッション発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/argonath/internal/model"
	"github.com/hitoshi/argonath/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ClientID     string
	ClientSecret string
}

// Service はログイン完了フロー（コード交換→ユーザー特定→セッション発行）を提供する。
type Service struct {
	oauth       OAuthClient
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthClient,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// LoginURL はGitHubの認可画面へのURLを返す。
func (s *Service) LoginURL() string {
	return s.oauth.LoginURL(s.config.ClientID)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// いずれかの段階で失敗した時点で中断し、作成済みのユーザーはそのまま残す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換
	tokens, err := s.oauth.ExchangeCode(ctx, s.config.ClientID, code, s.config.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. トークンの持ち主を取得
	identity, err := s.oauth.FetchIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch identity: %w", err)
	}

	// 3. ログイン名でユーザーをupsert
	user, err := s.userRepo.GetOrCreate(ctx, identity.Login)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	// 4. セッションを発行
	var expiresAt *time.Time
	if tokens.ExpiresIn > 0 {
		t := s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	session, err := s.sessionRepo.Create(ctx, repository.CreateSessionParams{
		UserID:       user.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.InfoContext(ctx, "user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("github_login", user.GitHubLogin),
	)

	return session, nil
}

// GetCurrentUser はセッションのユーザーIDからユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %d", userID)
	}
	return user, nil
}
