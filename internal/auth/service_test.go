package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/argonath/internal/model"
	"github.com/hitoshi/argonath/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	getOrCreateFn func(ctx context.Context, githubLogin string) (*model.User, error)
	findByIDFn    func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) GetOrCreate(ctx context.Context, githubLogin string) (*model.User, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, githubLogin)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn   func(ctx context.Context, params repository.CreateSessionParams) (*model.Session, error)
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, params repository.CreateSessionParams) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return nil, nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockOAuthClient struct {
	loginURLFn      func(clientID string) string
	exchangeCodeFn  func(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error)
	fetchIdentityFn func(ctx context.Context, accessToken string) (*Identity, error)
}

func (m *mockOAuthClient) LoginURL(clientID string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(clientID)
	}
	return ""
}

func (m *mockOAuthClient) ExchangeCode(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, clientID, code, clientSecret)
	}
	return nil, nil
}

func (m *mockOAuthClient) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if m.fetchIdentityFn != nil {
		return m.fetchIdentityFn(ctx, accessToken)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthClient = (*mockOAuthClient)(nil)

var testServiceConfig = ServiceConfig{ClientID: "cid", ClientSecret: "csecret"}

// happyPathMocks は abc123 → AT1/RT1 → octocat → user 1 → sid-1 の流れを返すモック一式。
func happyPathMocks(t *testing.T, expiresIn int64) (*mockOAuthClient, *mockUserRepo, *mockSessionRepo, *[]repository.CreateSessionParams) {
	t.Helper()

	var created []repository.CreateSessionParams

	oauth := &mockOAuthClient{
		exchangeCodeFn: func(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error) {
			if clientID != "cid" || code != "abc123" || clientSecret != "csecret" {
				t.Errorf("ExchangeCode(%q, %q, %q), want (cid, abc123, csecret)", clientID, code, clientSecret)
			}
			return &TokenPair{AccessToken: "AT1", RefreshToken: "RT1", ExpiresIn: expiresIn}, nil
		},
		fetchIdentityFn: func(ctx context.Context, accessToken string) (*Identity, error) {
			if accessToken != "AT1" {
				t.Errorf("FetchIdentity token = %q, want AT1", accessToken)
			}
			return &Identity{Login: "octocat"}, nil
		},
	}
	users := &mockUserRepo{
		getOrCreateFn: func(ctx context.Context, githubLogin string) (*model.User, error) {
			if githubLogin != "octocat" {
				t.Errorf("GetOrCreate login = %q, want octocat", githubLogin)
			}
			return &model.User{ID: 1, GitHubLogin: githubLogin}, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, params repository.CreateSessionParams) (*model.Session, error) {
			created = append(created, params)
			return &model.Session{
				ID:           "sid-1",
				UserID:       params.UserID,
				AccessToken:  params.AccessToken,
				RefreshToken: params.RefreshToken,
				ExpiresAt:    params.ExpiresAt,
			}, nil
		},
	}
	return oauth, users, sessions, &created
}

// --- テスト ---

func TestLoginURL_DelegatesWithClientID(t *testing.T) {
	oauth := &mockOAuthClient{
		loginURLFn: func(clientID string) string {
			return "https://github.com/login/oauth/authorize?client_id=" + clientID
		},
	}
	svc := NewService(oauth, nil, nil, testServiceConfig)

	want := "https://github.com/login/oauth/authorize?client_id=cid"
	if got := svc.LoginURL(); got != want {
		t.Errorf("LoginURL() = %q, want %q", got, want)
	}
}

func TestHandleCallback_Success_CreatesSession(t *testing.T) {
	oauth, users, sessions, created := happyPathMocks(t, 28800)
	svc := NewService(oauth, users, sessions, testServiceConfig)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	session, err := svc.HandleCallback(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if session.ID != "sid-1" {
		t.Errorf("session ID = %q, want %q", session.ID, "sid-1")
	}
	if len(*created) != 1 {
		t.Fatalf("sessions created = %d, want 1", len(*created))
	}

	params := (*created)[0]
	if params.UserID != 1 {
		t.Errorf("UserID = %d, want 1", params.UserID)
	}
	if params.AccessToken != "AT1" || params.RefreshToken != "RT1" {
		t.Errorf("tokens = %q/%q, want AT1/RT1", params.AccessToken, params.RefreshToken)
	}
	wantExpiry := now.Add(28800 * time.Second)
	if params.ExpiresAt == nil || !params.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", params.ExpiresAt, wantExpiry)
	}
}

func TestHandleCallback_NoExpiresIn_LeavesExpiryNil(t *testing.T) {
	for _, expiresIn := range []int64{0, -5} {
		t.Run(fmt.Sprintf("expires_in=%d", expiresIn), func(t *testing.T) {
			oauth, users, sessions, created := happyPathMocks(t, expiresIn)
			svc := NewService(oauth, users, sessions, testServiceConfig)

			if _, err := svc.HandleCallback(context.Background(), "abc123"); err != nil {
				t.Fatalf("HandleCallback() error = %v", err)
			}
			if (*created)[0].ExpiresAt != nil {
				t.Errorf("ExpiresAt = %v, want nil", (*created)[0].ExpiresAt)
			}
		})
	}
}

func TestHandleCallback_ExchangeFails_StopsBeforeStore(t *testing.T) {
	oauth, users, sessions, created := happyPathMocks(t, 0)
	oauth.exchangeCodeFn = func(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error) {
		return nil, fmt.Errorf("%w: bad_verification_code", model.ErrOAuthFailure)
	}
	identityCalled := false
	oauth.fetchIdentityFn = func(ctx context.Context, accessToken string) (*Identity, error) {
		identityCalled = true
		return nil, nil
	}
	userCalled := false
	users.getOrCreateFn = func(ctx context.Context, githubLogin string) (*model.User, error) {
		userCalled = true
		return nil, nil
	}

	svc := NewService(oauth, users, sessions, testServiceConfig)
	session, err := svc.HandleCallback(context.Background(), "bad")

	if !errors.Is(err, model.ErrOAuthFailure) {
		t.Fatalf("expected ErrOAuthFailure, got %v", err)
	}
	if session != nil {
		t.Error("expected nil session")
	}
	if identityCalled || userCalled || len(*created) != 0 {
		t.Error("later steps should not run after exchange failure")
	}
}

func TestHandleCallback_IdentityFails_NoUserOrSession(t *testing.T) {
	oauth, users, sessions, created := happyPathMocks(t, 0)
	oauth.fetchIdentityFn = func(ctx context.Context, accessToken string) (*Identity, error) {
		return nil, fmt.Errorf("%w: status 401", model.ErrOAuthFailure)
	}
	userCalled := false
	users.getOrCreateFn = func(ctx context.Context, githubLogin string) (*model.User, error) {
		userCalled = true
		return nil, nil
	}

	svc := NewService(oauth, users, sessions, testServiceConfig)
	_, err := svc.HandleCallback(context.Background(), "abc123")

	if !errors.Is(err, model.ErrOAuthFailure) {
		t.Fatalf("expected ErrOAuthFailure, got %v", err)
	}
	if userCalled || len(*created) != 0 {
		t.Error("no user or session should be created after identity failure")
	}
}

func TestHandleCallback_UserStoreFails_ReturnsStoreFailure(t *testing.T) {
	oauth, users, sessions, created := happyPathMocks(t, 0)
	users.getOrCreateFn = func(ctx context.Context, githubLogin string) (*model.User, error) {
		return nil, fmt.Errorf("%w: connection refused", model.ErrStoreFailure)
	}

	svc := NewService(oauth, users, sessions, testServiceConfig)
	_, err := svc.HandleCallback(context.Background(), "abc123")

	if !errors.Is(err, model.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if len(*created) != 0 {
		t.Error("session should not be created after user store failure")
	}
}

func TestHandleCallback_SessionStoreFails_ReturnsStoreFailure(t *testing.T) {
	oauth, users, _, _ := happyPathMocks(t, 0)
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, params repository.CreateSessionParams) (*model.Session, error) {
			return nil, fmt.Errorf("%w: disk full", model.ErrStoreFailure)
		},
	}

	svc := NewService(oauth, users, sessions, testServiceConfig)
	session, err := svc.HandleCallback(context.Background(), "abc123")

	if !errors.Is(err, model.ErrStoreFailure) {
		t.Fatalf("expected ErrStoreFailure, got %v", err)
	}
	if session != nil {
		t.Error("expected nil session")
	}
}

func TestGetCurrentUser(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			if id == 1 {
				return &model.User{ID: 1, GitHubLogin: "octocat"}, nil
			}
			return nil, nil
		},
	}
	svc := NewService(&mockOAuthClient{}, users, nil, testServiceConfig)

	user, err := svc.GetCurrentUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetCurrentUser(1) error = %v", err)
	}
	if user.GitHubLogin != "octocat" {
		t.Errorf("GitHubLogin = %q, want octocat", user.GitHubLogin)
	}

	if _, err := svc.GetCurrentUser(context.Background(), 2); err == nil {
		t.Error("expected error for unknown user")
	}
}
