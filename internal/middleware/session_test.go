package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/argonath/internal/metrics"
	"github.com/hitoshi/argonath/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
	calls      int
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.calls++
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

const validSessionID = "6f1c1f2e-3a4b-4c5d-8e9f-0a1b2c3d4e5f"

func sessionRepoWith(session *model.Session) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == session.ID {
				return session, nil
			}
			return nil, nil
		},
	}
}

func serveGuard(t *testing.T, mw func(http.Handler) http.Handler, cookie *http.Cookie) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/org/acme/project/1", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called
}

func assertRedirectToLogin(t *testing.T, w *httptest.ResponseRecorder, called bool) {
	t.Helper()
	if called {
		t.Error("handler should not be called")
	}
	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("rejection should not set cookies")
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsSession(t *testing.T) {
	repo := sessionRepoWith(&model.Session{ID: validSessionID, UserID: 123, AccessToken: "AT1"})
	mw := NewSessionMiddleware(repo, SessionGuardConfig{})

	var captured *model.Session
	var capturedUserID int64
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		captured, err = SessionFromContext(r.Context())
		if err != nil {
			t.Errorf("SessionFromContext() error = %v", err)
		}
		capturedUserID, err = UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("UserIDFromContext() error = %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: validSessionID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.AccessToken != "AT1" {
		t.Errorf("session = %+v, want access token AT1", captured)
	}
	if capturedUserID != 123 {
		t.Errorf("userID = %d, want 123", capturedUserID)
	}
}

func TestSessionMiddleware_Rejections_AreIndistinguishable(t *testing.T) {
	tests := []struct {
		name       string
		cookie     *http.Cookie
		findErr    error
		wantReason string
		wantLookup bool
	}{
		{name: "Cookieなし", cookie: nil, wantReason: "missing_cookie"},
		{name: "空のCookie", cookie: &http.Cookie{Name: "session", Value: ""}, wantReason: "missing_cookie"},
		{name: "UUIDでない値", cookie: &http.Cookie{Name: "session", Value: "not-a-uuid"}, wantReason: "malformed"},
		{name: "存在しないセッション", cookie: &http.Cookie{Name: "session", Value: "00000000-0000-4000-8000-000000000000"}, wantReason: "not_found", wantLookup: true},
		{name: "ストアエラー", cookie: &http.Cookie{Name: "session", Value: validSessionID}, findErr: model.ErrStoreFailure, wantReason: "store_error", wantLookup: true},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockSessionRepository{
				findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
					if tt.findErr != nil {
						return nil, tt.findErr
					}
					return nil, nil
				},
			}
			reg := prometheus.NewRegistry()
			mw := NewSessionMiddleware(repo, SessionGuardConfig{Metrics: metrics.NewCollector(reg)})

			w, called := serveGuard(t, mw, tt.cookie)
			assertRedirectToLogin(t, w, called)
			bodies = append(bodies, w.Body.String())

			if (repo.calls > 0) != tt.wantLookup {
				t.Errorf("store lookups = %d, wantLookup = %v", repo.calls, tt.wantLookup)
			}
			if got := rejectionCount(t, reg, tt.wantReason); got != 1 {
				t.Errorf("rejections{reason=%s} = %v, want 1", tt.wantReason, got)
			}
		})
	}

	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("response body %d differs: %q vs %q", i, bodies[i], bodies[0])
		}
	}
}

func TestSessionMiddleware_ExpiredSession_EnforcementOff_Passes(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := sessionRepoWith(&model.Session{ID: validSessionID, UserID: 1, ExpiresAt: &past})
	mw := NewSessionMiddleware(repo, SessionGuardConfig{EnforceExpiry: false})

	w, called := serveGuard(t, mw, &http.Cookie{Name: "session", Value: validSessionID})
	if !called {
		t.Fatal("handler should be called when expiry is not enforced")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSessionMiddleware_ExpiredSession_EnforcementOn_Redirects(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	repo := sessionRepoWith(&model.Session{ID: validSessionID, UserID: 1, ExpiresAt: &past})
	reg := prometheus.NewRegistry()
	mw := NewSessionMiddleware(repo, SessionGuardConfig{
		EnforceExpiry: true,
		Metrics:       metrics.NewCollector(reg),
		Now:           func() time.Time { return now },
	})

	w, called := serveGuard(t, mw, &http.Cookie{Name: "session", Value: validSessionID})
	assertRedirectToLogin(t, w, called)
	if got := rejectionCount(t, reg, "expired"); got != 1 {
		t.Errorf("rejections{reason=expired} = %v, want 1", got)
	}
}

func TestSessionMiddleware_EnforcementOn_NoExpiryOrFuture_Passes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	for _, expiresAt := range []*time.Time{nil, &future} {
		repo := sessionRepoWith(&model.Session{ID: validSessionID, UserID: 1, ExpiresAt: expiresAt})
		mw := NewSessionMiddleware(repo, SessionGuardConfig{
			EnforceExpiry: true,
			Now:           func() time.Time { return now },
		})

		_, called := serveGuard(t, mw, &http.Cookie{Name: "session", Value: validSessionID})
		if !called {
			t.Errorf("handler should be called for expiresAt=%v", expiresAt)
		}
	}
}

func TestSessionMiddleware_StoreError_DoesNotLeakCause(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("pq: connection refused to 10.0.0.5")
		},
	}
	mw := NewSessionMiddleware(repo, SessionGuardConfig{})

	w, called := serveGuard(t, mw, &http.Cookie{Name: "session", Value: validSessionID})
	assertRedirectToLogin(t, w, called)
	if body := w.Body.String(); containsAny(body, "pq", "10.0.0.5", "connection") {
		t.Errorf("response body leaks internal error: %q", body)
	}
}

func TestUserIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID in context")
	}
	if _, err := SessionFromContext(context.Background()); err == nil {
		t.Error("expected error for missing session in context")
	}
}

func TestUserIDFromContext_ValidValue_ReturnsUserID(t *testing.T) {
	ctx := ContextWithSession(context.Background(), &model.Session{ID: validSessionID, UserID: 456})
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if userID != 456 {
		t.Errorf("userID = %d, want 456", userID)
	}
}

// --- ヘルパー ---

func rejectionCount(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "argonath_session_rejections_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
