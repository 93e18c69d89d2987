package auth

import (
	"context"
	"testing"
	"time"

	"github.com/datahub-africa/datahub_pay/internal/config"
	"github.com/datahub-africa/datahub_pay/internal/identity"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "test-access-secret",
		RefreshSecret:   "test-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

func seedUser(t *testing.T, repo identity.Repository) identity.User {
	t.Helper()
	user := identity.User{
		ID:          "user-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	cfg := testConfig()
	repo := identity.NewMemoryRepository()
	user := seedUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if pair.ExpiresIn != int64(cfg.AccessTokenTTL.Seconds()) {
		t.Fatalf("expires_in = %d, want %d", pair.ExpiresIn, int64(cfg.AccessTokenTTL.Seconds()))
	}

	claims, err := ParseAndVerifyHS256(pair.AccessToken, []byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if sub, _ := claims["sub"].(string); sub != user.ID {
		t.Fatalf("sub = %q, want %q", sub, user.ID)
	}

	if _, err := ParseAndVerifyHS256(pair.AccessToken, []byte("wrong-secret")); err == nil {
		t.Fatal("expected verification to fail with the wrong secret")
	}
}

func TestRefreshReturnsNewAccessToken(t *testing.T) {
	cfg := testConfig()
	repo := identity.NewMemoryRepository()
	user := seedUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	access, expiresIn, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if access == "" || expiresIn <= 0 {
		t.Fatalf("unexpected refresh result access=%q expires_in=%d", access, expiresIn)
	}
	if _, err := ParseAndVerifyHS256(access, []byte(cfg.JWTSecret)); err != nil {
		t.Fatalf("verify refreshed token: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	cfg := testConfig()
	repo := identity.NewMemoryRepository()
	user := seedUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Access tokens are signed with a different secret and must not refresh.
	if _, _, err := svc.Refresh(context.Background(), pair.AccessToken); err == nil {
		t.Fatal("expected refresh with an access token to fail")
	}
}

func TestLogoutInvalidatesRefreshTokens(t *testing.T) {
	cfg := testConfig()
	repo := identity.NewMemoryRepository()
	user := seedUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail after logout")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	secret := []byte("test-access-secret")
	token, err := SignHS256(map[string]any{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseAndVerifyHS256(token, secret); err != ErrTokenExpired {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}
