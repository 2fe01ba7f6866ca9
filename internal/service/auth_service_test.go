package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentraops/siteops-api/internal/models"
	appErrors "github.com/sentraops/siteops-api/pkg/errors"
)

type authUserStub struct {
	mu        sync.Mutex
	users     map[string]*models.User
	lastLogin map[string]time.Time
}

func newAuthUserStub() *authUserStub {
	return &authUserStub{users: make(map[string]*models.User), lastLogin: make(map[string]time.Time)}
}

func (s *authUserStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *authUserStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authUserStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLogin[id] = ts
	return nil
}

func newTestAuthService(t *testing.T, repo *authUserStub) *AuthService {
	t.Helper()
	return NewAuthService(repo, &auditStub{}, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: 15 * time.Minute,
		Issuer:            "siteops-api-test",
		Audience:          []string{"siteops"},
	})
}

func seedUser(t *testing.T, repo *authUserStub, email, password string, role models.UserRole, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{
		ID:           "user-" + email,
		Email:        email,
		FullName:     "Test User",
		Role:         role,
		PasswordHash: string(hash),
		Active:       active,
	}
	repo.users[user.ID] = user
	return user
}

func TestAuthLoginSuccess(t *testing.T) {
	repo := newAuthUserStub()
	user := seedUser(t, repo, "ops@example.com", "s3cret-pass", models.RoleAdmin, true)
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, int64(900), resp.ExpiresIn)
	require.Equal(t, user.ID, resp.User.ID)
	require.Equal(t, models.RoleAdmin, resp.User.Role)
	require.Contains(t, repo.lastLogin, user.ID)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newAuthUserStub()
	seedUser(t, repo, "ops@example.com", "s3cret-pass", models.RoleAdmin, true)
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnknownEmail(t *testing.T) {
	svc := newTestAuthService(t, newAuthUserStub())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newAuthUserStub()
	seedUser(t, repo, "gone@example.com", "s3cret-pass", models.RoleAdmin, false)
	svc := newTestAuthService(t, repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "gone@example.com", Password: "s3cret-pass"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginValidation(t *testing.T) {
	svc := newTestAuthService(t, newAuthUserStub())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenRoundTrip(t *testing.T) {
	repo := newAuthUserStub()
	seedUser(t, repo, "ops@example.com", "s3cret-pass", models.RoleSupervisor, true)
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.UserID)
	require.Equal(t, models.RoleSupervisor, claims.Role)
	require.Equal(t, "ops@example.com", claims.Email)
	require.Equal(t, "siteops-api-test", claims.Issuer)
}

func TestAuthValidateTokenRejectsTampering(t *testing.T) {
	repo := newAuthUserStub()
	seedUser(t, repo, "ops@example.com", "s3cret-pass", models.RoleAdmin, true)
	svc := newTestAuthService(t, repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ops@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, nil, AuthConfig{AccessTokenSecret: "other-secret", AccessTokenExpiry: time.Minute})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)
}
