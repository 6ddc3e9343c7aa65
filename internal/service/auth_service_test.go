package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumina-edu/lms-api/internal/models"
	appErrors "github.com/lumina-edu/lms-api/pkg/errors"
)

type fakeUserRepo struct {
	usersByID    map[string]*models.User
	usersByEmail map[string]*models.User
	tokens       map[string]*models.RefreshToken
	revoked      []string
	passwords    map[string]string
	revokedAll   []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		usersByID:    map[string]*models.User{},
		usersByEmail: map[string]*models.User{},
		tokens:       map[string]*models.RefreshToken{},
		passwords:    map[string]string{},
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-new"
	}
	f.usersByID[user.ID] = user
	f.usersByEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	f.passwords[id] = hash
	if u, ok := f.usersByID[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (f *fakeUserRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	f.revokedAll = append(f.revokedAll, userID)
	return nil
}

func (f *fakeUserRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeUserRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeUserRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	f.revoked = append(f.revoked, id)
	for _, t := range f.tokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

func authConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "lms-api-test",
	}
}

func seedUser(repo *fakeUserRepo, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID: "user-1", Email: "ada@example.edu", PasswordHash: string(hash),
		FullName: "Ada Lovelace", Role: models.RoleLecturer, Active: true,
	}
	repo.usersByID[user.ID] = user
	repo.usersByEmail[user.Email] = user
	return user
}

func TestRegister(t *testing.T) {
	t.Run("student account requires a student number", func(t *testing.T) {
		svc := NewAuthService(newFakeUserRepo(), nil, nil, authConfig())
		_, err := svc.Register(context.Background(), models.RegisterRequest{
			Email: "sam@example.edu", Password: "secret1", FullName: "Sam", Role: "STUDENT",
		})
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		repo := newFakeUserRepo()
		seedUser(repo, "secret1")
		svc := NewAuthService(repo, nil, nil, authConfig())

		_, err := svc.Register(context.Background(), models.RegisterRequest{
			Email: "ada@example.edu", Password: "secret1", FullName: "Ada", Role: "LECTURER", EmployeeNumber: "E-1",
		})
		require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	})

	t.Run("successful registration logs the user in", func(t *testing.T) {
		repo := newFakeUserRepo()
		svc := NewAuthService(repo, nil, nil, authConfig())

		res, err := svc.Register(context.Background(), models.RegisterRequest{
			Email: "Sam@Example.edu", Password: "secret1", FullName: "Sam Chen", Role: "student", StudentNumber: "S-42",
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.AccessToken)
		require.NotEmpty(t, res.RefreshToken)
		require.Equal(t, models.RoleStudent, res.User.Role)
		// Emails are stored lowercase.
		require.NotNil(t, repo.usersByEmail["sam@example.edu"])

		claims, err := svc.ValidateToken(res.AccessToken)
		require.NoError(t, err)
		require.Equal(t, res.User.ID, claims.UserID)
		require.Equal(t, models.RoleStudent, claims.Role)
	})
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials issue a token pair", func(t *testing.T) {
		repo := newFakeUserRepo()
		seedUser(repo, "secret1")
		svc := NewAuthService(repo, nil, nil, authConfig())

		res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret1"})
		require.NoError(t, err)
		require.NotEmpty(t, res.AccessToken)
		require.Contains(t, repo.tokens, res.RefreshToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		repo := newFakeUserRepo()
		seedUser(repo, "secret1")
		svc := NewAuthService(repo, nil, nil, authConfig())

		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "nope-wrong"})
		require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown email looks like bad credentials", func(t *testing.T) {
		svc := NewAuthService(newFakeUserRepo(), nil, nil, authConfig())
		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.edu", Password: "secret1"})
		require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		repo := newFakeUserRepo()
		user := seedUser(repo, "secret1")
		user.Active = false
		svc := NewAuthService(repo, nil, nil, authConfig())

		_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret1"})
		require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
	})
}

func TestRefreshTokenRotation(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "secret1")
	svc := NewAuthService(repo, nil, nil, authConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token was rotated out and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	t.Run("expired token is rejected", func(t *testing.T) {
		expired := &models.RefreshToken{ID: "rt-old", UserID: "user-1", Token: "stale", ExpiresAt: time.Now().UTC().Add(-time.Hour)}
		repo.tokens["stale"] = expired

		_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
		require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})
}

func TestLogout(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "secret1")
	svc := NewAuthService(repo, nil, nil, authConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret1"})
	require.NoError(t, err)

	t.Run("token of another user is rejected", func(t *testing.T) {
		err := svc.Logout(context.Background(), login.RefreshToken, "someone-else")
		require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	t.Run("owner revokes the token", func(t *testing.T) {
		require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "user-1"))
		require.True(t, repo.tokens[login.RefreshToken].Revoked)
	})
}

func TestChangePassword(t *testing.T) {
	repo := newFakeUserRepo()
	seedUser(repo, "secret1")
	svc := NewAuthService(repo, nil, nil, authConfig())

	t.Run("wrong old password", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "wrong1", NewPassword: "secret2"})
		require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	})

	t.Run("password change revokes refresh tokens", func(t *testing.T) {
		err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"})
		require.NoError(t, err)
		require.Contains(t, repo.revokedAll, "user-1")

		// The new password works, the old one does not.
		_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret2"})
		require.NoError(t, err)
		_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.edu", Password: "secret1"})
		require.Error(t, err)
	})
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(newFakeUserRepo(), nil, nil, authConfig())

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-jwt")
		require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		otherCfg := authConfig()
		otherCfg.AccessTokenSecret = "other-secret"
		other := NewAuthService(newFakeUserRepo(), nil, nil, otherCfg)

		token, err := other.generateAccessToken(&models.User{ID: "user-1", Role: models.RoleStudent})
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})
}
