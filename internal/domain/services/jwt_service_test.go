package services

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
)

func createUser(t *testing.T, f *fixture, username, password string, role models.Role, status string, sites ...models.JobSite) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Username: username, Password: string(hash), Role: role, Status: status, Sites: sites}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func TestJWTService_TokenRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.jwt.now = utcNow

	want := models.Identity{UserID: 7, Username: "gate", Role: models.RoleOperator, SiteIDs: []uint{3, 4}}
	token, expiresAt, err := f.jwt.GenerateToken(want)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := f.jwt.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestJWTService_RejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	f.jwt.now = utcNow

	token, _, err := f.jwt.GenerateToken(models.Identity{UserID: 7, Username: "gate", Role: models.RoleOperator})
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		UserID: 7, Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	expiredToken, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{UserID: 7, Role: "operator"})
	foreignToken, err := foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{Role: "operator"})
	anonymousToken, err := anonymous.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":   "not-a-token",
		"tampered":  tampered,
		"expired":   expiredToken,
		"foreign":   foreignToken,
		"anonymous": anonymousToken,
	} {
		_, err := f.jwt.ValidateToken(tok)
		assert.Equal(t, code.ErrTokenInvalid, code.CodeOf(err), name)
	}
}

func TestJWTService_Login(t *testing.T) {
	f := newFixture(t)
	f.jwt.now = utcNow
	site := f.site(t, "North Yard", 10, 20, 5)
	user := createUser(t, f, "gate", "s3cret!", models.RoleOperator, "active", *site)

	result, err := f.jwt.Login(ctxBG, "gate", "s3cret!", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.UserID)
	assert.Equal(t, []uint{site.ID}, result.User.SiteIDs)

	identity, err := f.jwt.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, identity.Role)
	assert.True(t, identity.CanAccessSite(site.ID))
}

func TestJWTService_LoginFailuresFeedAlertRule(t *testing.T) {
	f := newFixture(t)
	f.jwt.now = utcNow
	createUser(t, f, "gate", "s3cret!", models.RoleOperator, "active")

	for i := 0; i < 5; i++ {
		_, err := f.jwt.Login(ctxBG, "gate", "wrong", "10.0.0.1")
		assert.Equal(t, code.ErrUserPasswordIncorrect, code.CodeOf(err))
	}
	burst := alertsOfType(t, f, models.AlertTypeFailedLogin)
	require.Len(t, burst, 1)
	require.NotNil(t, burst[0].UserID)

	_, err := f.jwt.Login(ctxBG, "gate", "s3cret!", "10.0.0.1")
	require.NoError(t, err)

	// 成功登录后计数清零
	for i := 0; i < 4; i++ {
		_, err := f.jwt.Login(ctxBG, "gate", "wrong", "10.0.0.1")
		require.Error(t, err)
	}
	assert.Len(t, alertsOfType(t, f, models.AlertTypeFailedLogin), 1)

	_, err = f.jwt.Login(ctxBG, "nobody", "x", "10.0.0.1")
	assert.Equal(t, code.ErrUserPasswordIncorrect, code.CodeOf(err))
}

func TestJWTService_LoginDisabledUser(t *testing.T) {
	f := newFixture(t)
	createUser(t, f, "old", "s3cret!", models.RoleClient, "inactive")

	_, err := f.jwt.Login(ctxBG, "old", "s3cret!", "10.0.0.1")
	assert.Equal(t, code.ErrUserDisabled, code.CodeOf(err))
}
