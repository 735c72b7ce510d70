package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func testConfig() JWTConfig {
	return JWTConfig{
		SigningKey: testKey,
		Issuer:     "his-test",
		Audience:   "his-api",
	}
}

func signToken(t *testing.T, claims *Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "his-test",
			Audience:  jwt.ClaimStrings{"his-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"billing"},
	}
}

func TestParseToken_Valid(t *testing.T) {
	tokenStr := signToken(t, validClaims(), testKey)

	claims, err := ParseToken(tokenStr, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "billing" {
		t.Errorf("unexpected roles: %v", claims.Roles)
	}
}

func TestParseToken_WrongKey(t *testing.T) {
	tokenStr := signToken(t, validClaims(), []byte("other-key"))

	if _, err := ParseToken(tokenStr, testConfig()); err == nil {
		t.Error("expected error for token signed with wrong key")
	}
}

func TestParseToken_Expired(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	tokenStr := signToken(t, claims, testKey)

	if _, err := ParseToken(tokenStr, testConfig()); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestParseToken_WrongIssuer(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "someone-else"
	tokenStr := signToken(t, claims, testKey)

	if _, err := ParseToken(tokenStr, testConfig()); err == nil {
		t.Error("expected error for wrong issuer")
	}
}

func TestParseToken_NoSubject(t *testing.T) {
	claims := validClaims()
	claims.Subject = ""
	tokenStr := signToken(t, claims, testKey)

	if _, err := ParseToken(tokenStr, testConfig()); err == nil {
		t.Error("expected error for token without subject")
	}
}

func TestJWTMiddleware_SetsContext(t *testing.T) {
	e := echo.New()
	tokenStr := signToken(t, validClaims(), testKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser string
	var gotRoles []string
	handler := JWTMiddleware(testConfig())(func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "user-1" {
		t.Errorf("expected user-1 in context, got %s", gotUser)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "billing" {
		t.Errorf("unexpected roles in context: %v", gotRoles)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(testConfig())(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_MalformedHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := JWTMiddleware(testConfig())(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := DevAuthMiddleware()(func(c echo.Context) error {
		if got := UserIDFromContext(c.Request().Context()); got != "dev-user" {
			t.Errorf("expected dev-user, got %s", got)
		}
		roles := RolesFromContext(c.Request().Context())
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected admin role, got %v", roles)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
