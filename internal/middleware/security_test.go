package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestPostGuardBlocksNonAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.POST("/foo", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodPost, "/foo", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for non-API POST, got %d", w.Code)
	}
}

func TestPostGuardAllowsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.POST("/api/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected API POST to succeed (200), got %d", w.Code)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected frame protection header, got %q", w.Header().Get("X-Frame-Options"))
	}
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewPerMinuteLimiter(1, 2)
	defer rl.Stop()
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if rl.Clients() != 1 {
		t.Fatalf("expected one tracked client, got %d", rl.Clients())
	}
}

func TestAuthServiceTokenRoundTripAndRevoke(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)
	token, jti, err := auth.GenerateToken("alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Username != "alice" || claims.ID != jti {
		t.Fatalf("unexpected claims %+v", claims)
	}

	auth.Revoke(jti)
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}

	other := NewAuthService("other-secret", time.Hour)
	fresh, _, _ := auth.GenerateToken("bob")
	if _, err := other.ValidateToken(fresh); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestRequireAPIAuthLocksOutAfterFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthService("test-secret", time.Hour)
	r := gin.New()
	r.GET("/api/private", auth.RequireAPIAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername))
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
		t.Fatalf("expected first failures to be 401, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Fatalf("expected lockout after third failure, got %v", codes)
	}
}

func TestRequireAPIAuthAcceptsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthService("test-secret", time.Hour)
	r := gin.New()
	r.GET("/api/private", auth.RequireAPIAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUsername))
	})

	token, _, err := auth.GenerateToken("carol")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/private", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "carol" {
		t.Fatalf("expected cookie auth to succeed, got %d %q", w.Code, w.Body.String())
	}
}

func TestSetAuthCookieDowngradesSameSiteNoneWithoutTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("GWCONSOLE_COOKIE_SAMESITE", "none")
	auth := NewAuthService("test-secret", time.Hour)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/login", nil)

	auth.SetAuthCookie(c, "tok")
	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "HttpOnly") || !strings.Contains(cookie, "SameSite=Lax") {
		t.Fatalf("unexpected cookie %q", cookie)
	}
}

func TestBindJSONReportsFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	type payload struct {
		Email string `json:"email" validate:"required,email"`
	}
	r := gin.New()
	r.POST("/api/bind", func(c *gin.Context) {
		var p payload
		if !BindJSON(c, &p) {
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/bind", strings.NewReader(`{"email":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"email":"must be a valid email"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hi\x00there\x07 "); got != "hithere" {
		t.Fatalf("SanitizeString = %q", got)
	}
}
