package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"ridecore/internal/domain"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func claimsFor(sub string, role domain.Role, driverID string) Claims {
	return Claims{
		Role:     role,
		DriverID: driverID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSecret))
	r.GET("/me", func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "driver_id": caller.DriverID, "role": caller.Role})
	})
	r.GET("/drivers-only", RequireRole(domain.RoleDriver), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuth(t *testing.T) {
	expired := claimsFor("user-1", domain.RolePassenger, "")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, "authorization header required"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "bearer token required"},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, "invalid token"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), claimsFor("user-1", domain.RolePassenger, "")), http.StatusUnauthorized, "invalid token"},
		{"wrong algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, claimsFor("user-1", domain.RolePassenger, "")), http.StatusUnauthorized, "invalid token"},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired), http.StatusUnauthorized, "invalid token"},
		{"unknown role", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-1", "pilot", "")), http.StatusUnauthorized, "unknown role"},
		{"driver without driver id", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-1", domain.RoleDriver, "")), http.StatusUnauthorized, "driver_id"},
		{"passenger", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-1", domain.RolePassenger, "")), http.StatusOK, `"user_id":"user-1"`},
		{"driver", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-2", domain.RoleDriver, "d-2")), http.StatusOK, `"driver_id":"d-2"`},
	}

	router := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := newAuthRouter()

	req := httptest.NewRequest(http.MethodGet, "/drivers-only", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-1", domain.RolePassenger, "")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for passenger, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/drivers-only", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, claimsFor("user-2", domain.RoleDriver, "d-2")))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for driver, got %d", w.Code)
	}
}

func newIdempotencyRouter(t *testing.T, calls *int32, status int) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger, _ := test.NewNullLogger()

	r := gin.New()
	r.Use(IdempotencyMiddleware(client, logger))
	r.POST("/rides", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	r.GET("/rides", func(c *gin.Context) {
		atomic.AddInt32(calls, 1)
		c.JSON(http.StatusOK, gin.H{})
	})
	return r, mr
}

func post(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rides", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	var calls int32
	router, _ := newIdempotencyRouter(t, &calls, http.StatusCreated)

	first := post(router, "key-1")
	second := post(router, "key-1")

	if calls != 1 {
		t.Errorf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("expected replay of %d %s, got %d %s", first.Code, first.Body.String(), second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay header")
	}

	post(router, "key-2")
	post(router, "")
	if calls != 3 {
		t.Errorf("expected new and missing keys to run the handler, got %d calls", calls)
	}
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	var calls int32
	router, _ := newIdempotencyRouter(t, &calls, http.StatusServiceUnavailable)

	post(router, "key-1")
	post(router, "key-1")
	if calls != 2 {
		t.Errorf("expected retry after 5xx to run the handler, got %d calls", calls)
	}
}

func TestIdempotency_InFlightRejected(t *testing.T) {
	var calls int32
	router, mr := newIdempotencyRouter(t, &calls, http.StatusCreated)

	if err := mr.Set("idempotency:anonymous:key-1:lock", "1"); err != nil {
		t.Fatalf("failed to seed lock: %v", err)
	}
	if w := post(router, "key-1"); w.Code != http.StatusConflict {
		t.Errorf("expected 409 while the first request runs, got %d", w.Code)
	}
	if calls != 0 {
		t.Errorf("handler should not run, got %d calls", calls)
	}
}

func TestIdempotency_RedisDownFallsThrough(t *testing.T) {
	var calls int32
	router, mr := newIdempotencyRouter(t, &calls, http.StatusCreated)
	mr.Close()

	if w := post(router, "key-1"); w.Code != http.StatusCreated {
		t.Errorf("expected request to proceed, got %d", w.Code)
	}
	if calls != 1 {
		t.Errorf("expected handler to run, got %d calls", calls)
	}
}

func TestIdempotency_IgnoresReads(t *testing.T) {
	var calls int32
	router, _ := newIdempotencyRouter(t, &calls, http.StatusCreated)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/rides", nil)
		req.Header.Set(idempotencyHeader, "key-1")
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Errorf("GET should bypass idempotency, got %d calls", calls)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware(), RequestIDMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(requestIDHeader) != "req-42" {
		t.Errorf("expected request id to be echoed, got %q", w.Header().Get(requestIDHeader))
	}
}
