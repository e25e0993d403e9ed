package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/factorhub/marketplace/internal/auth"
	"github.com/factorhub/marketplace/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthService() *auth.Service {
	return auth.NewService(&auth.Config{
		JWTSecret:   []byte("middleware-test-secret"),
		TokenExpiry: time.Hour,
	}, nil, testLogger())
}

var roles = []models.Role{models.RoleSeller, models.RoleBuyer, models.RoleAdmin}

func genRole() gopter.Gen {
	return gen.IntRange(0, len(roles)-1).Map(func(i int) models.Role { return roles[i] })
}

// echoActor writes the actor the handler sees.
func echoActor(got *actorSeen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.userID = GetUserID(r.Context())
		got.email = GetUserEmail(r.Context())
		got.role = GetRole(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

type actorSeen struct {
	userID string
	email  string
	role   models.Role
}

// A valid token always reaches the handler with its identity and role.
func TestPropertyAuthenticatePropagatesIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	svc := testAuthService()
	m := NewAuthMiddleware(svc, testLogger())

	properties.Property("token claims become request context", prop.ForAll(
		func(userID string, role models.Role) bool {
			token, err := svc.GenerateToken(userID, userID+"@example.com", role)
			if err != nil {
				return false
			}
			var seen actorSeen
			req := httptest.NewRequest(http.MethodGet, "/v1/assets", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			m.Authenticate(echoActor(&seen)).ServeHTTP(rr, req)

			return rr.Code == http.StatusNoContent &&
				seen.userID == userID &&
				seen.email == userID+"@example.com" &&
				seen.role == role
		},
		gen.Identifier(),
		genRole(),
	))

	properties.Property("permission check follows the role table", prop.ForAll(
		func(role models.Role) bool {
			for _, perm := range []auth.Permission{
				auth.PermissionManageAssets,
				auth.PermissionReviewBids,
				auth.PermissionBrowseMarketplace,
				auth.PermissionPlaceBids,
				auth.PermissionConfirmPayment,
				auth.PermissionResendNotifications,
			} {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req = req.WithContext(WithActor(req.Context(), "u1", "u1@example.com", role))
				rr := httptest.NewRecorder()
				var seen actorSeen
				RequirePermission(perm, testLogger())(echoActor(&seen)).ServeHTTP(rr, req)

				allowed := auth.CheckRolePermission(role, perm) == nil
				if allowed != (rr.Code == http.StatusNoContent) {
					return false
				}
				if !allowed && rr.Code != http.StatusForbidden {
					return false
				}
			}
			return true
		},
		genRole(),
	))

	properties.TestingRun(t)
}

func TestAuthenticateRejects(t *testing.T) {
	m := NewAuthMiddleware(testAuthService(), testLogger())
	other := auth.NewService(&auth.Config{JWTSecret: []byte("another-secret"), TokenExpiry: time.Hour}, nil, testLogger())
	forged, _ := other.GenerateToken("u1", "u1@example.com", models.RoleAdmin)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/assets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			var seen actorSeen
			m.Authenticate(echoActor(&seen)).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
			if seen.userID != "" {
				t.Error("handler must not run")
			}
		})
	}
}

func TestRequirePermissionWithoutIdentity(t *testing.T) {
	rr := httptest.NewRecorder()
	var seen actorSeen
	RequirePermission(auth.PermissionPlaceBids, testLogger())(echoActor(&seen)).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

// fakeLimiter allows a fixed number of requests per key, or fails.
type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	l := &fakeLimiter{}
	h := RateLimit(l, "links", 2, time.Minute, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/links/fee/abc", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := call("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("third request from same IP: status %d, want 429", code)
	}
	if code := call("10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other IP: status %d, want 200", code)
	}

	l.err = errors.New("redis down")
	if code := call("10.0.0.1:5000"); code != http.StatusOK {
		t.Errorf("limiter failure should fail open, got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if h := RateLimit(nil, "links", 5, time.Minute, testLogger())(next); h == nil {
		t.Fatal("nil handler")
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"/links/fee/secret-token": "/links/fee/{token}",
		"/links/payment/abc":      "/links/payment/{token}",
		"/links/validate":         "/links/validate",
		"/v1/assets/123":          "/v1/assets/123",
		"/health":                 "/health",
	}
	for in, want := range tests {
		if got := redactPath(in); got != want {
			t.Errorf("redactPath(%q) = %q, want %q", in, got, want)
		}
	}
}
