package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cadencehq/authcore/pkg/authn"
)

func setupAuth(t *testing.T, optional bool) (*AuthMiddleware, string) {
	t.Helper()
	authenticator := authn.NewTokenAuthenticator()
	token, err := authenticator.Issue(authn.Identity{UserID: "u1", Email: "u1@example.com"}, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return NewAuthMiddleware(authenticator, testLogger(), testMetrics(), optional), token
}

func TestAuthMiddleware(t *testing.T) {
	mw, token := setupAuth(t, false)

	var identity *authn.Identity
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcg==", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity = nil
			r := httptest.NewRequest("GET", "/x", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK {
				if identity == nil || identity.UserID != "u1" {
					t.Errorf("Identity = %+v, want user u1", identity)
				}
			}
		})
	}
}

func TestAuthMiddlewareOptional(t *testing.T) {
	mw, _ := setupAuth(t, true)

	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r) != nil {
			t.Error("Expected no identity on anonymous request")
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}

	// A present but invalid credential still fails, even in optional
	// mode.
	r := httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", w.Code)
	}
}
