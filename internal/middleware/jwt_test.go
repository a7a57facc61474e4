package myMiddleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	myMiddleware "chattour/internal/middleware"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (int, string, error) {
	if token != "good" {
		return 0, "", errors.New("bad token")
	}
	return 7, "ada", nil
}

func echoCaller(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(myMiddleware.UserKey).(int)
	name, _ := r.Context().Value(myMiddleware.UsernameKey).(string)
	if id == 0 {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(name))
}

func TestAuthMiddleware(t *testing.T) {
	am := myMiddleware.NewAuthMiddleware(stubValidator{})

	tests := []struct {
		name     string
		optional bool
		header   string
		query    string
		status   int
		body     string
	}{
		{"required, no token", false, "", "", http.StatusUnauthorized, ""},
		{"required, bad token", false, "Bearer nope", "", http.StatusUnauthorized, ""},
		{"required, header token", false, "Bearer good", "", http.StatusOK, "ada"},
		{"required, query token", false, "", "good", http.StatusOK, "ada"},
		{"optional, no token", true, "", "", http.StatusOK, "anonymous"},
		{"optional, bad token", true, "", "nope", http.StatusUnauthorized, ""},
		{"optional, good token", true, "Bearer good", "", http.StatusOK, "ada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h http.Handler = http.HandlerFunc(echoCaller)
			if tt.optional {
				h = am.Optional(h)
			} else {
				h = am.Handle(h)
			}

			target := "/ws"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
