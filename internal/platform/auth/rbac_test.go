package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		wantCode int
	}{
		{"matching role", []string{RoleDoctor}, []string{RoleDoctor}, http.StatusOK},
		{"one of many", []string{RoleSecretary}, []string{RoleDoctor, RoleSecretary}, http.StatusOK},
		{"admin passes", []string{RoleAdmin}, []string{RoleDoctor}, http.StatusOK},
		{"wrong role", []string{RoleSecretary}, []string{RoleDoctor}, http.StatusForbidden},
		{"no roles", nil, []string{RoleDoctor}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.granted != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.granted))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(tt.required...)(okHandler)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			expectStatus(t, err, tt.wantCode)
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	if HasAnyRole(nil, RoleDoctor) {
		t.Error("expected empty grant to fail")
	}
	if !HasAnyRole([]string{RoleAdmin}) {
		t.Error("expected admin to pass even with no required roles")
	}
	if HasAnyRole([]string{RoleDoctor}) {
		t.Error("expected non-admin to fail with no required roles")
	}
}
