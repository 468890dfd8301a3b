package auth

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/medcabinet/medcabinet/pkg/pagination"
)

// RegisterRevocationRoutes mounts GET <group>/revocations for admins.
func RegisterRevocationRoutes(g *echo.Group, store *TokenRevocationStore) {
	g.GET("/revocations", handleListRevocations(store), RequireRole(RoleAdmin))
}

// handleListRevocations pages through revoked credentials, oldest first.
func handleListRevocations(store *TokenRevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries := store.Entries()
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].RevokedAt.Before(entries[j].RevokedAt)
		})
		return c.JSON(http.StatusOK, pagination.Page(entries, pagination.FromContext(c)))
	}
}
