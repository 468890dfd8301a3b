package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer authentication: health probes and the two
// credential issuance endpoints.
var publicPaths = map[string]bool{
	"/health":          true,
	"/health/db":       true,
	"/api/auth/login":  true,
	"/api/auth/signup": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	if p := c.Path(); p != "" {
		return publicPaths[p]
	}
	return publicPaths[c.Request().URL.Path]
}

// IsPublicPath reports whether path is served without a credential.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
