package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medcabinet/medcabinet/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the credential endpoints on the /api/auth group.
// Login and signup are public; the bearer middleware guards the rest.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/signup", h.Signup)
	g.GET("/me", h.Me)
	g.POST("/logout", h.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		case errors.Is(err, ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed").SetInternal(err)
		}
	}
	c.Set("user_id", strconv.Itoa(resp.User.ID))
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Signup(c.Request().Context(), req.Username, req.Password, req.Name)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		case errors.Is(err, ErrUsernameTaken):
			return echo.NewHTTPError(http.StatusConflict, "Username already taken")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "signup failed").SetInternal(err)
		}
	}
	c.Set("user_id", strconv.Itoa(resp.User.ID))
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Me(c echo.Context) error {
	claims := auth.ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	id, err := claims.UserID()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	u, err := h.svc.Me(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The token is well formed but its account is gone.
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), auth.ClaimsFromContext(c.Request().Context())); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return c.NoContent(http.StatusNoContent)
}
