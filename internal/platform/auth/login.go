package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	ClinicID string `json:"clinicId" validate:"omitempty,max=48"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	ClinicID  string    `json:"clinicId"`
}

type LoginHandler struct {
	users  UserStore
	tokens *TokenIssuer
	logger zerolog.Logger
}

func NewLoginHandler(users UserStore, tokens *TokenIssuer, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{users: users, tokens: tokens, logger: logger}
}

func (h *LoginHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
}

// Login exchanges email and password for a bearer token. Users bound to a
// clinic always get that clinic; others may pick one.
func (h *LoginHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	u, err := Authenticate(c.Request().Context(), h.users, req.Email, req.Password)
	if err != nil {
		h.logger.Warn().Str("email", req.Email).Str("remote_ip", c.RealIP()).Msg("login failed")
		return unauthorized(err.Error())
	}

	clinic := u.ClinicID
	if clinic == "" {
		clinic = req.ClinicID
	}
	token, exp, err := h.tokens.Issue(u, clinic)
	if err != nil {
		return err
	}

	h.logger.Info().Int64("user_id", u.ID).Str("clinic", clinic).Msg("login")
	return c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp, Email: u.Email, Roles: u.Roles, ClinicID: clinic})
}
