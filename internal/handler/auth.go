package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking-engine/internal/config"
	"github.com/iliyamo/cinema-booking-engine/internal/logger"
	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// UserStore is the account storage the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, email, username, password, role string, cost int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// AuthHandler serves registration, login and the current account.
type AuthHandler struct {
	Cfg   config.Config
	Users UserStore
	Log   *logger.Logger
}

func NewAuthHandler(cfg config.Config, users UserStore, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{Cfg: cfg, Users: users, Log: log.Component("auth")}
}

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userPart struct {
	ID       uint64 `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Token   string    `json:"access_token"`
	Expires time.Time `json:"expires"`
}

// Register handles POST /v1/auth/register.  New accounts are customers.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	u, err := h.Users.Create(c.Request().Context(), req.Email, req.Username, req.Password, model.RoleCustomer, h.Cfg.BcryptCost)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.issue(c, http.StatusCreated, u)
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	u, err := h.Users.GetByEmail(c.Request().Context(), req.Email)
	if err != nil || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		if err != nil && !isNotFound(err) {
			return respondError(c, h.Log, err)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(c, http.StatusOK, u)
}

// Me handles GET /v1/auth/me.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := h.Users.GetByID(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role})
}

func (h *AuthHandler) issue(c echo.Context, status int, u *model.User) error {
	tok, err := utils.NewAccessToken(h.Cfg.JWTSecret, utils.Claims{UserID: u.ID, Role: u.Role, Username: u.Username}, h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Username: u.Username, Role: u.Role},
		Token:   tok.Token,
		Expires: tok.Exp,
	})
}
