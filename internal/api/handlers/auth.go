package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/factorhub/marketplace/internal/api/errors"
	"github.com/factorhub/marketplace/internal/auth"
	"github.com/factorhub/marketplace/internal/models"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
		logger:      logger,
	}
}

// RegisterRequest represents the request body for self-service signup.
type RegisterRequest struct {
	Email    string        `json:"email" validate:"required,email"`
	Name     string        `json:"name" validate:"required,max=255"`
	Password string        `json:"password" validate:"required,min=8"`
	Roles    []models.Role `json:"roles" validate:"required,min=1,dive,oneof=seller buyer"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required"`
	Role     models.Role `json:"role,omitempty" validate:"omitempty,oneof=seller buyer admin"`
}

// AuthResponse represents the response for successful authentication.
type AuthResponse struct {
	Token  string        `json:"token"`
	UserID string        `json:"user_id"`
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Role   models.Role   `json:"role"`
	Roles  []models.Role `json:"roles"`
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			WriteError(w, r, apierrors.NewConflictError("Email is already registered"))
		case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidRole):
			WriteBadRequest(w, r, err.Error())
		default:
			h.logger.Error("failed to register user", "error", err)
			WriteInternalError(w, r, "Failed to register user")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			WriteUnauthorized(w, r, "Invalid email or password")
		case errors.Is(err, auth.ErrRoleNotGranted):
			WriteError(w, r, apierrors.NewForbiddenError("Role not granted to this account"))
		default:
			h.logger.Error("failed to log in", "error", err)
			WriteInternalError(w, r, "Failed to log in")
		}
		return
	}

	role := req.Role
	if role == "" {
		role = user.Roles[0]
	}
	h.logger.Info("user logged in", "user_id", user.ID, "role", role)
	WriteJSON(w, http.StatusOK, AuthResponse{
		Token:  token,
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   role,
		Roles:  user.Roles,
	})
}
