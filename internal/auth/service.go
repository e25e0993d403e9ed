// Package auth provides authentication and authorization services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// Common errors returned by the auth service.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrMissingClaims      = errors.New("missing required claims")
	ErrInvalidSignature   = errors.New("invalid token signature")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRoleNotGranted     = errors.New("role not granted to user")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// Claims represents the JWT claims structure.
type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	Exp    time.Time   `json:"exp"`
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
}

// Service issues and validates session tokens and manages credentials.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	users       store.UserStore
	logger      *slog.Logger
}

// NewService creates a new authentication service. users may be nil when
// only token operations are needed.
func NewService(cfg *Config, users store.UserStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jwtSecret:   cfg.JWTSecret,
		tokenExpiry: cfg.TokenExpiry,
		users:       users,
		logger:      logger,
	}
}

// GenerateToken creates a new JWT for the user acting in role.
func (s *Service) GenerateToken(userID, email string, role models.Role) (string, error) {
	if userID == "" || !role.IsValid() {
		return "", ErrMissingClaims
	}

	now := time.Now()
	exp := now.Add(s.tokenExpiry)

	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  string(role),
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"nbf":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := mapClaims["sub"].(string)
	if !ok || userID == "" {
		return nil, ErrMissingClaims
	}

	roleStr, _ := mapClaims["role"].(string)
	role := models.Role(roleStr)
	if !role.IsValid() {
		return nil, ErrMissingClaims
	}

	email, _ := mapClaims["email"].(string)

	expFloat, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrMissingClaims
	}

	return &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Exp:    time.Unix(int64(expFloat), 0),
	}, nil
}

// RegisterInput is a self-service signup.
type RegisterInput struct {
	Email    string        `json:"email"`
	Name     string        `json:"name"`
	Password string        `json:"password"`
	Roles    []models.Role `json:"roles"`
}

// Register creates a seller and/or buyer account. Admin accounts cannot be
// self-registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	if len(in.Roles) == 0 {
		return nil, ErrInvalidRole
	}
	for _, r := range in.Roles {
		if !r.IsValid() || r == models.RoleAdmin {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, r)
		}
	}

	user := &models.User{
		Email: strings.TrimSpace(in.Email),
		Name:  strings.TrimSpace(in.Name),
		Roles: in.Roles,
	}
	if err := s.users.Create(ctx, user, in.Password); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "roles", user.Roles)
	return user, nil
}

// Login checks credentials and issues a token for the requested role. An
// empty role is allowed when the user has exactly one.
func (s *Service) Login(ctx context.Context, email, password string, role models.Role) (string, *models.User, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) || errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if role == "" && len(user.Roles) == 1 {
		role = user.Roles[0]
	}
	if !user.HasRole(role) {
		return "", nil, ErrRoleNotGranted
	}

	token, err := s.GenerateToken(user.ID, user.Email, role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ExtractBearerToken extracts the token from a Bearer authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
