package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/logicaltax/backend/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 7 * 24 * time.Hour

// UserStore is the persistence AuthService needs.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListByRole(ctx context.Context, role string) ([]*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// AuthService handles authentication, JWT, and user management.
type AuthService struct {
	jwtSecret     string
	adminEmail    string
	adminPassword string
	users         UserStore
	access        AccessResolver
	validate      *validator.Validate
	now           func() time.Time
}

// NewAuthService creates a new AuthService. access is consulted by
// RedirectFor and may be nil when only token handling is needed.
func NewAuthService(jwtSecret, adminEmail, adminPassword string, users UserStore, access AccessResolver) *AuthService {
	return &AuthService{
		jwtSecret:     jwtSecret,
		adminEmail:    strings.ToLower(strings.TrimSpace(adminEmail)),
		adminPassword: adminPassword,
		users:         users,
		access:        access,
		validate:      validator.New(),
		now:           time.Now,
	}
}

// SeedAdmin creates the default admin user if it doesn't exist.
// Seeding is skipped when no admin password is configured.
func (s *AuthService) SeedAdmin(ctx context.Context) error {
	if s.adminPassword == "" {
		log.Info().Msg("ADMIN_PASSWORD not set; skipping admin seed")
		return nil
	}

	exists, err := s.users.Exists(ctx, s.adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin existence: %w", err)
	}
	if exists {
		log.Info().Str("email", s.adminEmail).Msg("admin user already exists")
		return nil
	}

	admin, err := s.newUser(s.adminEmail, s.adminPassword, "Administrator", domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	log.Info().Str("email", s.adminEmail).Msg("admin user created")
	return nil
}

// Register signs up a regular user and logs them in.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	exists, err := s.users.Exists(ctx, req.Email)
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if exists {
		return nil, domain.ErrConflict("email already registered")
	}

	user, err := s.newUser(req.Email, req.Password, req.FullName, domain.RoleUser)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, domain.ErrInternal("failed to create user", err)
	}

	log.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issue(user)
}

// Login validates credentials against the database and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*domain.LoginResponse, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"exp":   now.Add(tokenTTL).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, domain.ErrInternal("failed to sign token", err)
	}

	return &domain.LoginResponse{
		Token: signed,
		User: domain.LoginUser{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
			Role:     user.Role,
		},
	}, nil
}

// VerifyToken validates a JWT token and returns the claims.
func (s *AuthService) VerifyToken(tokenStr string) (*domain.JWTClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	sub := getClaimString(claims, "sub")
	if sub == "" {
		return nil, domain.ErrUnauthorized("invalid token claims")
	}

	return &domain.JWTClaims{
		Sub:   sub,
		Email: getClaimString(claims, "email"),
		Role:  getClaimString(claims, "role"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// RedirectFor tells a signed-in client where it belongs: admins go to the
// dashboard, subscribers to the knowledge base, everyone else to checkout.
func (s *AuthService) RedirectFor(ctx context.Context, userID, role, checkoutSessionID string) *domain.RedirectResponse {
	if role == domain.RoleAdmin {
		return &domain.RedirectResponse{RedirectTo: "/admin"}
	}
	if s.access != nil && s.access.ResolveAccess(ctx, userID, checkoutSessionID).Granted() {
		return &domain.RedirectResponse{RedirectTo: "/qa"}
	}
	return &domain.RedirectResponse{RedirectTo: "/checkout"}
}

// ListUsers returns all non-admin users (admin only).
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.UserResponse, error) {
	users, err := s.users.ListByRole(ctx, domain.RoleUser)
	if err != nil {
		return nil, domain.ErrInternal("failed to list users", err)
	}

	responses := make([]*domain.UserResponse, len(users))
	for i, u := range users {
		responses[i] = u.ToResponse()
	}
	return responses, nil
}

// CreateUser creates a new user with bcrypt password (admin only).
func (s *AuthService) CreateUser(ctx context.Context, req *domain.CreateUserRequest) (*domain.UserResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	exists, err := s.users.Exists(ctx, req.Email)
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if exists {
		return nil, domain.ErrConflict("email already registered")
	}

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	user, err := s.newUser(req.Email, req.Password, strings.TrimSpace(req.FullName), role)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, domain.ErrInternal("failed to create user", err)
	}

	return user.ToResponse(), nil
}

// DeleteUser removes a user by ID (admin only). Admins cannot be deleted.
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return domain.ErrNotFound("user not found")
	}
	if user.IsAdmin() {
		return domain.ErrBadRequest("cannot delete admin user")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return domain.ErrInternal("failed to delete user", err)
	}
	return nil
}

// GetUserByID returns a user profile by ID (for /api/auth/me).
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*domain.UserResponse, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	return user.ToResponse(), nil
}

func (s *AuthService) newUser(email, password, fullName, role string) (*domain.User, error) {
	if password == "" {
		return nil, errors.New("empty password")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	return &domain.User{
		ID:        domain.NewID(),
		Email:     email,
		FullName:  fullName,
		Password:  string(hashed),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
