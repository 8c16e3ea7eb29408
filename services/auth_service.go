package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"grievance-management-api/apperr"
	"grievance-management-api/authz"
	"grievance-management-api/models"
	"grievance-management-api/utils"
)

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID uint        `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Secret      string
	ExpireHours int
	BcryptCost  int
}

type AuthService struct {
	users      UserRepository
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users UserRepository, cfg AuthConfig) *AuthService {
	expireHours := cfg.ExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		secret:     []byte(cfg.Secret),
		ttl:        time.Duration(expireHours) * time.Hour,
		bcryptCost: cost,
		now:        time.Now,
	}
}

type RegisterInput struct {
	Username   string  `json:"username" validate:"required,min=3,max=50"`
	Email      string  `json:"email" validate:"required,email,max=191"`
	Password   string  `json:"password" validate:"required,min=6,max=72"`
	FirstName  string  `json:"first_name" validate:"required,min=2,max=100"`
	LastName   string  `json:"last_name" validate:"required,min=2,max=100"`
	Role       string  `json:"role" validate:"omitempty,oneof=admin staff user"`
	Phone      *string `json:"phone" validate:"omitempty,phone"`
	Department *string `json:"department" validate:"omitempty,min=2,max=100"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Session is the result of a successful register, login or refresh.
type Session struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Register creates an account and signs a session for it. A requested admin
// or staff role is honored only when the request comes from an admin session;
// anyone else gets the user role.
func (s *AuthService) Register(ctx context.Context, grantor authz.Caller, in RegisterInput) (*Session, error) {
	in.Username = utils.SanitizeInput(in.Username)
	in.Email = utils.NormalizeEmail(in.Email)
	in.FirstName = utils.SanitizeInput(in.FirstName)
	in.LastName = utils.SanitizeInput(in.LastName)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.Phone = utils.SanitizeOptional(in.Phone)
	in.Department = utils.SanitizeOptional(in.Department)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	role := models.RoleUser
	if in.Role != "" {
		role, _ = utils.ParseRole(in.Role)
	}
	if role != models.RoleUser && grantor.Role != models.RoleAdmin {
		log.Ctx(ctx).Warn().Str("requested_role", string(role)).Msg("elevated role on self-registration ignored")
		role = models.RoleUser
	}

	existing, err := s.users.FindUserByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if existing != nil {
		if strings.EqualFold(existing.Email, in.Email) {
			return nil, apperr.Conflict("Email address is already registered")
		}
		return nil, apperr.Conflict("Username is already taken")
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		Phone:        in.Phone,
		Department:   in.Department,
		IsActive:     true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Uint("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := utils.NormalizeEmail(in.Email)
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindUnauthenticated, "Invalid email or password")
		}
		return nil, err
	}
	if !CheckPasswordHash(in.Password, user.PasswordHash) {
		return nil, apperr.New(apperr.KindUnauthenticated, "Invalid email or password")
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindAccountDisabled, "Your account has been disabled. Please contact administrator.")
	}
	return s.issue(user)
}

// ResolveSession verifies a bearer token without touching the store.
func (s *AuthService) ResolveSession(token string) (authz.Caller, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authz.Caller{}, apperr.Wrap(apperr.KindExpiredToken, "Token has expired", err)
		}
		return authz.Caller{}, apperr.Wrap(apperr.KindInvalidToken, "Invalid token", err)
	}
	if !parsed.Valid || claims.UserID == 0 || !claims.Role.Valid() {
		return authz.Caller{}, apperr.New(apperr.KindInvalidToken, "Invalid token claims")
	}
	return authz.Caller{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// Refresh issues a fresh token for a caller whose account is still active.
func (s *AuthService) Refresh(ctx context.Context, caller authz.Caller) (*Session, error) {
	user, err := s.users.FindUserByID(ctx, caller.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindInvalidToken, "User no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindAccountDisabled, "Your account has been disabled. Please contact administrator.")
	}
	return s.issue(user)
}

func (s *AuthService) Profile(ctx context.Context, caller authz.Caller) (*models.User, error) {
	return s.users.FindUserByID(ctx, caller.UserID)
}

// Logout is advisory: tokens are stateless and expire on their own.
func (s *AuthService) Logout(caller authz.Caller) {
	log.Debug().Uint("user_id", caller.UserID).Msg("logout")
}

func (s *AuthService) issue(user *models.User) (*Session, error) {
	token, expiresAt, err := s.generateToken(user)
	if err != nil {
		return nil, apperr.Internal("Failed to generate token", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) generateToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   fmt.Sprint(user.ID),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, expiresAt, err
}

// HashPassword hashes with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", apperr.Internal("Failed to hash password", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash checks if password matches hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
