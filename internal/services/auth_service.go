package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"media-gallery/internal/auth"
	"media-gallery/internal/models"
	"media-gallery/internal/repository"
	"media-gallery/internal/utils"
)

type AuthConfig struct {
	MaxAttempts   int
	LockoutWindow time.Duration
}

// AuthService handles password auth and account state. Failed logins are
// counted per account; crossing MaxAttempts locks the account for the
// lockout window.
type AuthService struct {
	users repository.UserRepository
	jwt   *auth.JWTManager
	cfg   AuthConfig
}

func NewAuthService(users repository.UserRepository, jwt *auth.JWTManager, cfg AuthConfig) *AuthService {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockoutWindow == 0 {
		cfg.LockoutWindow = 2 * time.Hour
	}
	return &AuthService{users: users, jwt: jwt, cfg: cfg}
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// LoginError carries the remaining-attempts hint alongside the sentinel.
type LoginError struct {
	Err          error
	AttemptsLeft int
}

func (e *LoginError) Error() string { return e.Err.Error() }
func (e *LoginError) Unwrap() error { return e.Err }

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", utils.ErrValidation)
	}
	if len(in.Password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", utils.ErrValidation)
	}

	if existing, err := s.users.FindByUsernameOrEmail(ctx, in.Username, in.Email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: username or email already registered", utils.ErrConflict)
	} else if err != nil && !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		IsActive:     true,
		Provider:     models.ProviderLocal,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, fmt.Errorf("%w: username or email already registered", utils.ErrConflict)
		}
		return nil, err
	}
	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Login authenticates by username or email. A locked account fails fast
// without touching the password; a wrong password on the last allowed attempt
// opens the lockout window.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: credentials are required", utils.ErrValidation)
	}
	u, err := s.users.FindByUsernameOrEmail(ctx, identifier, strings.ToLower(identifier))
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", utils.ErrUnauthorized)
		}
		return nil, err
	}
	if u.Locked() {
		return nil, fmt.Errorf("%w: account locked until %s", utils.ErrLocked, u.LockUntil.UTC().Format(time.RFC3339))
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", utils.ErrForbidden)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		u.LoginAttempts++
		left := s.cfg.MaxAttempts - u.LoginAttempts
		if left <= 0 {
			until := time.Now().UTC().Add(s.cfg.LockoutWindow)
			u.LockUntil = &until
			u.LoginAttempts = 0
		}
		if uerr := s.users.Update(ctx, u); uerr != nil {
			return nil, uerr
		}
		if u.LockUntil != nil && u.Locked() {
			return nil, &LoginError{Err: fmt.Errorf("%w: too many failed attempts", utils.ErrLocked)}
		}
		return nil, &LoginError{Err: fmt.Errorf("%w: invalid credentials", utils.ErrUnauthorized), AttemptsLeft: left}
	}

	now := time.Now().UTC()
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.users.FindByID(ctx, userID)
}

type ProfileUpdate struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username cannot be empty", utils.ErrValidation)
		}
		u.Username = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: invalid email", utils.ErrValidation)
		}
		u.Email = email
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, fmt.Errorf("%w: username or email already taken", utils.ErrConflict)
		}
		return nil, err
	}
	return u, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", utils.ErrValidation)
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return fmt.Errorf("%w: current password is incorrect", utils.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return s.users.Update(ctx, u)
}
