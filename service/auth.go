package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"time"
	"unicode"

	"election-portal/models"
	"election-portal/storage"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var studentIDPattern = regexp.MustCompile(`^[0-9]{8,12}$`)

// Sentinel errors surfaced to clients with their message text; anything else
// becomes a generic failure.
var (
	ErrInvalidCredentials = errors.New("invalid student ID or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("your account has been deactivated")
	ErrRateLimited        = errors.New("too many login attempts, please try again later")
)

// ValidationError carries a user-facing message for rejected input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// UserStore is the account storage the auth service needs.
type UserStore interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	SaveUser(ctx context.Context, u *models.User) error
	AdminByUsername(ctx context.Context, username string) (*models.Admin, error)
	SaveAdmin(ctx context.Context, a *models.Admin) error
}

// AuthService handles voter registration and voter/admin login with
// per-account lockout and per-IP rate limiting.
type AuthService struct {
	store    UserStore
	audit    *Auditor
	maxTries int
	lockout  time.Duration
	now      func() time.Time
}

func NewAuthService(store UserStore, audit *Auditor, maxTries int, lockout time.Duration) *AuthService {
	return &AuthService{
		store:    store,
		audit:    audit,
		maxTries: maxTries,
		lockout:  lockout,
		now:      time.Now,
	}
}

// RegisterRequest is a voter registration submission. StudentID doubles as
// the login username.
type RegisterRequest struct {
	StudentID string `json:"student_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Password  string `json:"password"`
}

// Register validates and creates a voter account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, ip, ua string) (*models.User, error) {
	if !studentIDPattern.MatchString(req.StudentID) {
		return nil, validationErrorf("student ID must be 8-12 digits")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, validationErrorf("please enter a valid email address")
	}
	if req.FullName == "" {
		return nil, validationErrorf("please enter your full name")
	}
	if err := checkPasswordStrength(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.UserByUsername(ctx, req.StudentID); err == nil {
		return nil, validationErrorf("an account with this student ID already exists")
	} else if !errors.Is(err, storage.ErrNoRow) {
		return nil, err
	}
	if _, err := s.store.UserByEmail(ctx, req.Email); err == nil {
		return nil, validationErrorf("an account with this email already exists")
	} else if !errors.Is(err, storage.ErrNoRow) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     req.StudentID,
		PasswordHash: string(hash),
		Email:        req.Email,
		FullName:     req.FullName,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "user_registered", map[string]any{"username": user.Username}, &user.ID, nil, ip, ua)
	return user, nil
}

// Login authenticates a voter, maintaining the failed-attempt counter and the
// lockout window.
func (s *AuthService) Login(ctx context.Context, username, password, ip, ua string) (*models.User, error) {
	if !s.audit.Allow(ctx, ip, "login_attempt", int64(s.maxTries), 5*time.Minute) {
		s.audit.Record(ctx, "rate_limit_exceeded", map[string]any{"ip": ip}, nil, nil, ip, ua)
		return nil, ErrRateLimited
	}
	s.audit.Record(ctx, "login_attempt", map[string]any{"username": username}, nil, nil, ip, ua)

	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNoRow) {
		s.audit.Record(ctx, "login_attempt_unknown_user", map[string]any{"username": username}, nil, nil, ip, ua)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case user.LockedUntil != nil && user.LockedUntil.After(now):
		s.audit.Record(ctx, "login_attempt_locked_account", map[string]any{"username": username}, &user.ID, nil, ip, ua)
		return nil, ErrAccountLocked
	case !user.IsActive:
		s.audit.Record(ctx, "login_attempt_inactive_account", map[string]any{"username": username}, &user.ID, nil, ip, ua)
		return nil, ErrAccountInactive
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		user.FailedLoginAttempts++
		locked := false
		if user.FailedLoginAttempts >= s.maxTries {
			until := now.Add(s.lockout)
			user.LockedUntil = &until
			locked = true
		}
		if err := s.store.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, "login_failed", map[string]any{
			"username":        username,
			"failed_attempts": user.FailedLoginAttempts,
			"locked":          locked,
		}, &user.ID, nil, ip, ua)
		if locked {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "login_success", nil, &user.ID, nil, ip, ua)
	return user, nil
}

// AdminLogin authenticates an administrator with the same lockout policy.
func (s *AuthService) AdminLogin(ctx context.Context, username, password, ip, ua string) (*models.Admin, error) {
	if !s.audit.Allow(ctx, ip, "admin_login_attempt", int64(s.maxTries), 5*time.Minute) {
		return nil, ErrRateLimited
	}
	s.audit.Record(ctx, "admin_login_attempt", map[string]any{"username": username}, nil, nil, ip, ua)

	admin, err := s.store.AdminByUsername(ctx, username)
	if errors.Is(err, storage.ErrNoRow) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if admin.LockedUntil != nil && admin.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		admin.FailedLoginAttempts++
		if admin.FailedLoginAttempts >= s.maxTries {
			until := now.Add(s.lockout)
			admin.LockedUntil = &until
		}
		if err := s.store.SaveAdmin(ctx, admin); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, "admin_login_failed", map[string]any{"username": username}, nil, &admin.ID, ip, ua)
		return nil, ErrInvalidCredentials
	}

	admin.FailedLoginAttempts = 0
	admin.LockedUntil = nil
	admin.LastLogin = &now
	if err := s.store.SaveAdmin(ctx, admin); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, "admin_login_success", nil, nil, &admin.ID, ip, ua)
	return admin, nil
}

func checkPasswordStrength(password string) error {
	if len(password) < 8 {
		return validationErrorf("password must be at least 8 characters")
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return validationErrorf("password must contain an uppercase letter, a lowercase letter and a number")
	}
	return nil
}
