package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/templui/accountable/internal/clock"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/repository"
	"github.com/templui/accountable/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

const AuthCookieName = "auth_token"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrPasswordless       = errors.New("this account uses passwordless login, use the magic link option")
	ErrInvalidToken       = errors.New("invalid or expired link")
	ErrInvalidJWT         = errors.New("invalid token")
)

type AuthConfig struct {
	JWTSecret              string
	JWTExpiry              time.Duration
	TokenEmailVerifyExpiry time.Duration
	TokenMagicLinkExpiry   time.Duration
	RequireVerifiedEmail   bool
	SecureCookies          bool
}

type AuthService struct {
	userRepository    repository.UserRepository
	profileRepository repository.ProfileRepository
	tokenRepository   repository.TokenRepository
	profileService    *ProfileService
	emailService      *EmailService
	clock             clock.Clock
	cfg               AuthConfig
}

func NewAuthService(
	userRepository repository.UserRepository,
	profileRepository repository.ProfileRepository,
	tokenRepository repository.TokenRepository,
	profileService *ProfileService,
	emailService *EmailService,
	clk clock.Clock,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		userRepository:    userRepository,
		profileRepository: profileRepository,
		tokenRepository:   tokenRepository,
		profileService:    profileService,
		emailService:      emailService,
		clock:             clk,
		cfg:               cfg,
	}
}

// Signup creates an unverified password account with its profile and sends
// the verification email.
func (s *AuthService) Signup(ctx context.Context, email, password, username string) (*model.User, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateUsername(username)
	if err != nil {
		return nil, err
	}

	_, err = s.profileRepository.ByUsername(ctx, username)
	if err == nil {
		return nil, repository.ErrDuplicateUsername
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: &hash,
		CreatedAt:    s.clock.Now(),
	}
	err = s.userRepository.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.profileRepository.Create(ctx, &model.Profile{
		UserID:    user.ID,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		// Roll back the user so the email can sign up again.
		delErr := s.userRepository.Delete(ctx, user.ID)
		if delErr != nil {
			slog.Error("failed to delete user during rollback", "error", delErr, "user_id", user.ID)
		}
		return nil, err
	}

	err = s.SendVerification(ctx, user, username)
	if err != nil {
		slog.Error("failed to send verification email", "error", err, "user_id", user.ID)
	}

	slog.Info("user signed up", "user_id", user.ID, "username", username)
	return user, nil
}

// SendVerification issues a fresh email verification token.
func (s *AuthService) SendVerification(ctx context.Context, user *model.User, username string) error {
	token, err := s.issueToken(ctx, user.ID, model.TokenTypeEmailVerify, s.cfg.TokenEmailVerifyExpiry)
	if err != nil {
		return err
	}
	return s.emailService.SendVerificationEmail(ctx, user.Email, token, username)
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	user, err := s.consume(ctx, token, model.TokenTypeEmailVerify)
	if err != nil {
		return nil, err
	}

	if user.EmailVerifiedAt == nil {
		err = s.markVerified(ctx, user)
		if err != nil {
			return nil, err
		}

		username := ""
		profile, err := s.profileRepository.ByUserID(ctx, user.ID)
		if err == nil {
			username = profile.Username
		}
		err = s.emailService.SendWelcomeEmail(ctx, user.Email, username)
		if err != nil {
			slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
		}
	}

	slog.Info("email verified", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepository.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return nil, ErrPasswordless
	}

	err = s.ComparePassword(password, *user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if s.cfg.RequireVerifiedEmail && !user.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	return user, nil
}

// SendMagicLink emails a one-time login link. Unknown emails get a new
// passwordless account; the profile is created on first fetch.
func (s *AuthService) SendMagicLink(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	err := validation.ValidateEmail(email)
	if err != nil {
		return err
	}

	user, err := s.userRepository.ByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		user = &model.User{Email: email, CreatedAt: s.clock.Now()}
		err = s.userRepository.Create(ctx, user)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new passwordless user created", "user_id", user.ID)
	} else if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID, model.TokenTypeMagicLink, s.cfg.TokenMagicLinkExpiry)
	if err != nil {
		return err
	}

	err = s.emailService.SendMagicLinkEmail(ctx, user.Email, token)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("magic link sent", "user_id", user.ID)
	return nil
}

// VerifyMagicLink logs the user in and marks the email verified.
func (s *AuthService) VerifyMagicLink(ctx context.Context, token string) (*model.User, error) {
	user, err := s.consume(ctx, token, model.TokenTypeMagicLink)
	if err != nil {
		return nil, err
	}

	if user.EmailVerifiedAt == nil {
		err = s.markVerified(ctx, user)
		if err != nil {
			slog.Warn("failed to verify email", "error", err, "user_id", user.ID)
		}
	}

	_, err = s.profileService.Get(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to ensure profile", "error", err, "user_id", user.ID)
	}

	slog.Info("user authenticated via magic link", "user_id", user.ID)
	return user, nil
}

// AuthenticateOAuth finds or creates the user for a provider-verified email.
func (s *AuthService) AuthenticateOAuth(ctx context.Context, email, provider string) (*model.User, error) {
	email = normalizeEmail(email)
	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user, err := s.userRepository.ByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		user = &model.User{Email: email, EmailVerifiedAt: &now, CreatedAt: now}
		err = s.userRepository.Create(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		slog.Info("new OAuth user created", "user_id", user.ID, "provider", provider)
	case err != nil:
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	case user.EmailVerifiedAt == nil:
		err = s.markVerified(ctx, user)
		if err != nil {
			slog.Warn("failed to mark email as verified", "error", err, "user_id", user.ID)
		}
	}

	_, err = s.profileService.Get(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to ensure profile", "error", err, "user_id", user.ID)
	}

	slog.Info("user authenticated via OAuth", "user_id", user.ID, "provider", provider)
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.userRepository.ByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.HasPassword() {
		err = s.ComparePassword(current, *user.PasswordHash)
		if err != nil {
			return ErrInvalidCredentials
		}
	}

	err = validation.ValidatePassword(next)
	if err != nil {
		return err
	}

	hash, err := s.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = &hash

	err = s.userRepository.Update(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password changed", "user_id", userID)
	return nil
}

func (s *AuthService) consume(ctx context.Context, token, tokenType string) (*model.User, error) {
	t, err := s.tokenRepository.ConsumeToken(ctx, token, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if t.Type != tokenType || t.IsExpired(s.clock.Now()) {
		return nil, ErrInvalidToken
	}

	return s.userRepository.ByID(ctx, t.UserID)
}

func (s *AuthService) issueToken(ctx context.Context, userID, tokenType string, ttl time.Duration) (string, error) {
	err := s.tokenRepository.DeleteByUserAndType(ctx, userID, tokenType)
	if err != nil {
		slog.Warn("failed to delete old tokens", "error", err, "user_id", userID, "type", tokenType)
	}

	value, err := GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.clock.Now()
	err = s.tokenRepository.Create(ctx, &model.Token{
		UserID:    userID,
		Type:      tokenType,
		Token:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return value, nil
}

func (s *AuthService) markVerified(ctx context.Context, user *model.User) error {
	now := s.clock.Now()
	user.EmailVerifiedAt = &now
	return s.userRepository.Update(ctx, user)
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *AuthService) GenerateJWT(user *model.User) (string, time.Time, error) {
	now := s.clock.Now()
	expiry := now.Add(s.cfg.JWTExpiry)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     expiry.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}

// VerifyJWT returns the user id carried by a valid token.
func (s *AuthService) VerifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidJWT, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidJWT
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidJWT
	}
	return userID, nil
}

func (s *AuthService) SetJWTCookie(w http.ResponseWriter, token string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Expires:  expiry,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *AuthService) ClearJWTCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
