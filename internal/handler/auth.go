package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/templui/accountable/internal/config"
	"github.com/templui/accountable/internal/ctxkeys"
	"github.com/templui/accountable/internal/model"
	"github.com/templui/accountable/internal/service"
	"github.com/templui/accountable/internal/validation"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	oauthStateCookie = "oauth_state"
	afterLoginPath   = "/dashboard"
)

// oauthProvider knows how to turn an access token into a verified email.
type oauthProvider struct {
	name   string
	config *oauth2.Config
	email  func(ctx context.Context, client *http.Client) (string, error)
}

type AuthHandler struct {
	authService    *service.AuthService
	profileService *service.ProfileService
	providers      map[string]*oauthProvider
	secureCookies  bool
}

func NewAuthHandler(authService *service.AuthService, profileService *service.ProfileService, cfg *config.Config) *AuthHandler {
	h := &AuthHandler{
		authService:    authService,
		profileService: profileService,
		providers:      map[string]*oauthProvider{},
		secureCookies:  cfg.IsProduction(),
	}

	if cfg.GoogleClientID != "" {
		h.providers["google"] = &oauthProvider{
			name: "google",
			config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  cfg.AppURL + "/auth/oauth/google/callback",
				Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
				Endpoint:     google.Endpoint,
			},
			email: googleEmail,
		}
	}
	if cfg.GitHubClientID != "" {
		h.providers["github"] = &oauthProvider{
			name: "github",
			config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				RedirectURL:  cfg.AppURL + "/auth/oauth/github/callback",
				Scopes:       []string{"user:email"},
				Endpoint:     github.Endpoint,
			},
			email: githubEmail,
		}
	}
	return h
}

type sessionResponse struct {
	User      *model.User    `json:"user"`
	Profile   *model.Profile `json:"profile,omitempty"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// startSession issues the JWT, sets the cookie and returns the body for
// clients that prefer the Bearer header.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) (*sessionResponse, error) {
	token, expiry, err := h.authService.GenerateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}
	h.authService.SetJWTCookie(w, token, expiry)

	profile, err := h.profileService.Get(r.Context(), user.ID)
	if err != nil {
		slog.Warn("failed to load profile for session", "error", err, "user_id", user.ID)
	}

	user.PasswordHash = nil
	return &sessionResponse{
		User:      user,
		Profile:   profile,
		Token:     token,
		ExpiresAt: expiry,
	}, nil
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.authService.Signup(r.Context(), body.Email, body.Password, body.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user.PasswordHash = nil
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":                  user,
		"verification_required": true,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.authService.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.startSession(w, r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearJWTCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// SendMagicLink always answers 202 so the endpoint cannot be used to probe
// which emails have accounts.
func (h *AuthHandler) SendMagicLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.authService.SendMagicLink(r.Context(), body.Email)
	if err != nil {
		var invalid *validation.Error
		if errors.As(err, &invalid) {
			writeError(w, r, err)
			return
		}
		slog.Warn("magic link send failed", "error", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// VerifyMagicLink is opened from the email, so it ends in a redirect.
func (h *AuthHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.VerifyMagicLink(r.Context(), r.PathValue("token"))
	if err != nil {
		slog.Warn("magic link verification failed", "error", err)
		http.Redirect(w, r, "/login?error=invalid_link", http.StatusSeeOther)
		return
	}

	_, err = h.startSession(w, r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.VerifyEmail(r.Context(), r.PathValue("token"))
	if err != nil {
		slog.Warn("email verification failed", "error", err)
		http.Redirect(w, r, "/login?error=invalid_link", http.StatusSeeOther)
		return
	}

	_, err = h.startSession(w, r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
}

// Me returns the signed-in user with their profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	profile, err := h.profileService.Get(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "profile": profile})
}

// CSRF hands the double-submit token to clients that cannot read cookies.
func (h *AuthHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": ctxkeys.CSRFToken(r.Context())})
}

// OAuthStart redirects to the provider's consent screen.
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Unknown login provider")
		return
	}

	state := generateOAuthState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})

	http.Redirect(w, r, provider.config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[r.PathValue("provider")]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Unknown login provider")
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		slog.Warn("oauth state validation failed", "provider", provider.name, "error", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		slog.Warn("oauth callback missing code", "provider", provider.name)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	token, err := provider.config.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("oauth token exchange failed", "provider", provider.name, "error", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	email, err := provider.email(r.Context(), provider.config.Client(r.Context(), token))
	if err != nil || email == "" {
		slog.Error("failed to get oauth email", "provider", provider.name, "error", err)
		http.Redirect(w, r, "/login?error=oauth_email", http.StatusSeeOther)
		return
	}

	user, err := h.authService.AuthenticateOAuth(r.Context(), email, provider.name)
	if err != nil {
		slog.Error("oauth authentication failed", "provider", provider.name, "error", err)
		http.Redirect(w, r, "/login?error=oauth", http.StatusSeeOther)
		return
	}

	_, err = h.startSession(w, r, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, afterLoginPath, http.StatusSeeOther)
}

func googleEmail(ctx context.Context, client *http.Client) (string, error) {
	var info struct {
		Email string `json:"email"`
	}
	err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &info)
	return info.Email, err
}

// githubEmail falls back to the emails endpoint when the profile email is private.
func githubEmail(ctx context.Context, client *http.Client) (string, error) {
	var info struct {
		Email string `json:"email"`
	}
	err := getJSON(ctx, client, "https://api.github.com/user", &info)
	if err != nil {
		return "", err
	}
	if info.Email != "" {
		return info.Email, nil
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	err = getJSON(ctx, client, "https://api.github.com/user/emails", &emails)
	if err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func generateOAuthState() string {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		panic("failed to generate oauth state: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
