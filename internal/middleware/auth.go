package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/templui/accountable/internal/ctxkeys"
	"github.com/templui/accountable/internal/service"
)

// AuthMiddleware resolves the JWT from the auth cookie or a Bearer header
// and puts the user in the context when it is valid.
func AuthMiddleware(authService *service.AuthService, userService *service.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := bearerToken(r)
			if token == "" {
				cookie, err := r.Cookie(service.AuthCookieName)
				if err != nil {
					// No credentials, continue without auth
					next.ServeHTTP(w, r)
					return
				}
				token = cookie.Value
			}

			userID, err := authService.VerifyJWT(token)
			if err != nil {
				if !bearer {
					authService.ClearJWTCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := userService.ByID(r.Context(), userID)
			if err != nil {
				if !bearer {
					authService.ClearJWTCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			// Security: Remove password hash from context
			user.PasswordHash = nil

			ctx := ctxkeys.WithUser(r.Context(), user)
			if bearer {
				ctx = ctxkeys.WithBearer(ctx)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth answers 401 when no user is in the context.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) == nil {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

// RequireGuest rejects requests that already carry a session.
func RequireGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.User(r.Context()) != nil {
			writeJSONError(w, http.StatusConflict, "Already signed in")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
