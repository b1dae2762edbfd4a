// auth.go — middleware аутентификации по cookie сессии.
// Сессия (JWT) разбирается один раз на запрос; результат кладётся в контекст
// как auth.Identity. Выбранный проект берётся из отдельной cookie.
// Обработчики cookie не читают.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/stockflow/internal/api/errors"
	"github.com/bigkaa/stockflow/internal/auth"
	"github.com/bigkaa/stockflow/internal/domain/rbac"
)

// SessionVerifier проверяет токен сессии.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// SessionAuth — middleware аутентификации.
type SessionAuth struct {
	verifier      SessionVerifier
	sessionCookie string
	projectCookie string
	logger        *slog.Logger
}

// NewSessionAuth создаёт middleware. sessionCookie — cookie с JWT,
// projectCookie — cookie с идентификатором выбранного проекта.
func NewSessionAuth(verifier SessionVerifier, sessionCookie, projectCookie string, logger *slog.Logger) *SessionAuth {
	return &SessionAuth{
		verifier:      verifier,
		sessionCookie: sessionCookie,
		projectCookie: projectCookie,
		logger:        logger.With(slog.String("component", "session_auth")),
	}
}

// Middleware возвращает HTTP middleware. Без валидной сессии — 401.
func (a *SessionAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := a.sessionToken(r)
			if token == "" {
				apierrors.Unauthorized(w, "Authentication required.")
				return
			}

			id, err := a.verifier.Verify(r.Context(), token)
			if err != nil {
				a.logger.Debug("Сессия не прошла проверку",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Invalid or expired session.")
				return
			}

			if c, err := r.Cookie(a.projectCookie); err == nil {
				id.SelectedProjectID = strings.TrimSpace(c.Value)
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// sessionToken берёт токен из cookie, иначе из заголовка Authorization: Bearer.
func (a *SessionAuth) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(a.sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SkipPaths оборачивает middleware, пропуская запросы к указанным путям.
func SkipPaths(mw func(http.Handler) http.Handler, paths ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		protected := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range paths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			protected.ServeHTTP(w, r)
		})
	}
}

// RequireRole пропускает только указанные роли.
// Используется после SessionAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			if id == nil {
				apierrors.Unauthorized(w, "Authentication required.")
				return
			}
			if !rbac.HasAnyRole(id.Role, roles...) {
				apierrors.Forbidden(w, "Insufficient permissions: requires role "+strings.Join(roles, " or ")+".")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
