// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/simbiat/fftracker/internal/model"
)

// DefaultSessionCookieName はセッションIDを保持するCookieのデフォルト名。
const DefaultSessionCookieName = "session_id"

// ErrNoUserID はコンテキストにユーザーIDがない場合に返される。
var ErrNoUserID = errors.New("コンテキストにユーザーIDがありません")

type contextKey struct{}

var userIDContextKey contextKey

// SessionFinder はセッションを参照する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのセッションIDからユーザーIDを解決し、コンテキストに格納する。
// セッションがない、または期限切れの場合は401を返す。
// セッションストアが利用できない場合は503を返す。
func NewSessionMiddleware(sessionFinder SessionFinder, cookieName string, logger *slog.Logger) func(next http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				logger.Error("セッションの取得に失敗しました",
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSourceUnavailableError())
				return
			}
			if session == nil || session.UserID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), session.UserID)))
		})
	}
}

// UserIDFromContext はNewSessionMiddlewareが格納したユーザーIDを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserID
	}
	return userID, nil
}

// ContextWithUserID はユーザーIDを格納したコンテキストを返す。
// アクセスログにもユーザーIDを記録する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if rl := requestLogFrom(ctx); rl != nil {
		rl.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
