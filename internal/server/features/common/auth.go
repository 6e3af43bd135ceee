package common

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"
)

// SessionName is the cookie under which the signed session rides.
const SessionName = "marketlens"

const sessionUserKey = "user_id"

type contextKey struct{ name string }

var userIDKey = &contextKey{"user_id"}

// SignIn stores the user id in the cookie session.
func SignIn(w http.ResponseWriter, r *http.Request, store sessions.Store, userID int64) error {
	sess, _ := store.Get(r, SessionName)
	sess.Values[sessionUserKey] = userID
	return sess.Save(r, w)
}

// SignOut clears the cookie session.
func SignOut(w http.ResponseWriter, r *http.Request, store sessions.Store) error {
	sess, _ := store.Get(r, SessionName)
	delete(sess.Values, sessionUserKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// SessionUserID reads the signed-in user id from the request cookie.
func SessionUserID(r *http.Request, store sessions.Store) (int64, bool) {
	sess, err := store.Get(r, SessionName)
	if err != nil {
		return 0, false
	}
	id, ok := sess.Values[sessionUserKey].(int64)
	return id, ok && id > 0
}

// RequireUser rejects unauthenticated requests and otherwise threads
// the user id through the request context.
func RequireUser(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := SessionUserID(r, store)
			if !ok {
				Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// WithUserID returns ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated user id from ctx.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
