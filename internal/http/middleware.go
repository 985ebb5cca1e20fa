package http

import (
	"net/http"
	"runtime/debug"
	"time"

	"labcafe/internal/auth"
	"labcafe/internal/domain"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func Recoverer(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.WithFields(logrus.Fields{
						"method":     r.Method,
						"path":       r.URL.Path,
						"request_id": middleware.GetReqID(r.Context()),
						"panic":      rec,
					}).Error("panic recovered\n" + string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody(domain.NewError(domain.CodeServerError, "internal server error")))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Logger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true})
}

func Timeout(next http.Handler) http.Handler {
	return middleware.Timeout(60 * time.Second)(next)
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves the bearer token into an actor stored on the request context.
func Authenticate(authn *auth.Authenticator, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authn.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				respondError(log, w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.ActorFromContext(r.Context()).IsAdmin() {
			writeJSON(w, http.StatusForbidden, errorBody(domain.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}
