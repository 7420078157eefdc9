package middleware

import (
	"net/http"
	"runtime/debug"

	"optionscore/pkg/utils"
)

// Recovery converts handler panics into 500 responses instead of taking the
// whole process down with them. The stack goes to the structured log.
func Recovery(next http.Handler) http.Handler {
	log := utils.L().WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Sugar().Errorw("handler panic",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
