package http

import "net/http"

// NotFoundHandler returns a JSON 404 envelope for unknown routes, so API
// clients never see the stdlib plain-text fallback.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
}
