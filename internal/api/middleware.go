package api

import "net/http"

// withCORS applies the blanket CORS policy spec.md §6 requires for every
// /api/* route and answers preflight OPTIONS requests with 200 and no
// body, mirroring the single Access-Control-Allow-Origin header the
// teacher's SSE handler sets, generalized here to every route.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
