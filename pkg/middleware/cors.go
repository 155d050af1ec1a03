// Package middleware provides net/http middleware for the tiered
// key-value serving layer's raw Encore endpoints.
//
// This file translates original_source's post_cors/get_cors
// (src/api/utils.rs, warp::cors::Builder) to net/http — the allowed
// header and method lists are carried over verbatim from the Rust
// prototype; only the builder API changes.
package middleware

import "net/http"

// allowedHeaders is the exact header allow-list original_source granted
// on both its GET and POST routes.
var allowedHeaders = []string{
	"Accept",
	"User-Agent",
	"Sec-Fetch-Mode",
	"Referer",
	"Origin",
	"Access-Control-Request-Method",
	"Access-Control-Request-Headers",
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Headers",
	"Content-Type",
	"public_key",
	"address",
	"signature",
}

func joinHeaders() string {
	out := allowedHeaders[0]
	for _, h := range allowedHeaders[1:] {
		out += ", " + h
	}
	return out
}

// CORS wraps next with permissive cross-origin headers scoped to the given
// HTTP methods, the same shape original_source built per-route
// (post_cors() allowed only POST, get_cors() only GET).
func CORS(methods []string, next http.HandlerFunc) http.HandlerFunc {
	allowMethods := methods[0]
	for _, m := range methods[1:] {
		allowMethods += ", " + m
	}
	allowHeaders := joinHeaders()

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", allowMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
