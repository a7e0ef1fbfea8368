package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/rs/cors"
)

// DefaultAllowedHeaders are the request headers browsers may send to the API.
var DefaultAllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// CORSConfig lists what cross-origin callers may do.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAge         int
}

// CORS answers preflight requests with an empty 200 and adds the
// Access-Control-* headers to every response. The API is public, so the
// default is any origin.
//
// WHY A WRAPPER AROUND rs/cors?
// rs/cors only writes Access-Control-Allow-Origin when the request carries an
// Origin header. With a wildcard origin list the headers are static, so they
// are set up front on every response, Origin or not. rs/cors still handles
// preflight and overwrites the same keys when Origin is present.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultAllowedHeaders
	}

	c := cors.New(cors.Options{
		AllowedOrigins:       origins,
		AllowedMethods:       []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:       headers,
		MaxAge:               cfg.MaxAge,
		OptionsSuccessStatus: http.StatusOK,
	})
	if !slices.Contains(origins, "*") {
		return c.Handler
	}

	allowHeaders := strings.Join(headers, ", ")
	return func(next http.Handler) http.Handler {
		h := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			h.ServeHTTP(w, r)
		})
	}
}
