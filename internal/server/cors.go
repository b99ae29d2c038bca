package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

var corsAllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// CORSMiddleware adapts go-chi/cors to gin. Preflight requests are answered by
// cors itself and never reach the route handlers.
func CORSMiddleware() gin.HandlerFunc {
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   corsAllowedHeaders,
		AllowCredentials: false,
		MaxAge:           300,
	})

	return func(c *gin.Context) {
		// cors only answers requests that carry an Origin; server-to-server callers get the header too.
		c.Header("Access-Control-Allow-Origin", "*")

		passed := false
		handler.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}
