package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ginContextKey struct{}

// tracing starts a server span per request through otelhttp. The span is named
// after the matched route and its context replaces the request context, so
// downstream spans and event metadata join the same trace.
func tracing(service string) gin.HandlerFunc {
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		c := r.Context().Value(ginContextKey{}).(*gin.Context)
		c.Request = r
		c.Next()
	})

	handler := otelhttp.NewHandler(next, service,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if c, ok := r.Context().Value(ginContextKey{}).(*gin.Context); ok && c.FullPath() != "" {
				return r.Method + " " + c.FullPath()
			}
			return r.Method
		}),
	)

	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), ginContextKey{}, c)
		handler.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
	}
}
