// Package httpmiddleware provides net/http middleware: panic recovery,
// request IDs, CORS, rate limiting, and request logging.
package httpmiddleware

import "net/http"

// Middleware is a function that wraps an http.Handler. It is an alias so
// values interoperate with any router expecting the same shape.
type Middleware = func(http.Handler) http.Handler

// Wrap applies middlewares to h in reverse order, so the first middleware
// listed is the outermost.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
