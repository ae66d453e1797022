package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin behaviour for browser clients of the
// storefront API.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to call the API. Empty, or a
	// single "*" entry, allows every origin.
	AllowOrigins []string

	// AllowMethods is sent on preflight responses. Defaults to the commerce
	// verbs: GET, POST, PUT, DELETE, OPTIONS.
	AllowMethods []string

	// AllowHeaders is sent on preflight responses. When empty the requested
	// headers are echoed back, which lets clients send X-Guest-ID and
	// Authorization without extra configuration.
	AllowHeaders []string

	// ExposeHeaders names response headers scripts may read. Defaults to
	// X-Request-ID so browser clients can report correlation IDs.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization on cross-origin
	// calls. The wildcard origin is never combined with credentials; the
	// middleware echoes the caller's specific origin instead.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0" to disable caching.
	MaxAge int
}

// cors holds the header values precomputed from a CORSConfig so the hot
// path only does map lookups and header writes.
type cors struct {
	allowAll    bool
	origins     map[string]string // lowercased origin -> configured casing
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

// CORS returns a middleware handling cross-origin requests, including
// preflight. Origin matching is case-insensitive but the configured casing
// is echoed back, and Vary headers are set so shared caches never serve a
// response tailored to one origin to another.
func CORS(cfg CORSConfig) Middleware {
	c := newCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Same-origin requests carry no Origin header. Still vary on it
			// so a cache shared with cross-origin traffic stays correct.
			if origin == "" {
				if !c.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}

			if !c.allowAll {
				w.Header().Add("Vary", "Origin")
			}
			if allow := c.match(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if c.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Expose-Headers", c.expose)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func newCORS(cfg CORSConfig) *cors {
	c := &cors{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.allowAll = true
			break
		}
		c.origins[strings.ToLower(o)] = o
	}

	// The Fetch spec forbids credentials with the wildcard origin, so echo
	// the specific origin instead.
	if c.credentials {
		c.allowAll = false
	}

	if c.methods == "" {
		c.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if c.expose == "" {
		c.expose = "X-Request-ID"
	}
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}

	return c
}

// match returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (c *cors) match(origin string) string {
	if c.allowAll {
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}

// preflight answers an OPTIONS probe with 204 and, for allowed origins,
// the full set of Access-Control headers.
func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := c.match(origin)
	if allow == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", c.methods)

	if c.headers != "" {
		h.Set("Access-Control-Allow-Headers", c.headers)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		h.Set("Access-Control-Allow-Headers", rh)
	}
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}
