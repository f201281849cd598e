package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	maxAgeSeconds  = "600"
)

type originPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{allowAll: len(allowed) == 0, origins: make(map[string]struct{}, len(allowed))}
	for _, origin := range allowed {
		p.origins[normalizeOrigin(origin)] = struct{}{}
	}
	return p
}

func (p originPolicy) permits(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}

// New builds a CORS middleware admitting the configured origins. An empty
// list allows every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)

	return func(c *gin.Context) {
		header := c.Writer.Header()
		switch origin := c.GetHeader("Origin"); {
		case origin != "" && policy.permits(origin):
			header.Set("Access-Control-Allow-Origin", origin)
		case origin == "" && policy.allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Allow-Methods", allowedMethods)
		header.Set("Access-Control-Max-Age", maxAgeSeconds)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
