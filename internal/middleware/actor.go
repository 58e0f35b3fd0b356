package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/lab-api/pkg/auth"
)

// Actor extracts the acting user from an optional bearer token and
// attaches it to the request context for audit attribution. It never
// rejects a request: identity enforcement belongs to the gateway, and
// every operation here also works for anonymous callers.
func Actor(parser *auth.TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			actorID, err := parser.ParseActor(token)
			if err != nil {
				log.Debug().
					Err(err).
					Str("request_id", c.GetString(ContextRequestID)).
					Msg("ignoring unparseable bearer token")
			} else {
				c.Request = c.Request.WithContext(
					auth.ContextWithActor(c.Request.Context(), actorID))
			}
		}
		c.Next()
	}
}
