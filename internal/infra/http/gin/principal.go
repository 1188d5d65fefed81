package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/domain/chat"
)

const principalContextKey = "marketchat.principal"

// principal is the sender identity resolved by the upstream gateway.
// Authentication itself happens outside this core; the gateway attaches
// the already-verified (kind, id, name) triple as headers.
type principal struct {
	Actor chat.Actor
	Name  string
}

// PrincipalMiddleware reads the trusted identity headers. Requests without
// them pass through unauthenticated; handlers reject where identity is
// required.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Actor-Kind")))
		id := strings.TrimSpace(c.GetHeader("X-Actor-ID"))
		if kind == "" || id == "" {
			c.Next()
			return
		}
		actor := chat.Actor{Kind: chat.ActorKind(kind), ID: id}
		if !actor.Valid() {
			c.Next()
			return
		}
		c.Set(principalContextKey, principal{
			Actor: actor,
			Name:  strings.TrimSpace(c.GetHeader("X-Actor-Name")),
		})
		c.Next()
	}
}

func requirePrincipal(c *gin.Context) (principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return principal{}, false
	}
	p, ok := v.(principal)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return principal{}, false
	}
	return p, true
}
