package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/lims_backend/utils"
)

// IdentityMiddleware lifts the caller identity from the gateway headers into
// the request context. Authentication itself happens upstream (the identity
// provider sits in front of this service); an absent header just means the
// audit fields fall back to "unknown".
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if email := c.GetHeader("X-User-Email"); email != "" {
			ctx = utils.SetActorEmailInContext(ctx, email)
		}
		if name := c.GetHeader("X-User-Name"); name != "" {
			ctx = utils.SetActorNameInContext(ctx, name)
		}
		if branch := c.GetHeader("X-Branch-Code"); branch != "" {
			ctx = utils.SetBranchCodeInContext(ctx, branch)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationMiddleware attaches a correlation id to every request,
// generating one when the caller did not send x-correlation-id.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}
