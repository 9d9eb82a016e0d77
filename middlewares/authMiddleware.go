package middlewares

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/farmadata/autofarma_backend/utils"
	"github.com/gin-gonic/gin"
)

type authString string

// AuthMiddleware validates bearer tokens. With AUTH_REQUIRED unset the
// middleware stays permissive (developer convenience); set it to true in
// production to reject unauthenticated calls.
func AuthMiddleware() gin.HandlerFunc {
	required := strings.EqualFold(strings.TrimSpace(os.Getenv("AUTH_REQUIRED")), "true")

	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			if required {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		customClaim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := context.WithValue(c.Request.Context(), authString("auth"), customClaim)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}
