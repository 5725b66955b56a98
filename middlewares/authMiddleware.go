package middlewares

import (
	"errors"
	"net/http"

	"github.com/erpweb/erp_backend/utils"
	"github.com/gin-gonic/gin"
)

const unauthorizedMessage = "未授權的請求"

var errInvalidToken = errors.New("invalid token")

// AuthMiddleware rejects requests without a valid bearer token and puts
// the token holder into the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": unauthorizedMessage})
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": unauthorizedMessage})
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), claims.ID)
		ctx = utils.SetUsernameInContext(ctx, claims.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ValidateToken returns the claims of a valid, unexpired token.
func ValidateToken(token string) (*utils.JwtCustomClaim, error) {
	validate, err := utils.JwtValidate(token)
	if err != nil {
		return nil, err
	}
	claims, ok := validate.Claims.(*utils.JwtCustomClaim)
	if !ok || !validate.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
