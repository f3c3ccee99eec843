package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/utils"
)

const RoleAdmin = "admin"

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden for company")
)

type authString string

// AuthMiddleware validates an optional bearer token and copies its claims into the
// request context. Requests without a token pass through unless AUTH_REQUIRED is set.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			if config.BoolFromEnv("AUTH_REQUIRED", false) {
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
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetUserIdInContext(ctx, customClaim.ID)
		ctx = utils.SetRoleInContext(ctx, customClaim.Role)
		if customClaim.Role == RoleAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CtxValue(ctx context.Context) *utils.JwtCustomClaim {
	raw, _ := ctx.Value(authString("auth")).(*utils.JwtCustomClaim)
	return raw
}

// AuthorizeCompany checks the caller may act on companyCode. Admins may act on any company;
// anonymous callers are allowed only when AUTH_REQUIRED is off.
func AuthorizeCompany(ctx context.Context, companyCode string) error {
	claim := CtxValue(ctx)
	if claim == nil {
		if config.BoolFromEnv("AUTH_REQUIRED", false) {
			return ErrUnauthorized
		}
		return nil
	}
	if claim.Role == RoleAdmin {
		return nil
	}
	if !strings.EqualFold(claim.CompanyCode, companyCode) {
		return ErrForbidden
	}
	return nil
}
