package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

const callerKey = "caller"

// Claims are the JWT claims accepted by the API. The subject is the user ID.
type Claims struct {
	Role     domain.Role `json:"role"`
	DriverID string      `json:"driver_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token and stores the caller in the context.
func Auth(secret []byte) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		caller, err := callerFromClaims(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

func callerFromClaims(claims *Claims) (service.Caller, error) {
	if claims.Subject == "" {
		return service.Caller{}, errors.New("token has no subject")
	}
	switch claims.Role {
	case domain.RolePassenger, domain.RoleAdmin:
	case domain.RoleDriver:
		if claims.DriverID == "" {
			return service.Caller{}, errors.New("driver token has no driver_id")
		}
	default:
		return service.Caller{}, errors.New("token has unknown role")
	}
	return service.Caller{
		UserID:   claims.Subject,
		DriverID: claims.DriverID,
		Role:     claims.Role,
	}, nil
}

// RequireRole rejects callers whose role is not listed. Must run after Auth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, r := range roles {
			if caller.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

// CallerFrom returns the authenticated caller.
func CallerFrom(c *gin.Context) (service.Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return service.Caller{}, false
	}
	caller, ok := v.(service.Caller)
	return caller, ok
}
