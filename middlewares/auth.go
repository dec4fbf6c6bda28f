package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-orders/utils"
)

const (
	// AdminCookie carries the admin back office credential.
	AdminCookie = "admin_token"

	customerIDKey = "customerID"
	identityKey   = "identity"
)

type CredentialVerifier interface {
	Namespace() string
	Verify(raw string) (*utils.Identity, error)
}

// CustomerAuth requires a valid customer bearer token and stores the
// customer id on the context. Requests without one never reach the handler.
func CustomerAuth(tokens CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := tokens.Verify(utils.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			reject(c, tokens.Namespace(), err)
			return
		}
		c.Set(customerIDKey, identity.SubjectID)
		c.Set(identityKey, identity)
		c.Next()
	}
}

// AdminAuth requires a valid admin cookie whose token carries the admin flag.
func AdminAuth(tokens CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(AdminCookie)
		identity, err := tokens.Verify(raw)
		if err != nil {
			reject(c, tokens.Namespace(), err)
			return
		}
		if !identity.IsAdmin {
			reject(c, tokens.Namespace(), utils.ErrInsufficientPrivilege)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// CustomerID returns the id stored by CustomerAuth.
func CustomerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(customerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func reject(c *gin.Context, namespace string, err error) {
	switch {
	case errors.Is(err, utils.ErrInsufficientPrivilege):
		recordAuthFailure(namespace, "forbidden")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
	case errors.Is(err, utils.ErrMissingCredential):
		recordAuthFailure(namespace, "missing")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	default:
		recordAuthFailure(namespace, "invalid")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	}
}
