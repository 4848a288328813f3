package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/go-review-backend/internal/identity"
)

// GinKeyUserID is the Gin context key downstream middleware (idempotency,
// rate limiting) reads the acting user id from.
const GinKeyUserID = "userID"

// Auth resolves the acting identity for a request and stashes it in both the
// request context (for services) and the Gin context (for sibling middleware).
//
// Resolution order:
//  1. "Authorization: Bearer <jwt>" verified by the provided verifier.
//  2. "X-User-ID" demo header, which yields an unverified identity whose
//     display name is the id itself. Demo deployments only; real installs
//     should front this with a gateway that strips the header.
//
// Requests without either proceed anonymously. Read endpoints are public;
// mutation authorization happens in the service layer against the identity
// stored here, so a missing identity is not an error at this point.
func Auth(verifier *identity.JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user *identity.User

		if raw := bearerToken(c.GetHeader("Authorization")); raw != "" && verifier != nil {
			if u, err := verifier.Parse(raw); err == nil {
				user = u
			}
		}
		if user == nil {
			if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
				user = &identity.User{ID: id, Name: id}
			}
		}

		if user != nil {
			c.Set(GinKeyUserID, user.ID)
			c.Request = c.Request.WithContext(identity.WithUser(c.Request.Context(), user))
		}
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value, or "".
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
