package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/communityfix/maintenance-service/internal/domain"
	apperrors "github.com/communityfix/maintenance-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller, taken from the validated
// token. Identity records live in an external service; the engine trusts the
// signed claims.
type Principal struct {
	UserID      string
	Name        string
	Role        domain.Role
	CommunityID string
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{
		UserID:      claims.UserID,
		Name:        claims.Name,
		Role:        claims.Role,
		CommunityID: claims.CommunityID,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
