package auth

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/communityfix/maintenance-service/internal/domain"
)

func newProtectedApp(tm *TokenManager) *fiber.App {
	app := fiber.New()
	m := NewAuthMiddleware(tm)
	app.Get("/whoami", m.Handle, func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(principal.UserID + ":" + string(principal.Role))
	})
	return app
}

func TestAuthMiddlewareLoadsPrincipal(t *testing.T) {
	tm := NewTokenManager("middleware-secret")
	app := newProtectedApp(tm)

	signed, err := tm.GenerateToken("user-1", domain.RoleTechnician, "c-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if got := string(body); got != "user-1:technician" {
		t.Errorf("body = %q, want user-1:technician", got)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	tm := NewTokenManager("middleware-secret")
	app := newProtectedApp(tm)

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == fiber.StatusOK {
		t.Fatal("request without a token was allowed through")
	}
}

func TestAuthMiddlewareRejectsForgedToken(t *testing.T) {
	forger := NewTokenManager("attacker-secret")
	app := newProtectedApp(NewTokenManager("middleware-secret"))

	signed, err := forger.GenerateToken("user-1", domain.RoleManager, "c-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == fiber.StatusOK {
		t.Fatal("forged token was accepted")
	}
}
