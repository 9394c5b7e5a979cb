package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMatchesAuditPattern(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"POST:/admin/flush", "POST:/admin/flush", true},
		{"DELETE:/admin/keys/user:", "DELETE:/admin/keys", true},
		{"GET:/admin/stats", "POST:/admin/flush", false},
		{"POST:/adm", "POST:/admin/flush", false},
	}
	for _, c := range cases {
		if got := matchesAuditPattern(c.path, c.pattern); got != c.want {
			t.Errorf("matchesAuditPattern(%q, %q) = %v, want %v", c.path, c.pattern, got, c.want)
		}
	}
}

func TestExtractResource(t *testing.T) {
	cases := []struct{ path, want string }{
		{"/admin/flush", "flush"},
		{"/admin/keys/user:", "keys"},
		{"/", ""},
	}
	for _, c := range cases {
		if got := extractResource(c.path); got != c.want {
			t.Errorf("extractResource(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	got := splitPath("/admin/keys/user:")
	want := []string{"admin", "keys", "user:"}
	if len(got) != len(want) {
		t.Fatalf("splitPath() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitPath()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAuditMiddlewarePassesThroughWithoutLogger(t *testing.T) {
	auditLogger = nil
	app := fiber.New()
	app.Use(AuditMiddleware())
	app.Post("/admin/flush", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("POST", "/admin/flush", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
