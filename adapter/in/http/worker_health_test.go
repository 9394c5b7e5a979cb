package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandlerAlwaysOK(t *testing.T) {
	app := fiber.New()
	NewHealthHandler("redis", fakePinger{}).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("GET /health status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyHandlerHealthyBackend(t *testing.T) {
	app := fiber.New()
	NewHealthHandler("redis", fakePinger{}).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("GET /ready status = %d, want 200", resp.StatusCode)
	}
}

func TestReadyHandlerUnhealthyBackend(t *testing.T) {
	app := fiber.New()
	NewHealthHandler("redis", fakePinger{err: errors.New("timeout")}).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("GET /ready status = %d, want 503", resp.StatusCode)
	}
}

func TestReadyHandlerNilBackend(t *testing.T) {
	app := fiber.New()
	NewHealthHandler("redis", nil).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("GET /ready status = %d, want 503", resp.StatusCode)
	}
}
