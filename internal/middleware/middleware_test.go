package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/auth"
	"github.com/makeasinger/separator/internal/model"
)

const testSecret = "test-secret"

func whoAmI(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c))
}

func doGet(t *testing.T, app *fiber.App, header, value string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/me", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestIdentify(t *testing.T) {
	m := NewAuthMiddleware(auth.NewAuthenticator(nil, testSecret))
	app := fiber.New()
	app.Get("/me", m.Identify(), whoAmI)

	token, err := auth.IssueLegacyToken(testSecret, "user-42", "u@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := auth.IssueLegacyToken(testSecret, "user-42", "u@example.com", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := auth.IssueLegacyToken("other-secret", "user-42", "u@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"no credentials", "", 200, model.AnonymousUser},
		{"valid token", "Bearer " + token, 200, "user-42"},
		{"bad token", "Bearer nope", 401, ""},
		{"expired token", "Bearer " + expired, 401, ""},
		{"wrong secret", "Bearer " + foreign, 401, ""},
		{"bad scheme", "Basic abc", 401, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := ""
			if tt.header != "" {
				header = "Authorization"
			}
			status, body := doGet(t, app, header, tt.header)
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d (%s)", tt.wantStatus, status, body)
			}
			if tt.wantUser != "" && body != tt.wantUser {
				t.Errorf("expected user %q, got %q", tt.wantUser, body)
			}
		})
	}
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), whoAmI)

	if _, body := doGet(t, app, "X-User-Id", "gw-user"); body != "gw-user" {
		t.Errorf("expected gw-user, got %q", body)
	}
	if _, body := doGet(t, app, "", ""); body != model.AnonymousUser {
		t.Errorf("expected anonymous, got %q", body)
	}
}

func TestStatusLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), NewRateLimiter(rdb).StatusLimit(2), whoAmI)

	for i := 0; i < 2; i++ {
		if status, _ := doGet(t, app, "X-User-Id", "poller"); status != 200 {
			t.Fatalf("request %d: expected 200, got %d", i+1, status)
		}
	}
	if status, _ := doGet(t, app, "X-User-Id", "poller"); status != 429 {
		t.Fatalf("expected 429, got %d", status)
	}
	if status, _ := doGet(t, app, "X-User-Id", "someone-else"); status != 200 {
		t.Errorf("other users keep their own budget, got %d", status)
	}

	mr.FastForward(time.Minute)
	if status, _ := doGet(t, app, "X-User-Id", "poller"); status != 200 {
		t.Errorf("expected the window to reset, got %d", status)
	}
}
