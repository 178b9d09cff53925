package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/separator/internal/auth"
	"github.com/makeasinger/separator/internal/client"
	"github.com/makeasinger/separator/internal/config"
	"github.com/makeasinger/separator/internal/handler"
	"github.com/makeasinger/separator/internal/metrics"
	"github.com/makeasinger/separator/internal/middleware"
	"github.com/makeasinger/separator/internal/model"
	"github.com/makeasinger/separator/internal/scheduler"
	"github.com/makeasinger/separator/internal/service"
	"github.com/makeasinger/separator/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	sched *scheduler.Scheduler
	mr    *miniredis.Miniredis
}

// setupApp creates a Fiber app wired like main.go, backed by miniredis and
// a mock remote whose jobs finish on the first poll. Scheduler loops are
// not started; tests drive ticks explicitly.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := config.DefaultSchedulerConfig()
	cfg.PollRate = 0

	sched := scheduler.New(
		cfg,
		store.NewStatusStore(redisClient, cfg.StatusTTL),
		store.NewQueueStore(redisClient),
		store.NewQuotaStore(redisClient, cfg.QuotaIdleTTL),
		client.NewMockSeparator(0),
	)

	validate := validator.New()

	// r2 storage = nil → mock CDN URLs
	separationService := service.NewSeparationService(sched, nil)
	separationHandler := handler.NewSeparationHandler(separationService, validate)
	healthHandler := handler.NewHealthHandler(sched)

	// legacy HMAC only
	authenticator := auth.NewAuthenticator(nil, testJWTSecret)
	authHandler := handler.NewAuthHandler(authenticator)
	identify := middleware.NewAuthMiddleware(authenticator).Identify()
	rateLimiter := middleware.NewRateLimiter(redisClient)

	registry := prometheus.NewRegistry()
	for _, c := range metrics.Collectors() {
		registry.MustRegister(c)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", healthHandler.Health)
	app.Get("/stats", healthHandler.Stats)
	app.Get("/auth/verify", authHandler.Verify)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := app.Group("/api", identify)

	api.Post("/separate", separationHandler.Submit)
	separate := api.Group("/separate")
	separate.Post("/upload", separationHandler.Upload)
	// Use a very high limit so tests don't get blocked
	separate.Get("/status/:jobId", rateLimiter.StatusLimit(10000), separationHandler.Status)
	separate.Post("/cancel/:jobId", separationHandler.Cancel)

	return &testApp{app: app, sched: sched, mr: mr}
}

// dispatch runs one dispatch tick of the given class
func (ta *testApp) dispatch(p model.Priority) {
	ta.sched.DispatchTick(context.Background(), p)
}

// monitor runs one monitor sweep
func (ta *testApp) monitor() {
	ta.sched.MonitorTick(context.Background())
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(testJWTSecret, userID, userID+"@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request authenticated as userID.
func doAuthRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, userID)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doUpload posts a multipart form with one file part.
func doUpload(t *testing.T, app *fiber.App, filename, contentType string, content []byte, fields map[string]string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed to write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/separate/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode returns error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
