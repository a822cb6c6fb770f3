//go:build integration

package integration

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/notify-garden/internal/app"
	"github.com/bissquit/notify-garden/internal/config"
	"github.com/bissquit/notify-garden/internal/identity/jwt"
	"github.com/bissquit/notify-garden/internal/testutil"
)

const (
	testJWTSecret = "integration-test-secret"

	// OpenAPI spec path relative to the tests/integration directory.
	openAPISpecPath = "../../api/openapi/openapi.yaml"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
	testAuth      *jwt.Authenticator
	redisURL      string
	postgresURL   string

	// webhookSink is the default webhook endpoint; individual tests point
	// notifications at their own servers via the webhook_url metadata key.
	webhookSink *httptest.Server
)

// newTestClient creates a client authenticated as the given user, with
// OpenAPI response validation enabled.
func newTestClient(t *testing.T, userID string) *testutil.Client {
	t.Helper()

	token, err := testAuth.GenerateAccessToken(userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client.WithToken(token)
}

// testConfig builds an app config pointing at the test containers. The
// queue timings are tightened so delivery tests settle in seconds.
func testConfig() *config.Config {
	cfg := config.Default()

	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"

	cfg.Database.URL = postgresURL
	cfg.Database.MigrationsPath = "../../migrations"
	cfg.Database.MaxOpenConns = 5
	cfg.Database.ConnectAttempts = 3

	cfg.Redis.URL = redisURL

	cfg.Log.Level = "error"
	cfg.Log.Format = "text"

	cfg.JWT.SecretKey = testJWTSecret

	// High enough that the suite itself never trips the limiter; the
	// dedicated rate limit test runs its own instance with a low limit.
	cfg.RateLimit.MaxRequests = 1000
	cfg.RateLimit.Window = time.Minute

	cfg.Queue.PollInterval = 100 * time.Millisecond
	cfg.Queue.InitialBackoff = 100 * time.Millisecond
	cfg.Queue.MaxBackoff = time.Second
	cfg.Queue.LockTimeout = time.Minute

	cfg.Channels.Webhook.URL = webhookSink.URL
	cfg.Channels.Webhook.Timeout = 5 * time.Second

	return &cfg
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()
	postgresURL = pgContainer.ConnectionString

	redisContainer, err := testutil.NewRedisContainer(ctx)
	if err != nil {
		log.Fatalf("start redis: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			log.Printf("terminate redis: %v", err)
		}
	}()
	redisURL = redisContainer.URL

	webhookSink = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer webhookSink.Close()

	application, err := app.New(testConfig())
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Direct DB access for tests that inspect persisted state.
	testDB, err = pgxpool.New(ctx, postgresURL)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	testAuth = jwt.NewAuthenticator(jwt.Config{SecretKey: testJWTSecret})

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
