//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/promptforge-app/promptforge/internal/audit"
	"github.com/promptforge-app/promptforge/internal/auth"
	"github.com/promptforge-app/promptforge/internal/config"
	"github.com/promptforge-app/promptforge/internal/gemini"
	"github.com/promptforge-app/promptforge/internal/prompts"
	"github.com/promptforge-app/promptforge/internal/quota"
	"github.com/promptforge-app/promptforge/internal/server"
	"github.com/promptforge-app/promptforge/internal/users"
)

const testDailyLimit = 5

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	Guard       *quota.Guard
	Store       *quota.Store
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "promptforge_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/promptforge_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	// Stub Gemini upstream: the flash model answers with clarifying
	// questions, everything else answers with a finished prompt.
	geminiStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := "**[ROLE]**\nYou are a senior technical writer."
		if strings.Contains(r.URL.Path, "flash") {
			text = `{"questions": ["Who is the audience?", "What format?", "What tone?"]}`
		}
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(geminiStub.Close)

	geminiCfg := config.GeminiConfig{
		APIKey:         "test-api-key",
		Model:          "gemini-1.5-pro",
		QuestionsModel: "gemini-1.5-flash",
		BaseURL:        geminiStub.URL,
		Timeout:        10 * time.Second,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwtManager := auth.NewJWTManager(
		"test-access-secret-32-chars-long!!", "test-refresh-secret-32-chars-lng!",
		15*time.Minute, 7*24*time.Hour,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userSvc := users.NewService(users.NewRepository(pool))
	authHandler := auth.NewHandler(authSvc, userSvc)

	quotaStore := quota.NewStore(pool, 3)
	quotaGuard := quota.NewGuard(quotaStore, testDailyLimit, nil)
	promptSvc := prompts.NewService(quotaGuard, gemini.NewClient(geminiCfg), nil, geminiCfg, logger)
	promptHandler := prompts.NewHandler(promptSvc, logger)

	auditHandler := audit.NewHandler(audit.NewRepository(pool))

	cfg := &config.Config{
		Quota: config.QuotaConfig{
			DailyLimit:  testDailyLimit,
			TxAttempts:  3,
			RateLimit:   1000,
			RateWindowS: 60,
		},
	}

	router := server.NewRouter(server.RouterDeps{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Redis:          redisClient,
		AuthService:    authSvc,
		AuthHandler:    authHandler,
		PromptsHandler: promptHandler,
		AuditHandler:   auditHandler,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	testEnv = &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      srv,
		Guard:       quotaGuard,
		Store:       quotaStore,
	}
	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

func RegisterUser(t *testing.T, env *TestEnv, email, password string) map[string]any {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, "POST", "/api/v1/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["access_token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
