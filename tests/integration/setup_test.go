//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"uikits/config"
	"uikits/internal/app"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// CacheType is "local", "redis" or "none" (default: none)
	CacheType string

	// MasterKey enables /api/revalidate when set
	MasterKey string
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// MockNPM is the fake npm downloads API
	MockNPM *MockNPMServer

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	// DBType is the configured database type
	DBType string

	cancelFunc context.CancelFunc
}

// MockNPMServer answers /downloads/range requests with 30 days of data and
// counts calls per package.
type MockNPMServer struct {
	server *httptest.Server

	mu     sync.Mutex
	calls  map[string]int
	status int
}

// NewMockNPMServer starts the fake API.
func NewMockNPMServer() *MockNPMServer {
	m := &MockNPMServer{calls: make(map[string]int), status: http.StatusOK}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockNPMServer) handle(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/downloads/range/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	period, pkg, _ := strings.Cut(rest, "/")
	startDay, _, _ := strings.Cut(period, ":")

	m.mu.Lock()
	m.calls[pkg]++
	status := m.status
	m.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":"unavailable"}`)
		return
	}

	start, err := time.Parse("2006-01-02", startDay)
	if err != nil {
		http.Error(w, `{"error":"bad range"}`, http.StatusBadRequest)
		return
	}
	var days []string
	for i := 0; i < 30; i++ {
		days = append(days, fmt.Sprintf(`{"day":%q,"downloads":%d}`, start.AddDate(0, 0, i).Format("2006-01-02"), 100+i*10))
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"start":%q,"end":%q,"package":%q,"downloads":[%s]}`,
		startDay, start.AddDate(0, 0, 29).Format("2006-01-02"), pkg, strings.Join(days, ","))
}

// URL returns the base URL.
func (m *MockNPMServer) URL() string { return m.server.URL }

// Calls returns how many range requests pkg received.
func (m *MockNPMServer) Calls(pkg string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[pkg]
}

// FailWith makes every following request answer status.
func (m *MockNPMServer) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// Close stops the server.
func (m *MockNPMServer) Close() { m.server.Close() }

// SetupTestServer creates a test server with the specified configuration
// and seeds the catalog.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	mockNPM := NewMockNPMServer()

	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	appCfg := buildAppConfig(t, cfg, mockNPM.URL(), port)

	application, err := app.New(ctx, appCfg, app.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err, "failed to create app")

	_, err = application.Seed(ctx, strings.NewReader(testSeed))
	require.NoError(t, err, "failed to seed catalog")

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		_ = application.Start(addr)
	}()

	err = waitForServer(serverURL + "/health")
	require.NoError(t, err, "server failed to become healthy")

	fixture := &TestServerFixture{
		ServerURL:  serverURL,
		App:        application,
		MockNPM:    mockNPM,
		DBType:     cfg.DBType,
		cancelFunc: cancel,
	}

	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	resetStats(t, fixture)
	t.Cleanup(func() { fixture.Shutdown(t) })
	return fixture
}

// Shutdown gracefully shuts down the test server.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}

	if f.MockNPM != nil {
		f.MockNPM.Close()
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig, npmURL string, port int) *config.Config {
	t.Helper()

	appCfg := config.Default()
	appCfg.Server.Port = fmt.Sprintf("%d", port)
	appCfg.Server.MasterKey = cfg.MasterKey
	appCfg.NPM.BaseURL = npmURL
	appCfg.NPM.Timeout = 5 * time.Second
	appCfg.Catalog.MemoTTL = time.Minute

	appCfg.Cache.Type = cfg.CacheType
	if appCfg.Cache.Type == "" {
		appCfg.Cache.Type = "none"
	}
	if appCfg.Cache.Type == "redis" {
		appCfg.Cache.Redis.URL = GetRedisURL()
		appCfg.Cache.Redis.KeyPrefix = fmt.Sprintf("uikits-test:%s:", t.Name())
	}

	switch cfg.DBType {
	case "postgresql":
		appCfg.Storage.Type = "postgresql"
		appCfg.Storage.PostgreSQL.URL = GetPostgreSQLURL()
		appCfg.Storage.PostgreSQL.MaxConns = 5
	case "mongodb":
		appCfg.Storage.Type = "mongodb"
		appCfg.Storage.MongoDB.URL = GetMongoURL()
		appCfg.Storage.MongoDB.Database = "uikits_test"
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	require.NoError(t, appCfg.Validate())
	return appCfg
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
