//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uikits/tests/integration/dbassert"
)

// API endpoints
const (
	healthPath     = "/health"
	librariesPath  = "/api/libraries"
	npmStatsPath   = "/api/npm/"
	revalidatePath = "/api/revalidate"
)

const testSeed = `
tags:
  - {name: Accessibility, slug: accessibility}
  - {name: Dashboard, slug: dashboard}
labels:
  - {name: New, color: "#16a34a", text_color: "#ffffff"}
frameworks:
  - {slug: react, name: React, tags: [accessibility]}
  - {slug: vue, name: Vue}
libraries:
  - slug: react-aria
    name: React Aria
    description: Accessible primitives
    framework: react
    tags: [accessibility]
    labels: [New]
    npm_package: react-aria
    github_stars: 12000
    styling: headless
    pricing: free
  - slug: ark-ui
    name: Ark UI
    description: Headless components
    framework: react
    frameworks: [react, vue]
    npm_package: "@ark-ui/react"
    github_stars: 3500
    styling: headless
    pricing: free
  - slug: vuetify
    name: Vuetify
    description: Material components for Vue
    framework: vue
    tags: [dashboard]
    npm_package: vuetify
    github_stars: 39000
    styling: material
    pricing: freemium
pages:
  - {slug: about, title: About, content: A directory of UI component libraries.}
`

// npmStatsBody is the GET /api/npm/* response.
type npmStatsBody struct {
	Package   string `json:"package"`
	Downloads []struct {
		Day       string `json:"day"`
		Downloads int64  `json:"downloads"`
	} `json:"downloads"`
	Total          int64    `json:"total"`
	FormattedTotal string   `json:"formattedTotal"`
	Trending       bool     `json:"trending"`
	GrowthPercent  *float64 `json:"growthPercent"`
}

// get performs a GET and returns status and body.
func get(t *testing.T, url string) (int, []byte) {
	t.Helper()

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	return resp.StatusCode, body
}

// getNPMStats calls the stats API for pkg.
func getNPMStats(t *testing.T, serverURL, pkg string) npmStatsBody {
	t.Helper()

	status, body := get(t, serverURL+npmStatsPath+pkg)
	require.Equal(t, http.StatusOK, status, string(body))

	var out npmStatsBody
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

// sendJSONRequest sends a JSON POST request and returns the response.
func sendJSONRequest(t *testing.T, url string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err, "failed to marshal request payload")

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err, "failed to create request")

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to send request")
	return resp
}

// resetStats clears persisted statistics for the fixture's backend.
func resetStats(t *testing.T, f *TestServerFixture) {
	t.Helper()
	switch f.DBType {
	case "postgresql":
		dbassert.ResetStats(t, f.PgPool)
	case "mongodb":
		dbassert.ResetStatsMongo(t, f.MongoDb)
	}
}

// queryStats reads the persisted entry for pkg from the fixture's backend.
func queryStats(t *testing.T, f *TestServerFixture, pkg string) *dbassert.StatsRow {
	t.Helper()
	switch f.DBType {
	case "postgresql":
		return dbassert.QueryStats(t, f.PgPool, pkg)
	case "mongodb":
		return dbassert.QueryStatsMongo(t, f.MongoDb, pkg)
	}
	t.Fatalf("unsupported DB type: %s", f.DBType)
	return nil
}

// ageStats makes the persisted entry for pkg older than the freshness window.
func ageStats(t *testing.T, f *TestServerFixture, pkg string, age time.Duration) {
	t.Helper()
	switch f.DBType {
	case "postgresql":
		dbassert.AgeStats(t, f.PgPool, pkg, age)
	case "mongodb":
		dbassert.AgeStatsMongo(t, f.MongoDb, pkg, age)
	}
}

var backends = []string{"postgresql", "mongodb"}
