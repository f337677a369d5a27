package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/app"
	"github.com/JakeFAU/job-harvester/internal/config"
	"github.com/JakeFAU/job-harvester/internal/crawler"
)

func testFactory(ctx context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
	return app.New(ctx, cfg, zap.NewNop(),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithPageSleeper(func(context.Context, time.Duration) error { return nil }),
	)
}

func wantedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/chaos/navigation/v1/results" && r.URL.Query().Get("offset") == "0":
			_, _ = io.WriteString(w, `{"data":[{"id":55}]}`)
		case r.URL.Path == "/api/chaos/navigation/v1/results":
			_, _ = io.WriteString(w, `{"data":[]}`)
		case r.URL.Path == "/api/chaos/jobs/v4/55/details":
			_, _ = io.WriteString(w, `{"message":"ok","data":{"job":{"id":55,"company":{"id":9,"name":"Beta"}}}}`)
		case r.URL.Path == "/api/v4/companies/9":
			_, _ = io.WriteString(w, `{"company":{"name":"Beta"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	body := strings.ReplaceAll(`
db:
  provider: memory
raw:
  provider: memory
notify:
  provider: none
http:
  max_attempts: 1
crawl:
  page_delay_min: 1ms
  page_delay_max: 1ms
sources:
  enabled: [wanted, saramin]
  overrides:
    wanted:
      web: ENDPOINT
      api: ENDPOINT
`, "ENDPOINT", endpoint)
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCrawlCommandPrintsReports(t *testing.T) {
	t.Parallel()

	srv := wantedServer(t)
	var out bytes.Buffer
	err := execute(context.Background(), testFactory,
		[]string{"crawl", "--config", writeConfig(t, srv.URL), "--sources", "wanted"}, &out)
	require.NoError(t, err)

	var reports []crawler.SessionReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, crawler.PlatformWanted, reports[0].Platform)
	assert.Equal(t, crawler.SessionSucceeded, reports[0].Status)
	assert.Equal(t, 1, reports[0].Saved)
}

func TestCrawlCommandFailsOnFailedSession(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	var out bytes.Buffer
	err := execute(context.Background(), testFactory,
		[]string{"crawl", "--config", writeConfig(t, srv.URL), "--sources", "wanted"}, &out)
	require.ErrorContains(t, err, "1 of 1 sessions failed")
	assert.Contains(t, out.String(), `"status": "failed"`)
}

func TestRootRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	srv := wantedServer(t)
	err := execute(context.Background(), testFactory,
		[]string{"crawl", "--config", writeConfig(t, srv.URL), "--sources", "indeed"}, io.Discard)
	require.ErrorContains(t, err, "unknown platform")
}

func TestRootMissingConfigFile(t *testing.T) {
	t.Parallel()

	err := execute(context.Background(), testFactory,
		[]string{"crawl", "--config", filepath.Join(t.TempDir(), "absent.yaml")}, io.Discard)
	require.ErrorContains(t, err, "read config")
}

func TestRunsCommandListsHistory(t *testing.T) {
	t.Parallel()

	srv := wantedServer(t)
	path := writeConfig(t, srv.URL)

	// The memory store lives for one invocation, so run both steps on one App.
	root, opts := newRootCmd(testFactory)
	root.SetArgs([]string{"crawl", "--config", path, "--sources", "wanted"})
	root.SetOut(io.Discard)
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.NotNil(t, opts.app)
	t.Cleanup(func() { _ = opts.app.Close(context.Background()) })

	// Run history is written by the progress hub; poll until it lands.
	require.Eventually(t, func() bool {
		var out bytes.Buffer
		runs := newRunsCmd()
		runs.SetOut(&out)
		runs.SetContext(context.WithValue(context.Background(), appKey, opts.app))
		if err := runs.RunE(runs, nil); err != nil {
			return false
		}
		return strings.Contains(out.String(), "WANTED") && strings.Contains(out.String(), "success")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestListenPortPrefersEnv(t *testing.T) {
	t.Setenv("PORT", "9191")
	assert.Equal(t, 9191, listenPort(8080))

	t.Setenv("PORT", "bogus")
	assert.Equal(t, 8080, listenPort(8080))
}
