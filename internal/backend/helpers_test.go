package backend

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Atulx21/SevaConnect/pkg/httpclient"
)

const testAnonKey = "anon-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestClient points a Client at handler. Auto refresh is left to the
// individual tests.
func newTestClient(t *testing.T, handler http.HandlerFunc, storage Storage) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL, testAnonKey)
	cfg.Auth.AutoRefresh = false
	doer := httpclient.NewWithHTTPClient(srv.Client(), httpclient.Config{Timeout: 5 * time.Second})
	c := New(cfg, doer, storage, testLogger())
	t.Cleanup(c.Auth.Close)
	return c, srv
}
