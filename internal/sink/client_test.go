package sink_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/sink"
	"github.com/stretchr/testify/require"
)

func tempStatement(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "statement.csv")
	require.NoError(t, os.WriteFile(p, []byte("date,amount\n"), 0o600))
	return p
}

func TestClient_UploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Upload successful"))
	}))
	defer srv.Close()

	cb := observability.NewCircuitBreaker("sink-test", 3, time.Second)
	c := sink.NewClient(srv.URL, cb)

	err := c.Upload(context.Background(), "TMB", "1234567890", tempStatement(t))
	require.NoError(t, err)
}

func TestClient_UploadFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := observability.NewCircuitBreaker("sink-test", 3, time.Second)
	c := sink.NewClient(srv.URL, cb)

	err := c.Upload(context.Background(), "TMB", "1234567890", tempStatement(t))
	require.ErrorIs(t, err, domain.ErrUploadFailed)
}

func TestClient_UploadFailsWithoutSuccessMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("unexpected"))
	}))
	defer srv.Close()

	cb := observability.NewCircuitBreaker("sink-test", 3, time.Second)
	c := sink.NewClient(srv.URL, cb)

	err := c.Upload(context.Background(), "TMB", "1234567890", tempStatement(t))
	require.ErrorIs(t, err, domain.ErrUploadFailed)
}
