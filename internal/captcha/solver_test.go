package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolver_SolveSucceedsAfterPolling(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"request":"ticket123"}`))
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") == "get" {
			n := atomic.AddInt32(&polls, 1)
			if n < 2 {
				w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
				return
			}
			w.Write([]byte(`{"status":1,"request":"solved-text"}`))
			return
		}
		w.Write([]byte(`{"status":1,"request":"OK_REPORT_RECORDED"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSolver("testkey", 15*time.Second)
	s.baseURL = srv.URL

	text, ticket, err := s.Solve(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "solved-text", text)
	assert.Equal(t, "ticket123", ticket)
}

func TestSolver_SolveTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"request":"ticket123"}`))
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"request":"CAPCHA_NOT_READY"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSolver("testkey", 200*time.Millisecond)
	s.baseURL = srv.URL

	_, _, err := s.Solve(context.Background(), []byte("img"))
	require.ErrorIs(t, err, domain.ErrTimeout)
}

func TestSolver_ReportBad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"request":"OK_REPORT_RECORDED"}`))
	}))
	defer srv.Close()

	s := NewSolver("testkey", time.Second)
	s.baseURL = srv.URL
	require.NoError(t, s.ReportBad(context.Background(), "ticket123"))
}
