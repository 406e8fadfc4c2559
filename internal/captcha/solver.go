// Package captcha implements domain.CaptchaSolver against a 2Captcha-style
// HTTP image-solving service, grounded on the HTTP client shape the teacher
// uses for its external AI provider calls (context-aware, slog-logged,
// cenkalti/backoff/v4-retried).
package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// pollInterval is how often the solver polls the provider for a result.
const pollInterval = 5 * time.Second

// Solver is the concrete domain.CaptchaSolver backed by a 2Captcha-style
// submit/poll HTTP API.
type Solver struct {
	apiKey  string
	baseURL string
	hc      *http.Client
	timeout time.Duration
}

// NewSolver builds a Solver. timeout bounds the full submit+poll cycle, per
// spec.md §8 B3 ("CAPTCHA wait exactly at 180s raises Timeout").
func NewSolver(apiKey string, timeout time.Duration) *Solver {
	return &Solver{
		apiKey:  apiKey,
		baseURL: "https://2captcha.com",
		hc:      &http.Client{Timeout: 30 * time.Second},
		timeout: timeout,
	}
}

type submitResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits image and polls for a solved text/ticket pair, retrying on
// the provider's "not ready yet" response at a fixed interval until timeout
// elapses.
func (s *Solver) Solve(ctx context.Context, image []byte) (text, ticket string, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticket, err = s.submit(ctx, image)
	if err != nil {
		return "", "", fmt.Errorf("op=Solver.Solve: %w", err)
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)
	var result string
	op := func() error {
		res, ready, perr := s.poll(ctx, ticket)
		if perr != nil {
			return backoff.Permanent(perr)
		}
		if !ready {
			return fmt.Errorf("captcha %s not ready", ticket)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, bo); err != nil {
		slog.Warn("captcha: solve timed out", "ticket", ticket, "err", err)
		return "", ticket, fmt.Errorf("op=Solver.Solve ticket=%s: %w", ticket, domain.ErrTimeout)
	}
	return result, ticket, nil
}

func (s *Solver) submit(ctx context.Context, image []byte) (string, error) {
	form := url.Values{}
	form.Set("key", s.apiKey)
	form.Set("method", "base64")
	form.Set("body", base64.StdEncoding.EncodeToString(image))
	form.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Status != 1 {
		return "", fmt.Errorf("captcha submit failed: %s", out.Request)
	}
	return out.Request, nil
}

func (s *Solver) poll(ctx context.Context, ticket string) (text string, ready bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/res.php", nil)
	if err != nil {
		return "", false, err
	}
	q := req.URL.Query()
	q.Set("key", s.apiKey)
	q.Set("action", "get")
	q.Set("id", ticket)
	q.Set("json", "1")
	req.URL.RawQuery = q.Encode()

	resp, err := s.hc.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, err
	}

	var out submitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", false, err
	}
	if out.Status == 1 {
		return out.Request, true, nil
	}
	if out.Request == "CAPCHA_NOT_READY" {
		return "", false, nil
	}
	return "", false, fmt.Errorf("captcha poll failed: %s", out.Request)
}

// ReportBad reports a wrong solve back to the provider so its accuracy
// tracking downranks the worker that produced it.
func (s *Solver) ReportBad(ctx context.Context, ticket string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/res.php", nil)
	if err != nil {
		return fmt.Errorf("op=Solver.ReportBad ticket=%s: %w", ticket, err)
	}
	q := req.URL.Query()
	q.Set("key", s.apiKey)
	q.Set("action", "reportbad")
	q.Set("id", ticket)
	req.URL.RawQuery = q.Encode()

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=Solver.ReportBad ticket=%s: %w", ticket, err)
	}
	defer resp.Body.Close()
	return nil
}

var _ domain.CaptchaSolver = (*Solver)(nil)
