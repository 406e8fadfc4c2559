// Package sink implements domain.StatementSink against the downstream
// AutoBank upload portal, grounded on the teacher's context-aware,
// slog-logged external HTTP client shape (internal/adapter/ai/real.Client).
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// Client uploads bank statement files to the AutoBank portal. Circuit-broken
// per target so a sustained outage does not hammer the portal while every
// worker keeps retrying independently.
type Client struct {
	uploadURL string
	hc        *http.Client
	breaker   *observability.CircuitBreaker
}

// NewClient builds a Client. breaker is owned by the caller (never a
// package-level singleton, per spec.md §9 Design Notes) and shared across
// every Upload call this Client makes.
func NewClient(uploadURL string, breaker *observability.CircuitBreaker) *Client {
	return &Client{
		uploadURL: uploadURL,
		hc:        &http.Client{Timeout: 60 * time.Second},
		breaker:   breaker,
	}
}

// Upload sends one statement file. Retrying is the caller's (Worker's)
// responsibility per spec.md §7's "inline retry (≤5)" discipline — this
// method makes exactly one attempt.
func (c *Client) Upload(ctx context.Context, bankLabel, accountNumber, filePath string) error {
	err := c.breaker.Call(func() error {
		return c.doUpload(ctx, bankLabel, accountNumber, filePath)
	})
	if err != nil {
		slog.Error("sink: upload failed", "bank_label", bankLabel, "account_number", accountNumber, "err", err)
		return fmt.Errorf("op=Client.Upload bank=%s account=%s: %w", bankLabel, accountNumber, domain.ErrUploadFailed)
	}
	return nil
}

func (c *Client) doUpload(ctx context.Context, bankLabel, accountNumber, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("bank_label", bankLabel); err != nil {
		return err
	}
	if err := w.WriteField("account_number", accountNumber); err != nil {
		return err
	}
	part, err := w.CreateFormFile("statement", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload status %d", resp.StatusCode)
	}
	if !strings.Contains(string(respBody), "Upload successful") {
		return fmt.Errorf("upload response missing success marker")
	}
	return nil
}

var _ domain.StatementSink = (*Client)(nil)
