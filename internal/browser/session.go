// Package browser is the concrete go-rod implementation of
// domain.BrowserSession. Each Session owns exactly one *rod.Browser, one
// profile directory and one download directory — a Worker's exclusive
// resource, never shared across aliases (spec.md §5 "Shared resources").
//
// Adapted from the browser-pool shape in the flaresolverr-go reference
// (launcher flags, health checks) but simplified from a shared pool of
// browsers down to a single long-lived browser per alias.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// Session is the go-rod backed domain.BrowserSession for one alias.
type Session struct {
	alias       domain.Alias
	profileDir  string
	downloadDir string

	mu      sync.Mutex
	browser *rod.Browser
	pages   map[domain.TabID]*rod.Page
}

// NewSession launches a dedicated Chrome instance for alias, with its
// profile and downloads isolated under profileDir/downloadDir.
func NewSession(ctx context.Context, alias domain.Alias, profileDir, downloadDir string) (*Session, error) {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("op=Session.New alias=%s: %w", alias, err)
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("op=Session.New alias=%s: %w", alias, err)
	}

	l := launcher.New().
		UserDataDir(profileDir).
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Headless(true)

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("op=Session.New alias=%s: %w", alias, err)
	}

	browser := rod.New().Context(ctx).ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("op=Session.New alias=%s: %w", alias, err)
	}

	if err := browser.SetDownloadBehavior(proto.BrowserSetDownloadBehaviorBehaviorAllow, downloadDir); err != nil {
		slog.Warn("browser: failed to set download behavior", "alias", alias, "err", err)
	}

	return &Session{
		alias:       alias,
		profileDir:  profileDir,
		downloadDir: downloadDir,
		browser:     browser,
		pages:       make(map[domain.TabID]*rod.Page),
	}, nil
}

func (s *Session) Alias() domain.Alias { return s.alias }
func (s *Session) ProfileDir() string  { return s.profileDir }
func (s *Session) DownloadDir() string { return s.downloadDir }

func (s *Session) page(id domain.TabID) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("op=Session.page alias=%s tab=%s: %w", s.alias, id, domain.ErrNoNewTab)
	}
	return p, nil
}

// NewTab opens a fresh page and tracks it under a generated TabID.
func (s *Session) NewTab(ctx context.Context) (domain.TabID, error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("op=Session.NewTab alias=%s: %w", s.alias, err)
	}
	id := domain.TabID(uuid.NewString())
	s.mu.Lock()
	s.pages[id] = page
	s.mu.Unlock()
	return id, nil
}

// Tabs lists currently tracked tab IDs.
func (s *Session) Tabs(ctx context.Context) ([]domain.TabID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.TabID, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	return ids, nil
}

// CloseTab closes and forgets one tab.
func (s *Session) CloseTab(ctx context.Context, id domain.TabID) error {
	page, err := s.page(id)
	if err != nil {
		return nil // already gone
	}
	s.mu.Lock()
	delete(s.pages, id)
	s.mu.Unlock()
	if err := page.Close(); err != nil {
		return fmt.Errorf("op=Session.CloseTab alias=%s tab=%s: %w", s.alias, id, err)
	}
	return nil
}

// CloseAllExcept closes every tracked tab other than keep, for the
// tab-reset protocol (spec.md §4.3).
func (s *Session) CloseAllExcept(ctx context.Context, keep domain.TabID) error {
	s.mu.Lock()
	toClose := make([]domain.TabID, 0, len(s.pages))
	for id := range s.pages {
		if id != keep {
			toClose = append(toClose, id)
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, id := range toClose {
		if err := s.CloseTab(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) Navigate(ctx context.Context, id domain.TabID, url string) error {
	page, err := s.page(id)
	if err != nil {
		return err
	}
	if err := page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("op=Session.Navigate alias=%s tab=%s: %w", s.alias, id, domain.ErrTimeout)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, id domain.TabID, selector string) error {
	page, err := s.page(id)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("op=Session.Click alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("op=Session.Click alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	return nil
}

func (s *Session) Type(ctx context.Context, id domain.TabID, selector, text string) error {
	page, err := s.page(id)
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("op=Session.Type alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("op=Session.Type alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	return nil
}

func (s *Session) Text(ctx context.Context, id domain.TabID, selector string) (string, error) {
	page, err := s.page(id)
	if err != nil {
		return "", err
	}
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("op=Session.Text alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	txt, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("op=Session.Text alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	return txt, nil
}

func (s *Session) WaitVisible(ctx context.Context, id domain.TabID, selector string, timeout time.Duration) error {
	page, err := s.page(id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("op=Session.WaitVisible alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	if err := el.Context(ctx).WaitVisible(); err != nil {
		return fmt.Errorf("op=Session.WaitVisible alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context, id domain.TabID, selector string) ([]byte, error) {
	page, err := s.page(id)
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)
	if selector == "" {
		return page.Screenshot(true, nil)
	}
	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("op=Session.Screenshot alias=%s tab=%s selector=%s: %w", s.alias, id, selector, domain.ErrTimeout)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

// TriggerDownload clicks selector and waits for exactly one new,
// size-stable file to appear under the session's download directory,
// per spec.md §4.1's FetchStatement post-condition.
func (s *Session) TriggerDownload(ctx context.Context, id domain.TabID, selector string, timeout time.Duration) (string, error) {
	before, err := listFiles(s.downloadDir)
	if err != nil {
		return "", fmt.Errorf("op=Session.TriggerDownload alias=%s: %w", s.alias, err)
	}

	if err := s.Click(ctx, id, selector); err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		after, err := listFiles(s.downloadDir)
		if err != nil {
			return "", fmt.Errorf("op=Session.TriggerDownload alias=%s: %w", s.alias, err)
		}
		newFile, ok := singleNewFile(before, after)
		if ok {
			if stableSize(newFile) {
				return newFile, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("op=Session.TriggerDownload alias=%s: %w", s.alias, domain.ErrTimeout)
}

// Close shuts down the underlying browser process.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.pages = make(map[domain.TabID]*rod.Page)
	s.mu.Unlock()
	if err := s.browser.Close(); err != nil {
		return fmt.Errorf("op=Session.Close alias=%s: %w", s.alias, err)
	}
	return nil
}

func listFiles(dir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(dir, e.Name())] = info.Size()
	}
	return out, nil
}

func singleNewFile(before, after map[string]int64) (string, bool) {
	var found string
	count := 0
	for path := range after {
		if _, existed := before[path]; !existed {
			found = path
			count++
		}
	}
	if count != 1 {
		return "", false
	}
	return found, true
}

func stableSize(path string) bool {
	info1, err := os.Stat(path)
	if err != nil {
		return false
	}
	time.Sleep(500 * time.Millisecond)
	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}

var _ domain.BrowserSession = (*Session)(nil)
