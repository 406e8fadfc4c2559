// Package messenger implements the process-wide outbound notification
// component (spec.md §4.6): immediate delivery for critical events, 60s
// aggregate batching for the rest, bounded retry with drop-after-sustained-
// failure, and short-window coalescing of duplicate critical bursts.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

const (
	flushInterval       = 60 * time.Second
	criticalCoalesceTTL = 2 * time.Second
	sendRetryAttempts   = 3
	sendRetryBaseDelay  = time.Second
	dropAfterFailures   = 5
)

// Messenger is the single dedicated I/O context every Worker, the Balance
// Monitor, and the Command Surface send notifications through. Owned by the
// Deps record — never a package-level singleton.
type Messenger struct {
	transport domain.MessageTransport
	debug     bool

	mu               sync.Mutex
	buffer           []domain.Message
	consecFailures   int
	lastCriticalSend map[string]criticalRecord

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type criticalRecord struct {
	text   string
	sentAt time.Time
}

// New builds a Messenger. debug, when true, sends non-critical messages
// immediately instead of batching them — useful for interactive testing,
// per spec.md §4.6's "Batching (when debug off)" note.
func New(transport domain.MessageTransport, debug bool) *Messenger {
	return &Messenger{
		transport:        transport,
		debug:            debug,
		lastCriticalSend: make(map[string]criticalRecord),
		stopCh:           make(chan struct{}),
	}
}

// Start launches the background flush ticker. Call Stop to shut it down.
func (m *Messenger) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.flush(ctx)
				return
			case <-m.stopCh:
				m.flush(ctx)
				return
			case <-ticker.C:
				m.flush(ctx)
			}
		}
	}()
}

// Stop flushes any buffered messages and waits for the flush loop to exit.
func (m *Messenger) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Send routes msg per spec.md §4.6: critical kinds go out immediately
// (subject to 2s duplicate coalescing); everything else is buffered for the
// next flush, unless debug mode is on.
func (m *Messenger) Send(ctx context.Context, msg domain.Message) {
	if msg.Kind.IsCritical() {
		m.sendCritical(ctx, msg)
		return
	}
	if m.debug {
		m.sendWithRetry(ctx, msg)
		return
	}
	m.mu.Lock()
	m.buffer = append(m.buffer, msg)
	m.mu.Unlock()
}

func (m *Messenger) sendCritical(ctx context.Context, msg domain.Message) {
	key := fmt.Sprintf("%s|%s", msg.Kind, msg.Alias)

	m.mu.Lock()
	if rec, ok := m.lastCriticalSend[key]; ok && rec.text == msg.Text && time.Since(rec.sentAt) < criticalCoalesceTTL {
		m.mu.Unlock()
		slog.Debug("messenger: coalesced duplicate critical message", "kind", msg.Kind, "alias", msg.Alias)
		return
	}
	m.mu.Unlock()

	m.sendWithRetry(ctx, msg)

	m.mu.Lock()
	m.lastCriticalSend[key] = criticalRecord{text: msg.Text, sentAt: time.Now()}
	m.mu.Unlock()
}

func (m *Messenger) flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var lines []string
	for _, msg := range batch {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", msg.Kind, msg.Alias, msg.Text))
	}
	aggregate := domain.Message{
		Kind:      domain.KindInfo,
		Text:      strings.Join(lines, "\n"),
		CreatedAt: batch[len(batch)-1].CreatedAt,
	}
	m.sendWithRetry(ctx, aggregate)
}

func (m *Messenger) sendWithRetry(ctx context.Context, msg domain.Message) {
	var err error
	for attempt := 1; attempt <= sendRetryAttempts; attempt++ {
		err = m.transport.Send(ctx, msg)
		if err == nil {
			observability.RecordMessengerSend(string(msg.Kind), "ok")
			m.mu.Lock()
			m.consecFailures = 0
			m.mu.Unlock()
			return
		}
		if attempt < sendRetryAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * sendRetryBaseDelay):
			}
		}
	}

	observability.RecordMessengerSend(string(msg.Kind), "failed")
	slog.Error("messenger: send failed after retries", "kind", msg.Kind, "alias", msg.Alias, "err", err)

	m.mu.Lock()
	m.consecFailures++
	dropped := m.consecFailures >= dropAfterFailures
	m.mu.Unlock()

	if dropped {
		observability.RecordMessengerDrop()
		slog.Error("messenger: dropping message after sustained failures", "kind", msg.Kind, "alias", msg.Alias, "consecutive_failures", m.consecFailures)
	}
}
