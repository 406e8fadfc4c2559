// Package balancemonitor implements the threshold-ladder balance alerting
// loop (spec.md §4.5): a ticker fans out per-alias balance checks, parses
// the portal-rendered string, and raises an ALERT Message the first time
// (or once every repeat interval) a rung of the configured ladder is crossed.
package balancemonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/fairyhunter13/autobank-supervisor/pkg/textx"
	"golang.org/x/sync/errgroup"
)

// repeatInterval is the fixed re-alert cadence (spec.md §4.5); it does not
// scale with BalanceCheckInterval.
const repeatInterval = 300 * time.Second

// BalanceSource is the subset of *registry.Registry the Monitor depends on.
type BalanceSource interface {
	ListRunning() []domain.Alias
	QueryBalance(alias domain.Alias) (string, time.Time, error)
}

// Monitor is the process-wide Balance Monitor singleton, owned by the Deps
// record the same way the Messenger is.
type Monitor struct {
	source   BalanceSource
	msgr     *messenger.Messenger
	interval time.Duration
	ladder   domain.ThresholdLadder

	mu     sync.Mutex
	states map[domain.Alias]*domain.AlertState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Monitor. interval is config.BalanceCheckInterval() (already
// clamped to the 60s minimum).
func New(source BalanceSource, msgr *messenger.Messenger, interval time.Duration) *Monitor {
	return &Monitor{
		source:   source,
		msgr:     msgr,
		interval: interval,
		ladder:   domain.DefaultThresholdLadder(),
		states:   make(map[domain.Alias]*domain.AlertState),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

// Stop halts the ticker loop and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// SetLadder replaces the default threshold ladder, e.g. with one loaded
// from config.LoadThresholdLadder. Must be called before Start.
func (m *Monitor) SetLadder(ladder domain.ThresholdLadder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ladder = ladder
}

func (m *Monitor) tick(ctx context.Context) {
	aliases := m.source.ListRunning()
	g, gctx := errgroup.WithContext(ctx)
	for _, alias := range aliases {
		alias := alias
		g.Go(func() error {
			m.checkAlias(gctx, alias)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) checkAlias(ctx context.Context, alias domain.Alias) {
	raw, _, err := m.source.QueryBalance(alias)
	if err != nil || raw == "" {
		return
	}
	balance, ok := textx.ParseBalance(raw)
	if !ok {
		return
	}
	step, crossed := m.ladder.HighestCrossed(balance)
	if !crossed {
		m.stateFor(alias).Clear()
		return
	}

	state := m.stateFor(alias)
	now := time.Now()
	if !state.ShouldAlert(now, repeatInterval) {
		return
	}
	state.Record(now, step.Amount)
	observability.RecordAlert(step.Urgency)

	m.msgr.Send(ctx, domain.Message{
		Kind:      domain.KindAlert,
		Alias:     alias,
		Text:      fmt.Sprintf("balance ₹%.2f has crossed ₹%d (%s) — %s", balance, step.Amount, step.Urgency, step.ActionText),
		CreatedAt: now,
	})
}

func (m *Monitor) stateFor(alias domain.Alias) *domain.AlertState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[alias]
	if !ok {
		s = domain.NewAlertState()
		m.states[alias] = s
	}
	return s
}

// ResetAlerts implements /reset_alerts <alias>: clears one alias's
// dedup/repeat-interval bookkeeping so the next crossed rung re-alerts
// immediately.
func (m *Monitor) ResetAlerts(alias domain.Alias) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[alias]; ok {
		s.Clear()
	}
}

// ResetAllAlerts implements /reset_alerts all: clears every
// tracked alias's state.
func (m *Monitor) ResetAllAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.states {
		s.Clear()
	}
}

// Snapshot implements /balances: the last-known balance per running alias,
// alongside its last-upload time.
type Snapshot struct {
	Alias      domain.Alias
	Balance    string
	LastUpload time.Time
}

// Balances implements /balances: reads every running alias's balance
// straight from the source, not from the Monitor's own cache.
func (m *Monitor) Balances() []Snapshot {
	var out []Snapshot
	for _, alias := range m.source.ListRunning() {
		balance, lastUpload, err := m.source.QueryBalance(alias)
		if err != nil {
			continue
		}
		out = append(out, Snapshot{Alias: alias, Balance: balance, LastUpload: lastUpload})
	}
	return out
}
