package balancemonitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	running  []domain.Alias
	balances map[domain.Alias]string
}

func (f *fakeSource) ListRunning() []domain.Alias {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Alias(nil), f.running...)
}

func (f *fakeSource) QueryBalance(alias domain.Alias) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[alias]
	if !ok {
		return "", time.Time{}, domain.ErrNotRunning
	}
	return b, time.Now(), nil
}

func (f *fakeSource) setBalance(alias domain.Alias, balance string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[alias] = balance
}

type fakeTransport struct {
	mu  sync.Mutex
	out []domain.Message
}

func (f *fakeTransport) Send(ctx context.Context, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, msg)
	return nil
}

func (f *fakeTransport) snapshot() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, len(f.out))
	copy(out, f.out)
	return out
}

func TestMonitor_AlertsOnceWhenThresholdCrossed(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹72,000.00"}}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)

	m.checkAlias(context.Background(), "acme_tmb")
	m.checkAlias(context.Background(), "acme_tmb")

	alerts := 0
	for _, msg := range transport.snapshot() {
		if msg.Kind == domain.KindAlert {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts, "second check within the repeat interval should not re-alert")
}

func TestMonitor_SetLadder_UsesCustomRungs(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹5,000.00"}}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)
	m.SetLadder(domain.ThresholdLadder{{Amount: 1000, Urgency: "low", ActionText: "watch it"}})

	m.checkAlias(context.Background(), "acme_tmb")

	alerts := 0
	for _, msg := range transport.snapshot() {
		if msg.Kind == domain.KindAlert {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts, "custom ladder's single low rung should have been crossed at ₹5,000")
}

func TestMonitor_ResetAlertsAllowsImmediateReAlert(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹72,000.00"}}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)

	m.checkAlias(context.Background(), "acme_tmb")
	m.ResetAlerts("acme_tmb")
	m.checkAlias(context.Background(), "acme_tmb")

	alerts := 0
	for _, msg := range transport.snapshot() {
		if msg.Kind == domain.KindAlert {
			alerts++
		}
	}
	assert.Equal(t, 2, alerts)
}

func TestMonitor_BalanceDropBelowRung_ClearsStateForReAlert(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹72,000.00"}}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)

	m.checkAlias(context.Background(), "acme_tmb")

	source.setBalance("acme_tmb", "₹40,000.00")
	m.checkAlias(context.Background(), "acme_tmb")

	source.setBalance("acme_tmb", "₹72,000.00")
	m.checkAlias(context.Background(), "acme_tmb")

	alerts := 0
	for _, msg := range transport.snapshot() {
		if msg.Kind == domain.KindAlert {
			alerts++
		}
	}
	assert.Equal(t, 2, alerts, "balance falling back below every rung must clear alert state so the next crossing re-alerts immediately, well within the repeat interval")
}

func TestMonitor_NoAlertBelowLowestRung(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹1,000.00"}}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)

	m.checkAlias(context.Background(), "acme_tmb")
	assert.Empty(t, transport.snapshot())
}

func TestMonitor_Balances_ReflectsSource(t *testing.T) {
	source := &fakeSource{running: []domain.Alias{"acme_tmb"}, balances: map[domain.Alias]string{"acme_tmb": "₹500.00"}}
	msgr := messenger.New(&fakeTransport{}, true)
	m := New(source, msgr, time.Hour)

	snap := m.Balances()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.Alias("acme_tmb"), snap[0].Alias)
	assert.Equal(t, "₹500.00", snap[0].Balance)
}

func TestMonitor_TickFansOutAcrossAliases(t *testing.T) {
	source := &fakeSource{
		running: []domain.Alias{"a_tmb", "b_iob"},
		balances: map[domain.Alias]string{
			"a_tmb": "₹90,500.00",
			"b_iob": "₹95,000.00",
		},
	}
	transport := &fakeTransport{}
	msgr := messenger.New(transport, true)
	m := New(source, msgr, time.Hour)

	m.tick(context.Background())

	aliases := map[domain.Alias]bool{}
	for _, msg := range transport.snapshot() {
		aliases[msg.Alias] = true
	}
	assert.True(t, aliases["a_tmb"])
	assert.True(t, aliases["b_iob"])
}
