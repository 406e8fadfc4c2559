package messenger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
	"github.com/fairyhunter13/autobank-supervisor/internal/messenger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []domain.Message
	failNext int
}

func (f *fakeTransport) Send(ctx context.Context, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("boom")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) snapshot() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestMessenger_CriticalSentImmediately(t *testing.T) {
	ft := &fakeTransport{}
	m := messenger.New(ft, false)

	m.Send(context.Background(), domain.Message{Kind: domain.KindError, Alias: "acme_tmb", Text: "boom"})

	require.Len(t, ft.snapshot(), 1)
	assert.Equal(t, domain.KindError, ft.snapshot()[0].Kind)
}

func TestMessenger_CoalescesDuplicateCriticalWithin2s(t *testing.T) {
	ft := &fakeTransport{}
	m := messenger.New(ft, false)

	msg := domain.Message{Kind: domain.KindError, Alias: "acme_tmb", Text: "boom"}
	m.Send(context.Background(), msg)
	m.Send(context.Background(), msg)

	assert.Len(t, ft.snapshot(), 1)
}

func TestMessenger_NonCriticalBuffersUntilFlush(t *testing.T) {
	ft := &fakeTransport{}
	m := messenger.New(ft, false)
	m.Start(context.Background())

	m.Send(context.Background(), domain.Message{Kind: domain.KindInfo, Alias: "acme_tmb", Text: "tick"})
	assert.Empty(t, ft.snapshot())

	m.Stop()
	require.Len(t, ft.snapshot(), 1)
}

func TestMessenger_DebugModeSendsNonCriticalImmediately(t *testing.T) {
	ft := &fakeTransport{}
	m := messenger.New(ft, true)

	m.Send(context.Background(), domain.Message{Kind: domain.KindInfo, Alias: "acme_tmb", Text: "tick"})
	require.Len(t, ft.snapshot(), 1)
}

func TestMessenger_RetriesThenSucceeds(t *testing.T) {
	ft := &fakeTransport{failNext: 2}
	m := messenger.New(ft, false)

	start := time.Now()
	m.Send(context.Background(), domain.Message{Kind: domain.KindStart, Alias: "acme_tmb", Text: "started"})
	elapsed := time.Since(start)

	require.Len(t, ft.snapshot(), 1)
	assert.GreaterOrEqual(t, elapsed, sendRetryFloor())
}

func sendRetryFloor() time.Duration {
	// the first 2 of 3 attempts fail, so the send waits 1s then 2s of linear
	// backoff before the third attempt succeeds: 3s, less a little slack.
	return 2900 * time.Millisecond
}
