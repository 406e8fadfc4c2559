package observability_test

import (
	"errors"
	"testing"
	"time"

	"github.com/fairyhunter13/autobank-supervisor/internal/adapter/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := observability.NewCircuitBreaker("sink", 3, 5*time.Second)
	assert.Equal(t, observability.StateClosed, cb.GetState())

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.True(t, cb.IsOpen())
	err := cb.Call(func() error { t.Fatal("should not be called while open"); return nil })
	require.Error(t, err)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	cb := observability.NewCircuitBreaker("sink", 1, 10*time.Millisecond)
	_ = cb.Call(func() error { return errors.New("boom") })
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 3; i++ {
		err := cb.Call(func() error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, observability.StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := observability.NewCircuitBreaker("sink", 1, time.Hour)
	_ = cb.Call(func() error { return errors.New("boom") })
	require.True(t, cb.IsOpen())
	cb.Reset()
	assert.Equal(t, observability.StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetFailures())
}
